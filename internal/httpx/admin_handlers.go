package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/shopforge/go-shop-orders/internal/orders"
)

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Orders.ListProducts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductViews(products))
}

func (s *Server) adminUserID(r *http.Request) int64 {
	return identityFrom(r).UserID
}

func (s *Server) handleAdminShip(w http.ResponseWriter, r *http.Request) {
	s.adminTransition(w, r, s.OrderSvc.Ship)
}

func (s *Server) handleAdminDeliver(w http.ResponseWriter, r *http.Request) {
	s.adminTransition(w, r, s.OrderSvc.Deliver)
}

func (s *Server) handleAdminCancel(w http.ResponseWriter, r *http.Request) {
	s.adminTransition(w, r, s.OrderSvc.CancelByAdmin)
}

func (s *Server) adminTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, orderID, adminUserID int64) (orders.Order, error)) {
	orderID, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, orders.ErrOrderNotFound)
		return
	}
	order, err := fn(r.Context(), orderID, s.adminUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.Cache.Invalidate(r.Context(), orderID)
	writeJSON(w, http.StatusOK, toOrderView(order, nil))
}

func (s *Server) handleAdminReservations(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, orders.ErrOrderNotFound)
		return
	}
	reservations, err := s.Engine.ReservationsForOrder(r.Context(), s.Orders.DB, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type resView struct {
		ID        int64     `json:"id"`
		ProductID int64     `json:"product_id"`
		Quantity  int       `json:"quantity"`
		Status    string    `json:"status"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	views := make([]resView, 0, len(reservations))
	for _, res := range reservations {
		views = append(views, resView{
			ID:        res.ID,
			ProductID: res.ProductID,
			Quantity:  res.Quantity,
			Status:    string(res.Status),
			ExpiresAt: res.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAdminOverdue(w http.ResponseWriter, r *http.Request) {
	count, err := s.Engine.CountOverdueReservations(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"overdue": count})
}
