package httpx

import (
	"errors"
	"net/http"

	"github.com/shopforge/go-shop-orders/internal/checkout"
	"github.com/shopforge/go-shop-orders/internal/errs"
	"github.com/shopforge/go-shop-orders/internal/orders"
)

type checkoutRequest struct {
	Email string `json:"email"`

	ShippingName         string `json:"shipping_name"`
	ShippingAddressLine1 string `json:"shipping_address_line1"`
	ShippingAddressLine2 string `json:"shipping_address_line2"`
	ShippingCity         string `json:"shipping_city"`
	ShippingPostalCode   string `json:"shipping_postal_code"`
	ShippingCountry      string `json:"shipping_country"`
	ShippingPhone        string `json:"shipping_phone"`

	BillingSameAsShipping bool   `json:"billing_same_as_shipping"`
	BillingName           string `json:"billing_name"`
	BillingAddressLine1   string `json:"billing_address_line1"`
	BillingAddressLine2   string `json:"billing_address_line2"`
	BillingCity           string `json:"billing_city"`
	BillingPostalCode     string `json:"billing_postal_code"`
	BillingCountry        string `json:"billing_country"`
	BillingPhone          string `json:"billing_phone"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id := identityFrom(r)
	if req.Email == "" {
		req.Email = id.Email
	}

	order, items, err := s.Checkout.Checkout(r.Context(), id, checkout.Input{
		Email:                 req.Email,
		ShippingName:          req.ShippingName,
		ShippingAddressLine1:  req.ShippingAddressLine1,
		ShippingAddressLine2:  req.ShippingAddressLine2,
		ShippingCity:          req.ShippingCity,
		ShippingPostalCode:    req.ShippingPostalCode,
		ShippingCountry:       req.ShippingCountry,
		ShippingPhone:         req.ShippingPhone,
		BillingSameAsShipping: req.BillingSameAsShipping,
		BillingName:           req.BillingName,
		BillingAddressLine1:   req.BillingAddressLine1,
		BillingAddressLine2:   req.BillingAddressLine2,
		BillingCity:           req.BillingCity,
		BillingPostalCode:     req.BillingPostalCode,
		BillingCountry:        req.BillingCountry,
		BillingPhone:          req.BillingPhone,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.Cache.Set(r.Context(), order.ID, string(order.Status))
	writeJSON(w, http.StatusCreated, toOrderView(order, items))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if id.IsAnonymous() {
		writeJSON(w, http.StatusUnauthorized, errBody{Code: "UNAUTHORIZED", Message: "login required"})
		return
	}
	list, err := s.Orders.ListOrdersForUser(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]orderView, 0, len(list))
	for _, o := range list {
		views = append(views, toOrderView(o, nil))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, orders.ErrOrderNotFound)
		return
	}
	id := identityFrom(r)
	if id.IsAnonymous() {
		writeJSON(w, http.StatusUnauthorized, errBody{Code: "UNAUTHORIZED", Message: "login required"})
		return
	}

	order, err := s.Orders.GetOrderForUser(r.Context(), s.Orders.DB, orderID, id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.Orders.ItemsForOrder(r.Context(), s.Orders.DB, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(order, items))
}

func (s *Server) handleGetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, orders.ErrOrderNotFound)
		return
	}
	id := identityFrom(r)
	if id.IsAnonymous() {
		writeJSON(w, http.StatusUnauthorized, errBody{Code: "UNAUTHORIZED", Message: "login required"})
		return
	}

	// Ownership check cannot come from the cache.
	order, err := s.Orders.GetOrderForUser(r.Context(), s.Orders.DB, orderID, id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := string(order.Status)
	if cached, ok := s.Cache.Get(r.Context(), orderID); ok {
		status = cached
	} else {
		s.Cache.Set(r.Context(), orderID, status)
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "status": status})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, orders.ErrOrderNotFound)
		return
	}
	id := identityFrom(r)
	if id.IsAnonymous() {
		writeJSON(w, http.StatusUnauthorized, errBody{Code: "UNAUTHORIZED", Message: "login required"})
		return
	}

	order, err := s.OrderSvc.CancelByCustomer(r.Context(), orderID, id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.Cache.Invalidate(r.Context(), orderID)
	writeJSON(w, http.StatusOK, toOrderView(order, nil))
}

type paymentRequest struct {
	Result string `json:"result"`
}

func (s *Server) handleApplyPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, orders.ErrOrderNotFound)
		return
	}
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var success bool
	switch req.Result {
	case "success":
		success = true
	case "fail":
	default:
		writeError(w, r, errs.Validation("INVALID_PAYMENT_RESULT", `result must be "success" or "fail"`))
		return
	}

	// Guest payments are unscoped: the order id is the capability.
	id := identityFrom(r)
	payment, err := s.OrderSvc.ApplyPaymentOutcome(r.Context(), orderID, id.UserID, success)
	if err != nil {
		// A commit shortfall cancels the order before erroring out, so the
		// cached status is stale even on this path.
		if errors.Is(err, orders.ErrOutOfStock) {
			s.Cache.Invalidate(r.Context(), orderID)
		}
		writeError(w, r, err)
		return
	}
	s.Cache.Invalidate(r.Context(), orderID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"payment_id": payment.ID,
		"order_id":   payment.OrderID,
		"status":     string(payment.Status),
	})
}

func (s *Server) handleClaimOrders(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if id.IsAnonymous() {
		writeJSON(w, http.StatusUnauthorized, errBody{Code: "UNAUTHORIZED", Message: "login required"})
		return
	}

	claimed, err := s.OrderSvc.ClaimGuestOrders(r.Context(), id.UserID, id.Email, id.EmailVerified)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claimed": claimed})
}
