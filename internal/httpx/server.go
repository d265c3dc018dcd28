package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shopforge/go-shop-orders/internal/carts"
	"github.com/shopforge/go-shop-orders/internal/checkout"
	"github.com/shopforge/go-shop-orders/internal/metrics"
	"github.com/shopforge/go-shop-orders/internal/orders"
	"github.com/shopforge/go-shop-orders/internal/redisx"
)

type Server struct {
	Carts    *carts.Repo
	CartSvc  *carts.Service
	Checkout *checkout.Service
	Orders   *orders.Repo
	OrderSvc *orders.Service
	Engine   *orders.ReservationEngine
	Cache    *redisx.StatusCache
	Metrics  *metrics.HTTPMetrics
}

func (s *Server) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if s.Metrics != nil {
		r.Use(s.instrument)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/products", s.handleListProducts)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", s.handleGetCart)
		r.Post("/items", s.handleAddCartItem)
		r.Patch("/items/{productID}", s.handleUpdateCartItem)
		r.Delete("/items/{productID}", s.handleRemoveCartItem)
		r.Post("/merge", s.handleMergeCart)
	})

	r.Post("/checkout", s.handleCheckout)

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", s.handleListOrders)
		r.Post("/claim", s.handleClaimOrders)
		r.Get("/{orderID}", s.handleGetOrder)
		r.Get("/{orderID}/status", s.handleGetOrderStatus)
		r.Post("/{orderID}/cancel", s.handleCancelOrder)
		r.Post("/{orderID}/payments", s.handleApplyPayment)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/orders/{orderID}/ship", s.handleAdminShip)
		r.Post("/orders/{orderID}/deliver", s.handleAdminDeliver)
		r.Post("/orders/{orderID}/cancel", s.handleAdminCancel)
		r.Get("/orders/{orderID}/reservations", s.handleAdminReservations)
		r.Get("/reservations/overdue", s.handleAdminOverdue)
	})

	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.Metrics.Requests.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		s.Metrics.Duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAdmin(r) {
			writeJSON(w, http.StatusForbidden, errBody{Code: "FORBIDDEN", Message: "admin role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func orderIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	return id, err == nil && id > 0
}

func productIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	return id, err == nil && id > 0
}
