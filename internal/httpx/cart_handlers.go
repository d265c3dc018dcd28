package httpx

import (
	"net/http"

	"github.com/shopforge/go-shop-orders/internal/errs"
)

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	cart, _, token, err := s.Carts.ResolveOrCreate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.Carts.ItemsForCart(r.Context(), s.Carts.DB, cart.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if token != "" {
		setCartTokenCookie(w, token)
	}
	writeJSON(w, http.StatusOK, toCartView(cart, items, token))
}

type addItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (s *Server) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ProductID <= 0 {
		writeError(w, r, errs.Validation("INVALID_PRODUCT", "product_id is required"))
		return
	}

	id := identityFrom(r)
	cart, _, token, err := s.Carts.ResolveOrCreate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.Carts.AddItem(r.Context(), cart.ID, req.ProductID, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}

	items, err := s.Carts.ItemsForCart(r.Context(), s.Carts.DB, cart.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if token != "" {
		setCartTokenCookie(w, token)
	}
	writeJSON(w, http.StatusOK, toCartView(cart, items, token))
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(r)
	if !ok {
		writeError(w, r, errs.Validation("INVALID_PRODUCT", "product id must be a positive integer"))
		return
	}
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id := identityFrom(r)
	cart, created, _, err := s.Carts.ResolveOrCreate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if created {
		writeError(w, r, errs.NotFound("cart item not found"))
		return
	}
	if _, err := s.Carts.UpdateItemQuantity(r.Context(), cart.ID, productID, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}

	items, err := s.Carts.ItemsForCart(r.Context(), s.Carts.DB, cart.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(cart, items, ""))
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(r)
	if !ok {
		writeError(w, r, errs.Validation("INVALID_PRODUCT", "product id must be a positive integer"))
		return
	}

	id := identityFrom(r)
	cart, created, _, err := s.Carts.ResolveOrCreate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !created {
		if err := s.Carts.RemoveItem(r.Context(), cart.ID, productID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMergeCart(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if id.IsAnonymous() {
		writeJSON(w, http.StatusUnauthorized, errBody{Code: "UNAUTHORIZED", Message: "login required"})
		return
	}
	if err := s.CartSvc.MergeOrAdoptGuestCart(r.Context(), id.UserID, id.CartToken); err != nil {
		writeError(w, r, err)
		return
	}

	// After a merge the token is dead either way.
	http.SetCookie(w, &http.Cookie{Name: cartTokenCookie, Value: "", Path: "/", MaxAge: -1})

	cart, _, _, err := s.Carts.ResolveOrCreate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.Carts.ItemsForCart(r.Context(), s.Carts.DB, cart.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(cart, items, ""))
}
