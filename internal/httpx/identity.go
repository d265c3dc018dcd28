package httpx

import (
	"net/http"
	"strconv"

	"github.com/shopforge/go-shop-orders/internal/carts"
)

const cartTokenCookie = "cart_token"

// identityFrom trusts the upstream gateway's identity headers. The cart token
// header wins over the cookie so freshly issued tokens take effect
// immediately.
func identityFrom(r *http.Request) carts.Identity {
	id := carts.Identity{
		Email:         r.Header.Get("X-User-Email"),
		EmailVerified: r.Header.Get("X-Email-Verified") == "true",
		CartToken:     r.Header.Get("X-Cart-Token"),
	}
	if v := r.Header.Get("X-User-Id"); v != "" {
		if uid, err := strconv.ParseInt(v, 10, 64); err == nil && uid > 0 {
			id.UserID = uid
		}
	}
	if id.CartToken == "" {
		if c, err := r.Cookie(cartTokenCookie); err == nil {
			id.CartToken = c.Value
		}
	}
	return id
}

func isAdmin(r *http.Request) bool {
	return r.Header.Get("X-User-Role") == "admin"
}

func setCartTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cartTokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   30 * 24 * 3600,
	})
}
