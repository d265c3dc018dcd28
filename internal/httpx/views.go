package httpx

import (
	"time"

	"github.com/shopforge/go-shop-orders/internal/carts"
	"github.com/shopforge/go-shop-orders/internal/orders"
)

type cartItemView struct {
	ProductID  int64  `json:"product_id"`
	Quantity   int    `json:"quantity"`
	PriceAtAdd string `json:"price_at_add"`
}

type cartView struct {
	ID        int64          `json:"id"`
	Status    string         `json:"status"`
	Items     []cartItemView `json:"items"`
	CartToken string         `json:"cart_token,omitempty"`
}

func toCartView(c carts.Cart, items []carts.CartItem, token string) cartView {
	v := cartView{ID: c.ID, Status: string(c.Status), Items: []cartItemView{}, CartToken: token}
	for _, it := range items {
		v.Items = append(v.Items, cartItemView{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			PriceAtAdd: it.PriceAtAdd.StringFixed(2),
		})
	}
	return v
}

type orderItemView struct {
	ProductID     int64   `json:"product_id"`
	Quantity      int     `json:"quantity"`
	UnitPrice     string  `json:"unit_price"`
	LineTotal     string  `json:"line_total"`
	DiscountType  *string `json:"discount_type,omitempty"`
	DiscountValue *string `json:"discount_value,omitempty"`
}

type orderView struct {
	ID            int64           `json:"id"`
	Status        string          `json:"status"`
	Guest         bool            `json:"guest"`
	CustomerEmail string          `json:"customer_email"`
	Items         []orderItemView `json:"items,omitempty"`
	CancelReason  *string         `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toOrderView(o orders.Order, items []orders.OrderItem) orderView {
	v := orderView{
		ID:            o.ID,
		Status:        string(o.Status),
		Guest:         o.IsGuest(),
		CustomerEmail: o.CustomerEmail,
		CreatedAt:     o.CreatedAt,
	}
	if o.CancelReason != nil {
		reason := string(*o.CancelReason)
		v.CancelReason = &reason
	}
	for _, it := range items {
		iv := orderItemView{
			ProductID:    it.ProductID,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice.StringFixed(2),
			LineTotal:    it.LineTotal.StringFixed(2),
			DiscountType: it.DiscountType,
		}
		if it.DiscountValue != nil {
			s := it.DiscountValue.StringFixed(2)
			iv.DiscountValue = &s
		}
		v.Items = append(v.Items, iv)
	}
	return v
}

type productView struct {
	ID            int64  `json:"id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	StockQuantity int    `json:"stock_quantity"`
}

func toProductViews(ps []orders.Product) []productView {
	out := make([]productView, 0, len(ps))
	for _, p := range ps {
		out = append(out, productView{
			ID:            p.ID,
			SKU:           p.SKU,
			Name:          p.Name,
			Price:         p.Price.StringFixed(2),
			StockQuantity: p.StockQuantity,
		})
	}
	return out
}
