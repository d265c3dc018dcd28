// Package checkout turns an ACTIVE cart into a CREATED order with inventory
// reservations, atomically.
package checkout

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopforge/go-shop-orders/internal/audit"
	"github.com/shopforge/go-shop-orders/internal/carts"
	"github.com/shopforge/go-shop-orders/internal/errs"
	"github.com/shopforge/go-shop-orders/internal/orders"
	"github.com/shopforge/go-shop-orders/internal/outbox"
	"github.com/shopforge/go-shop-orders/internal/pricing"
)

type Service struct {
	DB     *pgxpool.Pool
	Carts  *carts.Repo
	Orders *orders.Repo
	Engine *orders.ReservationEngine
	Audit  *audit.Sink
}

// Input carries the customer-supplied checkout form. Billing fields are only
// read when BillingSameAsShipping is false.
type Input struct {
	Email string

	ShippingName         string
	ShippingAddressLine1 string
	ShippingAddressLine2 string
	ShippingCity         string
	ShippingPostalCode   string
	ShippingCountry      string
	ShippingPhone        string

	BillingSameAsShipping bool
	BillingName           string
	BillingAddressLine1   string
	BillingAddressLine2   string
	BillingCity           string
	BillingPostalCode     string
	BillingCountry        string
	BillingPhone          string
}

// Checkout converts the caller's ACTIVE cart in one transaction: order row,
// priced line items, all-or-nothing reservations, cart flipped to CONVERTED.
// Any failure rolls the whole thing back and leaves the cart usable.
func (s *Service) Checkout(ctx context.Context, id carts.Identity, in Input) (orders.Order, []orders.OrderItem, error) {
	if err := validate(in); err != nil {
		return orders.Order{}, nil, err
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return orders.Order{}, nil, err
	}
	defer tx.Rollback(ctx)

	cart, err := s.Carts.LockActiveCart(ctx, tx, id)
	if err != nil {
		return orders.Order{}, nil, err
	}
	cartItems, err := s.Carts.ItemsForCart(ctx, tx, cart.ID)
	if err != nil {
		return orders.Order{}, nil, err
	}
	if len(cartItems) == 0 {
		return orders.Order{}, nil, errs.Validation("CART_EMPTY", "cart has no items")
	}

	order := buildOrder(id, in)
	if err := s.Orders.InsertOrder(ctx, tx, &order); err != nil {
		return orders.Order{}, nil, err
	}

	var (
		items []orders.OrderItem
		qtys  []orders.ItemQty
		total = decimal.Zero
	)
	for _, ci := range cartItems {
		discounts, err := activeDiscounts(ctx, tx, ci.ProductID)
		if err != nil {
			return orders.Order{}, nil, err
		}
		priced, err := pricing.Calculate(ci.PriceAtAdd, ci.Quantity, discounts)
		if err != nil {
			return orders.Order{}, nil, err
		}

		it := orders.OrderItem{
			OrderID:   order.ID,
			ProductID: ci.ProductID,
			Quantity:  ci.Quantity,
			UnitPrice: ci.PriceAtAdd,
			LineTotal: priced.FinalPrice,
		}
		if d := priced.AppliedDiscount; d != nil {
			typ := string(d.Type)
			val := d.Value
			it.DiscountType = &typ
			it.DiscountValue = &val
		}
		if err := s.Orders.InsertOrderItem(ctx, tx, &it); err != nil {
			return orders.Order{}, nil, err
		}
		items = append(items, it)
		qtys = append(qtys, orders.ItemQty{ProductID: ci.ProductID, Qty: ci.Quantity})
		total = total.Add(priced.FinalPrice)
	}

	if err := s.Engine.ReserveForCheckout(ctx, tx, order.ID, qtys, id.IsAnonymous()); err != nil {
		return orders.Order{}, nil, err
	}
	if err := s.Carts.MarkConverted(ctx, tx, cart.ID); err != nil {
		return orders.Order{}, nil, err
	}

	if err := outbox.Insert(ctx, tx, outbox.TopicOrderCreated, strconv.FormatInt(order.ID, 10), map[string]any{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"guest":    order.IsGuest(),
		"items":    len(items),
		"total":    total.StringFixed(2),
	}); err != nil {
		return orders.Order{}, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return orders.Order{}, nil, err
	}

	s.Audit.Emit(ctx, audit.Event{
		EntityType:  "order",
		EntityID:    strconv.FormatInt(order.ID, 10),
		Action:      audit.ActionCheckoutCompleted,
		ActorType:   "CUSTOMER",
		ActorUserID: order.UserID,
		Metadata:    map[string]any{"cart_id": cart.ID, "total": total.StringFixed(2)},
	})
	return order, items, nil
}

func buildOrder(id carts.Identity, in Input) orders.Order {
	o := orders.Order{
		CustomerEmail:           in.Email,
		CustomerEmailNormalized: orders.NormalizeEmail(in.Email),

		ShippingName:         in.ShippingName,
		ShippingAddressLine1: in.ShippingAddressLine1,
		ShippingAddressLine2: in.ShippingAddressLine2,
		ShippingCity:         in.ShippingCity,
		ShippingPostalCode:   in.ShippingPostalCode,
		ShippingCountry:      in.ShippingCountry,
		ShippingPhone:        in.ShippingPhone,

		BillingSameAsShipping: in.BillingSameAsShipping,
	}
	if !id.IsAnonymous() {
		uid := id.UserID
		o.UserID = &uid
	}
	if !in.BillingSameAsShipping {
		o.BillingName = in.BillingName
		o.BillingAddressLine1 = in.BillingAddressLine1
		o.BillingAddressLine2 = in.BillingAddressLine2
		o.BillingCity = in.BillingCity
		o.BillingPostalCode = in.BillingPostalCode
		o.BillingCountry = in.BillingCountry
		o.BillingPhone = in.BillingPhone
	}
	return o
}

func validate(in Input) error {
	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return errs.Validation("INVALID_EMAIL", "a valid customer email is required")
	}
	shipping := map[string]string{
		"shipping_name":          in.ShippingName,
		"shipping_address_line1": in.ShippingAddressLine1,
		"shipping_city":          in.ShippingCity,
		"shipping_postal_code":   in.ShippingPostalCode,
		"shipping_country":       in.ShippingCountry,
		"shipping_phone":         in.ShippingPhone,
	}
	for field, v := range shipping {
		if strings.TrimSpace(v) == "" {
			return errs.Validation("MISSING_FIELD", field+" is required")
		}
	}
	if !in.BillingSameAsShipping {
		billing := map[string]string{
			"billing_name":          in.BillingName,
			"billing_address_line1": in.BillingAddressLine1,
			"billing_city":          in.BillingCity,
			"billing_postal_code":   in.BillingPostalCode,
			"billing_country":       in.BillingCountry,
			"billing_phone":         in.BillingPhone,
		}
		for field, v := range billing {
			if strings.TrimSpace(v) == "" {
				return errs.Validation("MISSING_FIELD", field+" is required")
			}
		}
	}
	return nil
}

func activeDiscounts(ctx context.Context, tx pgx.Tx, productID int64) ([]pricing.Discount, error) {
	rows, err := tx.Query(ctx, `
		SELECT discount_type, value FROM discounts
		WHERE product_id = $1 AND active
		  AND (starts_at IS NULL OR starts_at <= now())
		  AND (ends_at IS NULL OR ends_at > now())
		ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pricing.Discount
	for rows.Next() {
		var d pricing.Discount
		var typ string
		if err := rows.Scan(&typ, &d.Value); err != nil {
			return nil, err
		}
		d.Type = pricing.DiscountType(typ)
		d.Active = true
		out = append(out, d)
	}
	return out, rows.Err()
}
