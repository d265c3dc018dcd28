package orders

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopforge/go-shop-orders/internal/postgres"
)

type Repo struct{ DB *pgxpool.Pool }

// InsertOrder persists a new CREATED order on the caller's transaction and
// fills in ID and CreatedAt.
func (r *Repo) InsertOrder(ctx context.Context, q postgres.Queryer, o *Order) error {
	return q.QueryRow(ctx, `
		INSERT INTO orders(
			user_id, customer_email, customer_email_normalized,
			shipping_name, shipping_address_line1, shipping_address_line2,
			shipping_city, shipping_postal_code, shipping_country, shipping_phone,
			billing_same_as_shipping, billing_name, billing_address_line1, billing_address_line2,
			billing_city, billing_postal_code, billing_country, billing_phone,
			status
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,'CREATED')
		RETURNING id, status, created_at`,
		o.UserID, o.CustomerEmail, o.CustomerEmailNormalized,
		o.ShippingName, o.ShippingAddressLine1, o.ShippingAddressLine2,
		o.ShippingCity, o.ShippingPostalCode, o.ShippingCountry, o.ShippingPhone,
		o.BillingSameAsShipping, nullable(o.BillingName), nullable(o.BillingAddressLine1), nullable(o.BillingAddressLine2),
		nullable(o.BillingCity), nullable(o.BillingPostalCode), nullable(o.BillingCountry), nullable(o.BillingPhone),
	).Scan(&o.ID, &o.Status, &o.CreatedAt)
}

func (r *Repo) InsertOrderItem(ctx context.Context, q postgres.Queryer, it *OrderItem) error {
	return q.QueryRow(ctx, `
		INSERT INTO order_items(order_id, product_id, quantity, unit_price, line_total, discount_type, discount_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		it.OrderID, it.ProductID, it.Quantity, it.UnitPrice, it.LineTotal, it.DiscountType, it.DiscountValue,
	).Scan(&it.ID)
}

const orderColumns = `
	id, user_id, status, customer_email, customer_email_normalized,
	shipping_name, shipping_address_line1, COALESCE(shipping_address_line2, ''),
	shipping_city, shipping_postal_code, shipping_country, shipping_phone,
	billing_same_as_shipping,
	COALESCE(billing_name, ''), COALESCE(billing_address_line1, ''), COALESCE(billing_address_line2, ''),
	COALESCE(billing_city, ''), COALESCE(billing_postal_code, ''), COALESCE(billing_country, ''), COALESCE(billing_phone, ''),
	is_claimed, claimed_at, claimed_by_user_id,
	cancel_reason, cancelled_by, cancelled_at, created_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.CustomerEmail, &o.CustomerEmailNormalized,
		&o.ShippingName, &o.ShippingAddressLine1, &o.ShippingAddressLine2,
		&o.ShippingCity, &o.ShippingPostalCode, &o.ShippingCountry, &o.ShippingPhone,
		&o.BillingSameAsShipping,
		&o.BillingName, &o.BillingAddressLine1, &o.BillingAddressLine2,
		&o.BillingCity, &o.BillingPostalCode, &o.BillingCountry, &o.BillingPhone,
		&o.IsClaimed, &o.ClaimedAt, &o.ClaimedByUserID,
		&o.CancelReason, &o.CancelledBy, &o.CancelledAt, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) GetOrder(ctx context.Context, q postgres.Queryer, orderID int64) (Order, error) {
	return scanOrder(q.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, orderID))
}

// GetOrderForUser scopes the lookup to the caller's own orders. A foreign or
// missing order yields the same NotFound.
func (r *Repo) GetOrderForUser(ctx context.Context, q postgres.Queryer, orderID, userID int64) (Order, error) {
	return scanOrder(q.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, orderID, userID))
}

func (r *Repo) ListOrdersForUser(ctx context.Context, userID int64) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT`+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) ItemsForOrder(ctx context.Context, q postgres.Queryer, orderID int64) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, line_total, discount_type, discount_value
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.LineTotal, &it.DiscountType, &it.DiscountValue); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, name, price, stock_quantity, active, created_at, updated_at
		FROM products WHERE active ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.StockQuantity, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
