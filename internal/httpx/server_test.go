package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopforge/go-shop-orders/internal/httpx"
	"github.com/shopforge/go-shop-orders/internal/orders"
	"github.com/shopforge/go-shop-orders/internal/redisx"
	"github.com/shopforge/go-shop-orders/internal/testdb"
)

type serverFixture struct {
	pool   *pgxpool.Pool
	cache  *redisx.StatusCache
	router http.Handler
}

func newServerFixture(t *testing.T) *serverFixture {
	pool := testdb.Start(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redisx.New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	cache := &redisx.StatusCache{RDB: rdb}

	repo := &orders.Repo{DB: pool}
	engine := &orders.ReservationEngine{
		DB:       pool,
		GuestTTL: 15 * time.Minute,
		AuthTTL:  2 * time.Hour,
	}
	srv := &httpx.Server{
		Orders:   repo,
		OrderSvc: &orders.Service{DB: pool, Repo: repo, Engine: engine},
		Engine:   engine,
		Cache:    cache,
	}
	return &serverFixture{pool: pool, cache: cache, router: srv.NewRouter()}
}

func (f *serverFixture) createOrderWithHold(t *testing.T, stock, qty int) int64 {
	t.Helper()
	ctx := context.Background()

	var productID int64
	require.NoError(t, f.pool.QueryRow(ctx, `
		INSERT INTO products(sku, name, price, stock_quantity)
		VALUES ('SKU-1', 'SKU-1', 25.00, $1) RETURNING id`, stock).Scan(&productID))

	var orderID int64
	require.NoError(t, f.pool.QueryRow(ctx, `
		INSERT INTO orders(customer_email, customer_email_normalized,
		                   shipping_name, shipping_address_line1, shipping_city,
		                   shipping_postal_code, shipping_country, shipping_phone)
		VALUES ('buyer@example.com', 'buyer@example.com', 'Buyer', '1 Main St',
		        'Springfield', '12345', 'US', '555-0100')
		RETURNING id`).Scan(&orderID))
	_, err := f.pool.Exec(ctx, `
		INSERT INTO inventory_reservations(order_id, product_id, quantity, status, expires_at)
		VALUES ($1, $2, $3, 'ACTIVE', now() + interval '1 hour')`, orderID, productID, qty)
	require.NoError(t, err)
	return orderID
}

func (f *serverFixture) postPayment(t *testing.T, orderID int64, result string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost,
		"/orders/"+strconv.FormatInt(orderID, 10)+"/payments",
		strings.NewReader(`{"result":"`+result+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestApplyPaymentInvalidatesStatusCache(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()
	orderID := f.createOrderWithHold(t, 10, 2)

	f.cache.Set(ctx, orderID, "CREATED")

	rec := f.postPayment(t, orderID, "success")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	_, ok := f.cache.Get(ctx, orderID)
	assert.False(t, ok)
}

func TestApplyPaymentRejectionLeavesStatusCache(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()
	orderID := f.createOrderWithHold(t, 10, 2)

	_, err := f.pool.Exec(ctx, `UPDATE orders SET status = 'CANCELLED' WHERE id = $1`, orderID)
	require.NoError(t, err)
	f.cache.Set(ctx, orderID, "CANCELLED")

	rec := f.postPayment(t, orderID, "success")
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	// Nothing changed, so the cached status stays valid.
	v, ok := f.cache.Get(ctx, orderID)
	require.True(t, ok)
	assert.Equal(t, "CANCELLED", v)
}

func TestApplyPaymentShortfallInvalidatesStatusCache(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()
	orderID := f.createOrderWithHold(t, 1, 2)

	f.cache.Set(ctx, orderID, "CREATED")

	// The commit shortfall cancels the order before reporting the conflict,
	// so the stale entry must still be dropped.
	rec := f.postPayment(t, orderID, "success")
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	_, ok := f.cache.Get(ctx, orderID)
	assert.False(t, ok)
}
