package carts_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopforge/go-shop-orders/internal/carts"
	"github.com/shopforge/go-shop-orders/internal/testdb"
)

type fixture struct {
	pool *pgxpool.Pool
	repo *carts.Repo
	svc  *carts.Service
}

func newFixture(t *testing.T) *fixture {
	pool := testdb.Start(t)
	repo := &carts.Repo{DB: pool}
	return &fixture{
		pool: pool,
		repo: repo,
		svc:  &carts.Service{DB: pool, Repo: repo},
	}
}

func (f *fixture) createProduct(t *testing.T, sku, price string, stock int) int64 {
	t.Helper()
	var id int64
	err := f.pool.QueryRow(context.Background(), `
		INSERT INTO products(sku, name, price, stock_quantity)
		VALUES ($1, $1, $2, $3) RETURNING id`, sku, price, stock).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestResolveOrCreateAnonymous(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cart, created, token, err := f.repo.ResolveOrCreate(ctx, carts.Identity{})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotEmpty(t, token)
	assert.True(t, cart.IsAnonymous())

	// The same token resolves to the same cart; the raw token is never stored.
	again, created, newToken, err := f.repo.ResolveOrCreate(ctx, carts.Identity{CartToken: token})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, newToken)
	assert.Equal(t, cart.ID, again.ID)

	var stored string
	require.NoError(t, f.pool.QueryRow(ctx, `
		SELECT anonymous_token_hash FROM carts WHERE id = $1`, cart.ID).Scan(&stored))
	assert.NotEqual(t, token, stored)
	assert.Equal(t, carts.HashToken(token), stored)
}

func TestResolveOrCreateStaleTokenGetsFreshCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cart, _, token, err := f.repo.ResolveOrCreate(ctx, carts.Identity{CartToken: "no-such-token"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, cart.IsAnonymous())
}

func TestResolveOrCreateUserReusesActiveCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := carts.Identity{UserID: 1}

	cart, created, _, err := f.repo.ResolveOrCreate(ctx, id)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, cart.UserID)
	assert.Equal(t, int64(1), *cart.UserID)

	again, created, _, err := f.repo.ResolveOrCreate(ctx, id)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cart.ID, again.ID)
}

func TestResolveOrCreateAfterConversion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := carts.Identity{UserID: 1}

	cart, _, _, err := f.repo.ResolveOrCreate(ctx, id)
	require.NoError(t, err)

	_, err = f.pool.Exec(ctx, `UPDATE carts SET status = 'CONVERTED' WHERE id = $1`, cart.ID)
	require.NoError(t, err)

	fresh, created, _, err := f.repo.ResolveOrCreate(ctx, id)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, cart.ID, fresh.ID)
}

func TestAddItemSnapshotsPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.createProduct(t, "SKU-1", "19.99", 10)

	cart, _, _, err := f.repo.ResolveOrCreate(ctx, carts.Identity{UserID: 1})
	require.NoError(t, err)

	it, err := f.repo.AddItem(ctx, cart.ID, productID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, it.Quantity)
	assert.True(t, it.PriceAtAdd.Equal(decimal.RequireFromString("19.99")))

	// Price changes after add do not touch the snapshot; re-adding stacks
	// quantity on the original line.
	_, err = f.pool.Exec(ctx, `UPDATE products SET price = 29.99 WHERE id = $1`, productID)
	require.NoError(t, err)

	it, err = f.repo.AddItem(ctx, cart.ID, productID, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, it.Quantity)
	assert.True(t, it.PriceAtAdd.Equal(decimal.RequireFromString("19.99")))
}

func TestAddItemValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.createProduct(t, "SKU-1", "5.00", 10)

	cart, _, _, err := f.repo.ResolveOrCreate(ctx, carts.Identity{UserID: 1})
	require.NoError(t, err)

	_, err = f.repo.AddItem(ctx, cart.ID, productID, 0)
	assert.Error(t, err)

	_, err = f.repo.AddItem(ctx, cart.ID, 99999, 1)
	assert.ErrorIs(t, err, carts.ErrProductNotFound)

	// Inactive products cannot be added.
	_, err = f.pool.Exec(ctx, `UPDATE products SET active = FALSE WHERE id = $1`, productID)
	require.NoError(t, err)
	_, err = f.repo.AddItem(ctx, cart.ID, productID, 1)
	assert.ErrorIs(t, err, carts.ErrProductNotFound)
}

func TestUpdateAndRemoveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.createProduct(t, "SKU-1", "5.00", 10)

	cart, _, _, err := f.repo.ResolveOrCreate(ctx, carts.Identity{UserID: 1})
	require.NoError(t, err)
	_, err = f.repo.AddItem(ctx, cart.ID, productID, 2)
	require.NoError(t, err)

	it, err := f.repo.UpdateItemQuantity(ctx, cart.ID, productID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, it.Quantity)

	// Zero quantity removes the line.
	_, err = f.repo.UpdateItemQuantity(ctx, cart.ID, productID, 0)
	require.NoError(t, err)
	items, err := f.repo.ItemsForCart(ctx, f.pool, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	// Removing an absent line is a no-op.
	require.NoError(t, f.repo.RemoveItem(ctx, cart.ID, productID))
}

func TestConvertedCartRejectsMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.createProduct(t, "SKU-1", "5.00", 10)

	cart, _, _, err := f.repo.ResolveOrCreate(ctx, carts.Identity{UserID: 1})
	require.NoError(t, err)
	_, err = f.pool.Exec(ctx, `UPDATE carts SET status = 'CONVERTED' WHERE id = $1`, cart.ID)
	require.NoError(t, err)

	_, err = f.repo.AddItem(ctx, cart.ID, productID, 1)
	assert.ErrorIs(t, err, carts.ErrCartNotActive)
}

func TestMergeAdoptsGuestCartWhenUserHasNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.createProduct(t, "SKU-1", "5.00", 10)

	guestCart, _, token, err := f.repo.ResolveOrCreate(ctx, carts.Identity{})
	require.NoError(t, err)
	_, err = f.repo.AddItem(ctx, guestCart.ID, productID, 2)
	require.NoError(t, err)

	require.NoError(t, f.svc.MergeOrAdoptGuestCart(ctx, 1, token))

	cart, created, _, err := f.repo.ResolveOrCreate(ctx, carts.Identity{UserID: 1})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, guestCart.ID, cart.ID)
	assert.Equal(t, carts.StatusActive, cart.Status)
	require.NotNil(t, cart.UserID)
	assert.Equal(t, int64(1), *cart.UserID)
	assert.Nil(t, cart.TokenHash)
}

func TestMergeCombinesLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shared := f.createProduct(t, "SKU-1", "5.00", 10)
	guestOnly := f.createProduct(t, "SKU-2", "7.00", 10)

	userCart, _, _, err := f.repo.ResolveOrCreate(ctx, carts.Identity{UserID: 1})
	require.NoError(t, err)
	_, err = f.repo.AddItem(ctx, userCart.ID, shared, 2)
	require.NoError(t, err)

	guestCart, _, token, err := f.repo.ResolveOrCreate(ctx, carts.Identity{})
	require.NoError(t, err)
	_, err = f.repo.AddItem(ctx, guestCart.ID, shared, 3)
	require.NoError(t, err)
	_, err = f.repo.AddItem(ctx, guestCart.ID, guestOnly, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.MergeOrAdoptGuestCart(ctx, 1, token))

	items, err := f.repo.ItemsForCart(ctx, f.pool, userCart.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	byProduct := map[int64]int{}
	for _, it := range items {
		byProduct[it.ProductID] = it.Quantity
	}
	assert.Equal(t, 5, byProduct[shared])
	assert.Equal(t, 1, byProduct[guestOnly])

	merged, err := f.repo.GetCart(ctx, f.pool, guestCart.ID)
	require.NoError(t, err)
	assert.Equal(t, carts.StatusMerged, merged.Status)
	require.NotNil(t, merged.MergedIntoCartID)
	assert.Equal(t, userCart.ID, *merged.MergedIntoCartID)
	assert.NotNil(t, merged.MergedAt)
	assert.Nil(t, merged.TokenHash)

	// The dead token no longer resolves; replaying the merge is harmless.
	require.NoError(t, f.svc.MergeOrAdoptGuestCart(ctx, 1, token))
}

func TestMergeStockConflictAborts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.createProduct(t, "SKU-1", "5.00", 4)

	userCart, _, _, err := f.repo.ResolveOrCreate(ctx, carts.Identity{UserID: 1})
	require.NoError(t, err)
	_, err = f.repo.AddItem(ctx, userCart.ID, productID, 3)
	require.NoError(t, err)

	guestCart, _, token, err := f.repo.ResolveOrCreate(ctx, carts.Identity{})
	require.NoError(t, err)
	_, err = f.repo.AddItem(ctx, guestCart.ID, productID, 3)
	require.NoError(t, err)

	err = f.svc.MergeOrAdoptGuestCart(ctx, 1, token)
	assert.ErrorIs(t, err, carts.ErrMergeStockConflict)

	// Both carts are untouched.
	userItems, err := f.repo.ItemsForCart(ctx, f.pool, userCart.ID)
	require.NoError(t, err)
	require.Len(t, userItems, 1)
	assert.Equal(t, 3, userItems[0].Quantity)

	still, err := f.repo.GetCart(ctx, f.pool, guestCart.ID)
	require.NoError(t, err)
	assert.Equal(t, carts.StatusActive, still.Status)
}

func TestMergeIgnoresReservationHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.createProduct(t, "SKU-1", "5.00", 5)

	userCart, _, _, err := f.repo.ResolveOrCreate(ctx, carts.Identity{UserID: 1})
	require.NoError(t, err)
	_, err = f.repo.AddItem(ctx, userCart.ID, productID, 2)
	require.NoError(t, err)

	guestCart, _, token, err := f.repo.ResolveOrCreate(ctx, carts.Identity{})
	require.NoError(t, err)
	_, err = f.repo.AddItem(ctx, guestCart.ID, productID, 1)
	require.NoError(t, err)

	// Another order holds 3 of the 5 units. The merge check compares the
	// combined quantity against physical stock only, so 3 <= 5 passes even
	// though only 2 units are unreserved.
	var orderID int64
	require.NoError(t, f.pool.QueryRow(ctx, `
		INSERT INTO orders(customer_email, customer_email_normalized,
		                   shipping_name, shipping_address_line1, shipping_city,
		                   shipping_postal_code, shipping_country, shipping_phone)
		VALUES ('a@b.com', 'a@b.com', 'A', '1 Way', 'Town', '11111', 'US', '555')
		RETURNING id`).Scan(&orderID))
	_, err = f.pool.Exec(ctx, `
		INSERT INTO inventory_reservations(order_id, product_id, quantity, status, expires_at)
		VALUES ($1, $2, 3, 'ACTIVE', now() + interval '1 hour')`, orderID, productID)
	require.NoError(t, err)

	require.NoError(t, f.svc.MergeOrAdoptGuestCart(ctx, 1, token))

	items, err := f.repo.ItemsForCart(ctx, f.pool, userCart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestCleanupAnonymousCarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, _, _, err := f.repo.ResolveOrCreate(ctx, carts.Identity{})
	require.NoError(t, err)
	_, err = f.pool.Exec(ctx, `
		UPDATE carts SET created_at = now() - interval '60 days' WHERE id = $1`, stale.ID)
	require.NoError(t, err)

	fresh, _, _, err := f.repo.ResolveOrCreate(ctx, carts.Identity{})
	require.NoError(t, err)

	userCart, _, _, err := f.repo.ResolveOrCreate(ctx, carts.Identity{UserID: 1})
	require.NoError(t, err)
	_, err = f.pool.Exec(ctx, `
		UPDATE carts SET created_at = now() - interval '60 days' WHERE id = $1`, userCart.ID)
	require.NoError(t, err)

	deleted, err := f.repo.CleanupAnonymousCarts(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = f.repo.GetCart(ctx, f.pool, stale.ID)
	assert.ErrorIs(t, err, carts.ErrCartNotFound)
	_, err = f.repo.GetCart(ctx, f.pool, fresh.ID)
	assert.NoError(t, err)
	_, err = f.repo.GetCart(ctx, f.pool, userCart.ID)
	assert.NoError(t, err)
}
