package carts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shopforge/go-shop-orders/internal/errs"
)

// lockMutableCart locks the cart row and verifies it can still be mutated.
func lockMutableCart(ctx context.Context, tx pgx.Tx, cartID int64) error {
	var status Status
	err := tx.QueryRow(ctx, `SELECT status FROM carts WHERE id = $1 FOR UPDATE`, cartID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCartNotFound
	}
	if err != nil {
		return err
	}
	if status != StatusActive {
		return ErrCartNotActive
	}
	return nil
}

// AddItem adds quantity of a product to the cart, snapshotting the product's
// current price on first add. Adding an existing product bumps its quantity
// and keeps the original snapshot.
func (r *Repo) AddItem(ctx context.Context, cartID, productID int64, quantity int) (CartItem, error) {
	if quantity <= 0 {
		return CartItem{}, errs.Validation("INVALID_QUANTITY", "quantity must be a positive integer")
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return CartItem{}, err
	}
	defer tx.Rollback(ctx)

	if err := lockMutableCart(ctx, tx, cartID); err != nil {
		return CartItem{}, err
	}

	var price decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT price FROM products WHERE id = $1 AND active`, productID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return CartItem{}, ErrProductNotFound
	}
	if err != nil {
		return CartItem{}, err
	}

	var it CartItem
	err = tx.QueryRow(ctx, `
		INSERT INTO cart_items(cart_id, product_id, quantity, price_at_add)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, cart_id, product_id, quantity, price_at_add`,
		cartID, productID, quantity, price).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.PriceAtAdd)
	if err != nil {
		return CartItem{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CartItem{}, err
	}
	return it, nil
}

// UpdateItemQuantity sets the absolute quantity of a line. Zero removes it.
func (r *Repo) UpdateItemQuantity(ctx context.Context, cartID, productID int64, quantity int) (CartItem, error) {
	if quantity < 0 {
		return CartItem{}, errs.Validation("INVALID_QUANTITY", "quantity must not be negative")
	}
	if quantity == 0 {
		return CartItem{}, r.RemoveItem(ctx, cartID, productID)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return CartItem{}, err
	}
	defer tx.Rollback(ctx)

	if err := lockMutableCart(ctx, tx, cartID); err != nil {
		return CartItem{}, err
	}

	var it CartItem
	err = tx.QueryRow(ctx, `
		UPDATE cart_items SET quantity = $3
		WHERE cart_id = $1 AND product_id = $2
		RETURNING id, cart_id, product_id, quantity, price_at_add`,
		cartID, productID, quantity).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.PriceAtAdd)
	if errors.Is(err, pgx.ErrNoRows) {
		return CartItem{}, errs.NotFound("cart item not found")
	}
	if err != nil {
		return CartItem{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CartItem{}, err
	}
	return it, nil
}

// RemoveItem deletes a line from the cart. Removing an absent line is a
// no-op.
func (r *Repo) RemoveItem(ctx context.Context, cartID, productID int64) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockMutableCart(ctx, tx, cartID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
