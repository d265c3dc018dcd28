package carts

import "github.com/shopforge/go-shop-orders/internal/errs"

var (
	ErrCartNotFound    = errs.NotFound("cart not found")
	ErrProductNotFound = errs.NotFound("product not found")

	// ErrCartNotActive covers CONVERTED and MERGED carts alike: the cart can
	// no longer be mutated.
	ErrCartNotActive = errs.Conflict("CART_ALREADY_CHECKED_OUT", "cart is no longer active")

	// ErrMergeStockConflict aborts the whole merge: no partial merges.
	ErrMergeStockConflict = errs.Conflict("CART_MERGE_STOCK_CONFLICT", "insufficient stock to merge carts")
)
