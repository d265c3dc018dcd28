package carts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id, productID int64, qty int) CartItem {
	return CartItem{ID: id, ProductID: productID, Quantity: qty, PriceAtAdd: decimal.New(999, -2)}
}

func TestPlanMergeDisjointCarts(t *testing.T) {
	plan, err := planMerge(
		[]CartItem{item(1, 10, 2)},
		[]CartItem{item(2, 20, 1), item(3, 30, 4)},
		map[int64]int{20: 5, 30: 5},
	)
	require.NoError(t, err)
	assert.Empty(t, plan.Updates)
	assert.Empty(t, plan.DropIDs)
	assert.ElementsMatch(t, []int64{2, 3}, plan.MoveIDs)
}

func TestPlanMergeOverlapSumsQuantities(t *testing.T) {
	plan, err := planMerge(
		[]CartItem{item(1, 10, 2)},
		[]CartItem{item(2, 10, 3)},
		map[int64]int{10: 5},
	)
	require.NoError(t, err)
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, int64(10), plan.Updates[0].ProductID)
	assert.Equal(t, 5, plan.Updates[0].Quantity)
	assert.Equal(t, []int64{2}, plan.DropIDs)
	assert.Empty(t, plan.MoveIDs)
}

func TestPlanMergeStockConflictAbortsWholeMerge(t *testing.T) {
	_, err := planMerge(
		[]CartItem{item(1, 10, 3)},
		[]CartItem{item(2, 10, 3), item(3, 20, 1)},
		map[int64]int{10: 5, 20: 5},
	)
	assert.ErrorIs(t, err, ErrMergeStockConflict)
}

func TestPlanMergeGuestOnlyLineOverStock(t *testing.T) {
	_, err := planMerge(
		nil,
		[]CartItem{item(1, 20, 6)},
		map[int64]int{20: 5},
	)
	assert.ErrorIs(t, err, ErrMergeStockConflict)
}

func TestPlanMergeEmptyGuestCart(t *testing.T) {
	plan, err := planMerge([]CartItem{item(1, 10, 1)}, nil, map[int64]int{})
	require.NoError(t, err)
	assert.Empty(t, plan.Updates)
	assert.Empty(t, plan.MoveIDs)
	assert.Empty(t, plan.DropIDs)
}
