package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopforge/go-shop-orders/internal/errs"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateNoDiscount(t *testing.T) {
	res, err := Calculate(d("19.99"), 3, nil)
	require.NoError(t, err)
	assert.True(t, res.UnitPrice.Equal(d("19.99")))
	assert.True(t, res.FinalPrice.Equal(d("59.97")))
	assert.Nil(t, res.AppliedDiscount)
}

func TestCalculatePercentDiscount(t *testing.T) {
	res, err := Calculate(d("100.00"), 2, []Discount{
		{Type: DiscountPercent, Value: d("25"), Active: true},
	})
	require.NoError(t, err)
	assert.True(t, res.UnitPrice.Equal(d("75.00")))
	assert.True(t, res.FinalPrice.Equal(d("150.00")))
	require.NotNil(t, res.AppliedDiscount)
	assert.Equal(t, DiscountPercent, res.AppliedDiscount.Type)
}

func TestCalculateFixedBeatsPercent(t *testing.T) {
	res, err := Calculate(d("50.00"), 1, []Discount{
		{Type: DiscountPercent, Value: d("90"), Active: true},
		{Type: DiscountFixed, Value: d("5.00"), Active: true},
	})
	require.NoError(t, err)
	require.NotNil(t, res.AppliedDiscount)
	assert.Equal(t, DiscountFixed, res.AppliedDiscount.Type)
	assert.True(t, res.UnitPrice.Equal(d("45.00")))
}

func TestCalculateInactiveDiscountIgnored(t *testing.T) {
	res, err := Calculate(d("10.00"), 1, []Discount{
		{Type: DiscountFixed, Value: d("5.00"), Active: false},
	})
	require.NoError(t, err)
	assert.Nil(t, res.AppliedDiscount)
	assert.True(t, res.UnitPrice.Equal(d("10.00")))
}

func TestCalculateFlooredAtZero(t *testing.T) {
	res, err := Calculate(d("3.00"), 2, []Discount{
		{Type: DiscountFixed, Value: d("10.00"), Active: true},
	})
	require.NoError(t, err)
	assert.True(t, res.UnitPrice.IsZero())
	assert.True(t, res.FinalPrice.IsZero())
}

func TestCalculateRoundsHalfUp(t *testing.T) {
	// 10.00 at 12.5% off: unit 8.75, no rounding drift across the line.
	res, err := Calculate(d("10.00"), 3, []Discount{
		{Type: DiscountPercent, Value: d("12.5"), Active: true},
	})
	require.NoError(t, err)
	assert.True(t, res.UnitPrice.Equal(d("8.75")))
	assert.True(t, res.FinalPrice.Equal(d("26.25")))

	// .005 boundary rounds up.
	res, err = Calculate(d("0.01"), 1, []Discount{
		{Type: DiscountPercent, Value: d("50"), Active: true},
	})
	require.NoError(t, err)
	assert.True(t, res.UnitPrice.Equal(d("0.01")))
}

func TestCalculateRejectsBadInput(t *testing.T) {
	_, err := Calculate(d("10.00"), 0, nil)
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = Calculate(d("10.00"), -1, nil)
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = Calculate(d("-1.00"), 1, nil)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}
