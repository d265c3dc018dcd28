// Package pricing is the pure price calculation consumed by checkout. It has
// no storage dependencies; callers load the candidate discounts.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/shopforge/go-shop-orders/internal/errs"
)

type DiscountType string

const (
	DiscountFixed   DiscountType = "FIXED"
	DiscountPercent DiscountType = "PERCENT"
)

type Discount struct {
	Type   DiscountType
	Value  decimal.Decimal
	Active bool
}

type Result struct {
	// BasePrice is the exact pre-discount line price, unrounded.
	BasePrice decimal.Decimal
	// UnitPrice is the discounted per-unit price, rounded half-up to 2 decimals.
	UnitPrice decimal.Decimal
	// FinalPrice is the rounded line total.
	FinalPrice decimal.Decimal
	// AppliedDiscount is nil when no valid discount applied.
	AppliedDiscount *Discount
}

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// Calculate applies at most one discount per unit (a fixed discount wins over
// a percent one), floors the discounted unit at zero, and rounds half-up to
// 2 decimals before deriving the line total.
func Calculate(unitPrice decimal.Decimal, quantity int, discounts []Discount) (Result, error) {
	if quantity <= 0 {
		return Result{}, errs.Validation("INVALID_QUANTITY", "quantity must be greater than zero")
	}
	if unitPrice.IsNegative() {
		return Result{}, errs.Validation("INVALID_PRICE", "unit price cannot be negative")
	}

	qty := decimal.NewFromInt(int64(quantity))
	basePrice := unitPrice.Mul(qty)

	var applied *Discount
	for i := range discounts {
		d := &discounts[i]
		if !d.Active {
			continue
		}
		switch d.Type {
		case DiscountFixed:
			if applied == nil || applied.Type != DiscountFixed {
				applied = d
			}
		case DiscountPercent:
			if applied == nil {
				applied = d
			}
		}
		if applied != nil && applied.Type == DiscountFixed {
			break
		}
	}

	discountedUnit := unitPrice
	if applied != nil {
		switch applied.Type {
		case DiscountFixed:
			discountedUnit = unitPrice.Sub(applied.Value)
		case DiscountPercent:
			discountedUnit = unitPrice.Mul(decimal.NewFromInt(1).Sub(applied.Value.Div(hundred)))
		}
	}
	if discountedUnit.IsNegative() {
		discountedUnit = zero
	}

	discountedUnit = roundHalfUp(discountedUnit)
	lineTotal := roundHalfUp(discountedUnit.Mul(qty))

	return Result{
		BasePrice:       basePrice,
		UnitPrice:       discountedUnit,
		FinalPrice:      lineTotal,
		AppliedDiscount: applied,
	}, nil
}

func roundHalfUp(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
