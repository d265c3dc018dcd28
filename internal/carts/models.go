package carts

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusConverted Status = "CONVERTED"
	StatusMerged    Status = "MERGED"
)

// Cart is owned by a user XOR addressed by an anonymous token hash, never
// both. MERGED carts are terminal and carry a reference to the surviving cart.
type Cart struct {
	ID               int64
	UserID           *int64
	TokenHash        *string
	Status           Status
	MergedIntoCartID *int64
	MergedAt         *time.Time
	CreatedAt        time.Time
}

func (c *Cart) IsAnonymous() bool { return c.UserID == nil }

// CartItem snapshots the product price at add time; later price changes do
// not affect it.
type CartItem struct {
	ID         int64
	CartID     int64
	ProductID  int64
	Quantity   int
	PriceAtAdd decimal.Decimal
}

// Identity describes the caller as established by the upstream auth layer.
// UserID zero means anonymous.
type Identity struct {
	UserID        int64
	Email         string
	EmailVerified bool
	CartToken     string
}

func (id Identity) IsAnonymous() bool { return id.UserID == 0 }
