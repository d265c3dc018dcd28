package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64
	SKU           string
	Name          string
	Price         decimal.Decimal
	StockQuantity int
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type CancelReason string

const (
	CancelReasonCustomerRequest CancelReason = "CUSTOMER_REQUEST"
	CancelReasonAdminRequest    CancelReason = "ADMIN_REQUEST"
	CancelReasonPaymentFailed   CancelReason = "PAYMENT_FAILED"
	CancelReasonPaymentExpired  CancelReason = "PAYMENT_EXPIRED"
	CancelReasonOutOfStock      CancelReason = "OUT_OF_STOCK"
)

type Order struct {
	ID     int64
	UserID *int64 // nil = guest order
	Status Status

	CustomerEmail           string
	CustomerEmailNormalized string

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

	IsClaimed       bool
	ClaimedAt       *time.Time
	ClaimedByUserID *int64

	CancelReason *CancelReason
	CancelledBy  *Actor
	CancelledAt  *time.Time

	CreatedAt time.Time
}

func (o *Order) IsGuest() bool { return o.UserID == nil }

type OrderItem struct {
	ID            int64
	OrderID       int64
	ProductID     int64
	Quantity      int
	UnitPrice     decimal.Decimal
	LineTotal     decimal.Decimal
	DiscountType  *string
	DiscountValue *decimal.Decimal
}

type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

type Payment struct {
	ID        int64
	OrderID   int64
	Status    PaymentStatus
	CreatedAt time.Time
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationCommitted ReservationStatus = "COMMITTED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

type ReleaseReason string

const (
	ReleaseCustomerRequest ReleaseReason = "CUSTOMER_REQUEST"
	ReleaseAdminRequest    ReleaseReason = "ADMIN_REQUEST"
	ReleasePaymentExpired  ReleaseReason = "PAYMENT_EXPIRED"
	ReleaseOutOfStock      ReleaseReason = "OUT_OF_STOCK"
)

// Reservation is a soft, time-bounded hold against a product's stock. It never
// mutates the physical stock_quantity; only a commit does.
type Reservation struct {
	ID            int64
	OrderID       int64
	ProductID     int64
	Quantity      int
	Status        ReservationStatus
	ExpiresAt     time.Time
	CommittedAt   *time.Time
	ReleasedAt    *time.Time
	ReleaseReason *ReleaseReason
	CreatedAt     time.Time
}

// ItemQty is a (product, quantity) pair aggregated by product.
type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}
