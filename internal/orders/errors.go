package orders

import "github.com/shopforge/go-shop-orders/internal/errs"

var (
	// ErrOutOfStock is the only domain error the reservation engine raises:
	// availability was insufficient at reserve time, or the defensive re-check
	// at commit time failed.
	ErrOutOfStock = errs.Conflict("OUT_OF_STOCK", "insufficient stock available")

	// ErrReservationExists guards against reserving twice for the same order,
	// which would violate the one-row-per-(order,product) invariant.
	ErrReservationExists = errs.Conflict("RESERVATION_ALREADY_EXISTS", "reservations already exist for this order")

	ErrInvalidOrderState    = errs.Conflict("INVALID_ORDER_STATE", "order is not in a valid state for this operation")
	ErrPaymentAlreadyExists = errs.Conflict("PAYMENT_ALREADY_EXISTS", "a successful payment already exists for this order")
	ErrOrderNotPayable      = errs.Conflict("ORDER_NOT_PAYABLE", "order is not in a payable state")

	ErrOrderNotFound = errs.NotFound("order not found")
)
