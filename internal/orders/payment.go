package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/shopforge/go-shop-orders/internal/audit"
	"github.com/shopforge/go-shop-orders/internal/outbox"
)

// ApplyPaymentOutcome records a caller-reported payment result on an order.
// The gateway itself is external; the outcome is already decided.
//
// Rules, in order:
//   - at most one SUCCESS payment may ever exist per order; a later attempt
//     fails with PAYMENT_ALREADY_EXISTS (checked before the state gate so the
//     message stays specific);
//   - the order must be payable (CREATED or PAYMENT_FAILED), otherwise
//     ORDER_NOT_PAYABLE;
//   - success commits the reservations (decrementing stock exactly once) and
//     advances the order to PAID;
//   - failure records a FAILED attempt, moves the order to PAYMENT_FAILED and
//     stamps cancel_reason with PAYMENT_FAILED. Reservations stay ACTIVE so a
//     retry can still commit; their original TTL keeps ticking.
//
// scopeUserID, when non-zero, restricts the operation to the caller's own
// orders.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, orderID, scopeUserID int64, success bool) (Payment, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Payment{}, err
	}
	defer tx.Rollback(ctx)

	status, err := s.lockScoped(ctx, tx, orderID, scopeUserID)
	if err != nil {
		return Payment{}, err
	}

	var hasSuccess bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND status = 'SUCCESS')`,
		orderID).Scan(&hasSuccess)
	if err != nil {
		return Payment{}, err
	}
	if hasSuccess {
		return Payment{}, ErrPaymentAlreadyExists
	}
	if !IsPrePayment(status) {
		return Payment{}, ErrOrderNotPayable
	}

	if success {
		if err := s.Engine.CommitReservationsForPaid(ctx, tx, orderID); err != nil {
			if errors.Is(err, ErrOutOfStock) {
				// The engine already released the reservations and cancelled
				// the order; persist that outcome, then surface the conflict.
				if cErr := tx.Commit(ctx); cErr != nil {
					return Payment{}, cErr
				}
			}
			return Payment{}, err
		}
	} else {
		_, err := tx.Exec(ctx, `
			UPDATE orders SET status = 'PAYMENT_FAILED', cancel_reason = 'PAYMENT_FAILED'
			WHERE id = $1`, orderID)
		if err != nil {
			return Payment{}, err
		}
	}

	p := Payment{OrderID: orderID, Status: PaymentFailed}
	topic := outbox.TopicOrderPaymentFailed
	if success {
		p.Status = PaymentSuccess
		topic = outbox.TopicOrderPaid
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO payments(order_id, status) VALUES ($1, $2)
		RETURNING id, created_at`, orderID, p.Status).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return Payment{}, err
	}

	if err := outbox.Insert(ctx, tx, topic, itoa(orderID), map[string]any{
		"order_id":   orderID,
		"payment_id": p.ID,
		"status":     string(p.Status),
	}); err != nil {
		return Payment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Payment{}, err
	}

	s.Audit.Emit(ctx, audit.Event{
		EntityType: "payment",
		EntityID:   itoa(p.ID),
		Action:     audit.ActionPaymentApplied,
		ActorType:  string(ActorSystem),
		Metadata:   map[string]any{"order_id": orderID, "status": string(p.Status)},
	})
	return p, nil
}
