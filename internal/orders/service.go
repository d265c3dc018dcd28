package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopforge/go-shop-orders/internal/audit"
	"github.com/shopforge/go-shop-orders/internal/outbox"
)

// Service coordinates order-level use cases on top of the repo and the
// reservation engine. Every mutation runs in one transaction under the
// order-row lock and is validated against the transition table.
type Service struct {
	DB     *pgxpool.Pool
	Repo   *Repo
	Engine *ReservationEngine
	Audit  *audit.Sink
}

// CancelByCustomer cancels the caller's own CREATED order, releasing its
// reservations. Customers cannot cancel a PAYMENT_FAILED order; that edge
// belongs to admins.
func (s *Service) CancelByCustomer(ctx context.Context, orderID, userID int64) (Order, error) {
	order, err := s.cancel(ctx, orderID, userID, ActorCustomer, ReleaseCustomerRequest, CancelReasonCustomerRequest)
	if err != nil {
		return Order{}, err
	}
	s.Audit.Emit(ctx, audit.Event{
		EntityType:  "order",
		EntityID:    itoa(orderID),
		Action:      audit.ActionOrderCancelled,
		ActorType:   string(ActorCustomer),
		ActorUserID: &userID,
		Metadata:    map[string]any{"cancel_reason": string(CancelReasonCustomerRequest)},
	})
	return order, nil
}

// CancelByAdmin cancels a CREATED or PAYMENT_FAILED order.
func (s *Service) CancelByAdmin(ctx context.Context, orderID, adminUserID int64) (Order, error) {
	order, err := s.cancel(ctx, orderID, 0, ActorAdmin, ReleaseAdminRequest, CancelReasonAdminRequest)
	if err != nil {
		return Order{}, err
	}
	s.Audit.Emit(ctx, audit.Event{
		EntityType:  "order",
		EntityID:    itoa(orderID),
		Action:      audit.ActionOrderCancelled,
		ActorType:   string(ActorAdmin),
		ActorUserID: &adminUserID,
		Metadata:    map[string]any{"cancel_reason": string(CancelReasonAdminRequest)},
	})
	return order, nil
}

// cancel locks the order (scoped to scopeUserID when non-zero), checks the
// actor-gated transition, and releases reservations which also records the
// cancellation on the order.
func (s *Service) cancel(ctx context.Context, orderID, scopeUserID int64, actor Actor, reason ReleaseReason, cancelReason CancelReason) (Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer tx.Rollback(ctx)

	status, err := s.lockScoped(ctx, tx, orderID, scopeUserID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(status, StatusCancelled, actor) {
		return Order{}, ErrInvalidOrderState
	}
	if err := s.Engine.ReleaseReservations(ctx, tx, orderID, reason, actor, cancelReason); err != nil {
		return Order{}, err
	}
	if err := outbox.Insert(ctx, tx, outbox.TopicOrderCancelled, itoa(orderID), map[string]any{
		"order_id":      orderID,
		"cancel_reason": string(cancelReason),
		"cancelled_by":  string(actor),
	}); err != nil {
		return Order{}, err
	}

	order, err := s.Repo.GetOrder(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return order, nil
}

// Ship advances a PAID order to SHIPPED. The fulfillment permission itself is
// enforced at the boundary; this validates the state machine edge.
func (s *Service) Ship(ctx context.Context, orderID, adminUserID int64) (Order, error) {
	return s.advance(ctx, orderID, adminUserID, StatusShipped, audit.ActionOrderShipped)
}

// Deliver advances a SHIPPED order to DELIVERED.
func (s *Service) Deliver(ctx context.Context, orderID, adminUserID int64) (Order, error) {
	return s.advance(ctx, orderID, adminUserID, StatusDelivered, audit.ActionOrderDelivered)
}

func (s *Service) advance(ctx context.Context, orderID, adminUserID int64, to Status, auditAction string) (Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer tx.Rollback(ctx)

	status, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(status, to, ActorAdmin) {
		return Order{}, ErrInvalidOrderState
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, orderID, to); err != nil {
		return Order{}, err
	}

	order, err := s.Repo.GetOrder(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}

	s.Audit.Emit(ctx, audit.Event{
		EntityType:  "order",
		EntityID:    itoa(orderID),
		Action:      auditAction,
		ActorType:   string(ActorAdmin),
		ActorUserID: &adminUserID,
	})
	return order, nil
}

func (s *Service) lockScoped(ctx context.Context, tx pgx.Tx, orderID, scopeUserID int64) (Status, error) {
	if scopeUserID == 0 {
		return lockOrder(ctx, tx, orderID)
	}
	var st Status
	err := tx.QueryRow(ctx, `
		SELECT status FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		orderID, scopeUserID).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		// A foreign order and a missing one look identical to the caller.
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", err
	}
	return st, nil
}
