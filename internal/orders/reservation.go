package orders

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopforge/go-shop-orders/internal/audit"
	"github.com/shopforge/go-shop-orders/internal/errs"
	"github.com/shopforge/go-shop-orders/internal/outbox"
	"github.com/shopforge/go-shop-orders/internal/postgres"
)

// ReservationEngine owns the inventory reservation lifecycle. Availability is
// physical stock minus the sum of ACTIVE, unexpired reservations; physical
// stock itself is only ever decremented by a commit.
//
// Every operation locks the Product rows it touches in ascending product-id
// order. Two transactions contending for overlapping product sets therefore
// acquire locks in the same sequence and cannot deadlock.
type ReservationEngine struct {
	DB       *pgxpool.Pool
	GuestTTL time.Duration
	AuthTTL  time.Duration
	Audit    *audit.Sink
}

// ReserveForCheckout inserts one ACTIVE reservation per product on the
// caller's transaction. All-or-nothing: if any product is short, no rows are
// created and ErrOutOfStock is returned.
func (e *ReservationEngine) ReserveForCheckout(ctx context.Context, tx pgx.Tx, orderID int64, items []ItemQty, guest bool) error {
	if len(items) == 0 {
		return nil
	}

	requested := map[int64]int{}
	for _, it := range items {
		if it.Qty <= 0 {
			return errs.Validation("VALIDATION_ERROR", "reservation quantity must be positive")
		}
		requested[it.ProductID] += it.Qty
	}
	productIDs := sortedKeys(requested)

	// Reserving twice for one order would violate (order, product) uniqueness;
	// checkout must reserve exactly once per order.
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM inventory_reservations WHERE order_id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrReservationExists
	}

	now := time.Now().UTC()
	stock, err := lockProducts(ctx, tx, productIDs)
	if err != nil {
		return err
	}
	reserved, err := lockActiveReservations(ctx, tx, productIDs, &now)
	if err != nil {
		return err
	}

	for _, pid := range productIDs {
		physical, ok := stock[pid]
		if !ok {
			return ErrOutOfStock
		}
		if requested[pid] > physical-reserved[pid] {
			return ErrOutOfStock
		}
	}

	ttl := e.AuthTTL
	if guest {
		ttl = e.GuestTTL
	}
	expiresAt := now.Add(ttl)
	for _, pid := range productIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO inventory_reservations(order_id, product_id, quantity, status, expires_at)
			VALUES ($1, $2, $3, 'ACTIVE', $4)`,
			orderID, pid, requested[pid], expiresAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// CommitReservationsForPaid converts the order's ACTIVE reservations into a
// physical stock decrement and advances the order to PAID. Idempotent: an
// already-PAID order, or one with only COMMITTED reservations, is a no-op.
//
// Stock is re-checked under the product locks: physical stock must never go
// negative even if it drifted since the reserve. On shortfall the order's
// reservations are released with OUT_OF_STOCK, the order is cancelled, and
// ErrOutOfStock is returned.
func (e *ReservationEngine) CommitReservationsForPaid(ctx context.Context, tx pgx.Tx, orderID int64) error {
	status, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if status == StatusPaid {
		return nil
	}
	if !IsPrePayment(status) {
		return ErrInvalidOrderState
	}

	rows, err := tx.Query(ctx, `
		SELECT id, product_id, quantity, status
		FROM inventory_reservations
		WHERE order_id = $1
		ORDER BY product_id
		FOR UPDATE`, orderID)
	if err != nil {
		return err
	}
	type resRow struct {
		id        int64
		productID int64
		qty       int
		status    ReservationStatus
	}
	var all []resRow
	for rows.Next() {
		var r resRow
		if err := rows.Scan(&r.id, &r.productID, &r.qty, &r.status); err != nil {
			rows.Close()
			return err
		}
		all = append(all, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var active []resRow
	for _, r := range all {
		if r.status == ReservationActive {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		// Nothing left to commit (already committed, or never reserved).
		return advanceToPaid(ctx, tx, orderID)
	}

	toCommit := map[int64]int{}
	for _, r := range active {
		toCommit[r.productID] += r.qty
	}
	productIDs := sortedKeys(toCommit)

	stock, err := lockProducts(ctx, tx, productIDs)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, pid := range productIDs {
		physical, ok := stock[pid]
		if !ok || physical < toCommit[pid] {
			if err := e.releaseActive(ctx, tx, orderID, ReleaseOutOfStock, now); err != nil {
				return err
			}
			if err := cancelOrder(ctx, tx, orderID, CancelReasonOutOfStock, ActorSystem, now); err != nil {
				return err
			}
			if err := outbox.Insert(ctx, tx, outbox.TopicOrderCancelled, itoa(orderID), map[string]any{
				"order_id":      orderID,
				"cancel_reason": string(CancelReasonOutOfStock),
				"cancelled_by":  string(ActorSystem),
			}); err != nil {
				return err
			}
			return ErrOutOfStock
		}
	}

	for _, pid := range productIDs {
		_, err := tx.Exec(ctx, `
			UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
			WHERE id = $1`, pid, toCommit[pid])
		if err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx, `
		UPDATE inventory_reservations
		SET status = 'COMMITTED', committed_at = $2
		WHERE order_id = $1 AND status = 'ACTIVE'`, orderID, now)
	if err != nil {
		return err
	}
	return advanceToPaid(ctx, tx, orderID)
}

// ReleaseReservations marks the order's ACTIVE reservations RELEASED and, when
// the order is still pre-payment, cancels it with the given actor and reason.
// No-op when nothing is ACTIVE. Physical stock is untouched: it was never
// decremented at reserve time, so there is nothing to restore.
func (e *ReservationEngine) ReleaseReservations(ctx context.Context, tx pgx.Tx, orderID int64, reason ReleaseReason, cancelledBy Actor, cancelReason CancelReason) error {
	status, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := e.releaseActive(ctx, tx, orderID, reason, now); err != nil {
		return err
	}
	if IsPrePayment(status) {
		return cancelOrder(ctx, tx, orderID, cancelReason, cancelledBy, now)
	}
	return nil
}

// ExpireOverdueReservations sweeps ACTIVE reservations whose TTL elapsed. Each
// overdue order is handled in its own transaction under the order-row lock, so
// a sweep racing a payment commit is serialized: whichever wins determines the
// final state and the loser observes it. Returns the number of reservations
// expired.
func (e *ReservationEngine) ExpireOverdueReservations(ctx context.Context, now time.Time) (int, error) {
	rows, err := e.DB.Query(ctx, `
		SELECT DISTINCT order_id FROM inventory_reservations
		WHERE status = 'ACTIVE' AND expires_at < $1
		ORDER BY order_id`, now)
	if err != nil {
		return 0, err
	}
	var orderIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		orderIDs = append(orderIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	affected := 0
	for _, orderID := range orderIDs {
		n, err := e.expireOrder(ctx, orderID, now)
		if err != nil {
			return affected, err
		}
		affected += n
	}
	return affected, nil
}

func (e *ReservationEngine) expireOrder(ctx context.Context, orderID int64, now time.Time) (int, error) {
	tx, err := e.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	status, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			return 0, nil
		}
		return 0, err
	}
	// Payment already resolved the race; nothing to expire here.
	if !IsPrePayment(status) {
		return 0, nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE inventory_reservations
		SET status = 'EXPIRED', released_at = $2, release_reason = 'PAYMENT_EXPIRED'
		WHERE order_id = $1 AND status = 'ACTIVE' AND expires_at < $2`, orderID, now)
	if err != nil {
		return 0, err
	}
	n := int(tag.RowsAffected())
	if n == 0 {
		return 0, nil
	}

	if err := cancelOrder(ctx, tx, orderID, CancelReasonPaymentExpired, ActorSystem, now); err != nil {
		return 0, err
	}
	if err := outbox.Insert(ctx, tx, outbox.TopicOrderCancelled, itoa(orderID), map[string]any{
		"order_id":      orderID,
		"cancel_reason": string(CancelReasonPaymentExpired),
		"cancelled_by":  string(ActorSystem),
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	e.Audit.Emit(ctx, audit.Event{
		EntityType: "inventory_reservation_batch",
		EntityID:   itoa(orderID),
		Action:     audit.ActionReservationsExpired,
		ActorType:  string(ActorSystem),
		Metadata:   map[string]any{"order_id": orderID, "affected_reservations": n},
	})
	e.Audit.Emit(ctx, audit.Event{
		EntityType: "order",
		EntityID:   itoa(orderID),
		Action:     audit.ActionOrderCancelled,
		ActorType:  string(ActorSystem),
		Metadata:   map[string]any{"cancel_reason": string(CancelReasonPaymentExpired)},
	})
	return n, nil
}

// CountOverdueReservations is the lock-free dry-run variant: a best-effort
// snapshot of how many ACTIVE reservations are overdue on still-unresolved
// orders.
func (e *ReservationEngine) CountOverdueReservations(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := e.DB.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM inventory_reservations r
		JOIN orders o ON o.id = r.order_id
		WHERE r.status = 'ACTIVE' AND r.expires_at < $1 AND o.status IN ('CREATED', 'PAYMENT_FAILED')`,
		now).Scan(&n)
	return n, err
}

// ReservationsForOrder reads the order's reservation rows, newest state as-is.
func (e *ReservationEngine) ReservationsForOrder(ctx context.Context, q postgres.Queryer, orderID int64) ([]Reservation, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity, status, expires_at, committed_at, released_at, release_reason, created_at
		FROM inventory_reservations WHERE order_id = $1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.ID, &r.OrderID, &r.ProductID, &r.Quantity, &r.Status, &r.ExpiresAt, &r.CommittedAt, &r.ReleasedAt, &r.ReleaseReason, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (e *ReservationEngine) releaseActive(ctx context.Context, tx pgx.Tx, orderID int64, reason ReleaseReason, now time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE inventory_reservations
		SET status = 'RELEASED', released_at = $2, release_reason = $3
		WHERE order_id = $1 AND status = 'ACTIVE'`, orderID, now, reason)
	return err
}

// lockProducts locks the product rows in ascending id order and returns their
// physical stock.
func lockProducts(ctx context.Context, tx pgx.Tx, productIDs []int64) (map[int64]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, stock_quantity FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stock := map[int64]int{}
	for rows.Next() {
		var id int64
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		stock[id] = qty
	}
	return stock, rows.Err()
}

// lockActiveReservations locks all ACTIVE reservation rows for the products
// and returns the reserved quantity per product. A non-nil unexpiredAfter
// narrows the sum to reservations still inside their TTL.
func lockActiveReservations(ctx context.Context, tx pgx.Tx, productIDs []int64, unexpiredAfter *time.Time) (map[int64]int, error) {
	sql := `
		SELECT product_id, quantity FROM inventory_reservations
		WHERE product_id = ANY($1) AND status = 'ACTIVE'`
	args := []any{productIDs}
	if unexpiredAfter != nil {
		sql += ` AND expires_at > $2`
		args = append(args, *unexpiredAfter)
	}
	sql += ` ORDER BY product_id FOR UPDATE`

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reserved := map[int64]int{}
	for rows.Next() {
		var pid int64
		var qty int
		if err := rows.Scan(&pid, &qty); err != nil {
			return nil, err
		}
		reserved[pid] += qty
	}
	return reserved, rows.Err()
}

func lockOrder(ctx context.Context, tx pgx.Tx, orderID int64) (Status, error) {
	var s Status
	err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", err
	}
	return s, nil
}

func advanceToPaid(ctx context.Context, tx pgx.Tx, orderID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE orders SET status = 'PAID' WHERE id = $1 AND status <> 'PAID'`, orderID)
	return err
}

func cancelOrder(ctx context.Context, tx pgx.Tx, orderID int64, reason CancelReason, by Actor, now time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = 'CANCELLED', cancel_reason = $2, cancelled_by = $3, cancelled_at = $4
		WHERE id = $1`, orderID, reason, by, now)
	return err
}

func sortedKeys(m map[int64]int) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
