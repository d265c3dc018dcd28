// Package outbox implements the transactional outbox: events are inserted in
// the same database transaction as the state change they describe, and a
// dispatcher publishes them to Kafka after commit. A rollback therefore never
// leaves an orphaned message, and dispatch failure never propagates into the
// core.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shopforge/go-shop-orders/internal/postgres"
)

const (
	TopicOrderCreated       = "order.created"
	TopicOrderPaid          = "order.paid"
	TopicOrderPaymentFailed = "order.payment_failed"
	TopicOrderCancelled     = "order.cancelled"
	TopicCartMerged         = "cart.merged"
)

type Record struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

// Insert enqueues an event on the caller's transaction. Key is the partition
// key (order id), so all events of one order keep their relative order.
func Insert(ctx context.Context, q postgres.Queryer, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO outbox(event_id, topic, key, payload)
		VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), topic, key, data,
	)
	return err
}

func FetchPending(ctx context.Context, q postgres.Queryer, limit int) ([]Record, error) {
	rows, err := q.Query(ctx, `
		SELECT id, event_id, topic, key, payload, created_at, sent_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func MarkSent(ctx context.Context, q postgres.Queryer, id int64) error {
	_, err := q.Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = $1`, id)
	return err
}
