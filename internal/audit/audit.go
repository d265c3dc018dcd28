// Package audit is a best-effort sink: emitting an event must never block or
// fail the business flow it describes.
package audit

import (
	"context"
	"encoding/json"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ActionOrderCancelled       = "ORDER_CANCELLED"
	ActionOrderShipped         = "ORDER_SHIPPED"
	ActionOrderDelivered       = "ORDER_DELIVERED"
	ActionOrderClaimed         = "ORDER_CLAIMED"
	ActionPaymentApplied       = "PAYMENT_APPLIED"
	ActionCartMerged           = "CART_MERGED"
	ActionCartAdopted          = "CART_ADOPTED"
	ActionCheckoutCompleted    = "CHECKOUT_COMPLETED"
	ActionReservationsExpired  = "INVENTORY_RESERVATIONS_EXPIRED"
	ActionReservationsReleased = "INVENTORY_RESERVATIONS_RELEASED"
)

type Event struct {
	EntityType  string
	EntityID    string
	Action      string
	ActorType   string
	ActorUserID *int64
	Metadata    map[string]any
}

type Sink struct {
	DB *pgxpool.Pool
}

// Emit records an audit event outside the caller's transaction. Failures are
// logged and swallowed.
func (s *Sink) Emit(ctx context.Context, ev Event) {
	if s == nil || s.DB == nil {
		return
	}
	meta := ev.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		log.Printf("audit: marshal metadata: %v", err)
		return
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO audit_events(entity_type, entity_id, action, actor_type, actor_user_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.EntityType, ev.EntityID, ev.Action, ev.ActorType, ev.ActorUserID, payload,
	)
	if err != nil {
		log.Printf("audit: emit %s/%s %s: %v", ev.EntityType, ev.EntityID, ev.Action, err)
	}
}
