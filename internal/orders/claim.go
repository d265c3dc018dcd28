package orders

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shopforge/go-shop-orders/internal/audit"
)

// ClaimGuestOrders attaches unclaimed guest orders to the user when their
// verified email matches the order's customer email. Claim metadata is
// all-or-nothing: claimed_at, claimed_by and the owning user are set together.
// Unverified users claim nothing.
func (s *Service) ClaimGuestOrders(ctx context.Context, userID int64, email string, emailVerified bool) (int, error) {
	if !emailVerified {
		return 0, nil
	}
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return 0, nil
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	rows, err := tx.Query(ctx, `
		SELECT id FROM orders
		WHERE user_id IS NULL AND is_claimed = FALSE AND customer_email_normalized = $1
		ORDER BY id
		FOR UPDATE`, normalized)
	if err != nil {
		return 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET user_id = $2, is_claimed = TRUE, claimed_at = $3, claimed_by_user_id = $2
		WHERE id = ANY($1)`, ids, userID, now)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	for _, id := range ids {
		s.Audit.Emit(ctx, audit.Event{
			EntityType:  "order",
			EntityID:    itoa(id),
			Action:      audit.ActionOrderClaimed,
			ActorType:   string(ActorSystem),
			ActorUserID: &userID,
		})
	}
	return len(ids), nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
