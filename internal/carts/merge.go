package carts

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopforge/go-shop-orders/internal/audit"
	"github.com/shopforge/go-shop-orders/internal/outbox"
)

type Service struct {
	DB    *pgxpool.Pool
	Repo  *Repo
	Audit *audit.Sink
}

// lineUpdate sets the combined quantity on an existing user cart line.
type lineUpdate struct {
	ProductID int64
	Quantity  int
}

// mergePlan applies all or nothing: a single over-stock line aborts the merge.
type mergePlan struct {
	Updates []lineUpdate
	// MoveIDs are cart_items ids re-homed from the guest cart as-is.
	MoveIDs []int64
	// DropIDs are guest lines absorbed into an existing user line.
	DropIDs []int64
}

// planMerge combines the guest cart into the user cart. Overlapping products
// sum their quantities and keep the user's price snapshot; any combined
// quantity above physical stock fails the whole merge.
func planMerge(userItems, anonItems []CartItem, stock map[int64]int) (mergePlan, error) {
	byProduct := make(map[int64]CartItem, len(userItems))
	for _, it := range userItems {
		byProduct[it.ProductID] = it
	}

	var plan mergePlan
	for _, anon := range anonItems {
		qty := anon.Quantity
		if user, ok := byProduct[anon.ProductID]; ok {
			qty += user.Quantity
		}
		if qty > stock[anon.ProductID] {
			return mergePlan{}, ErrMergeStockConflict
		}
		if _, ok := byProduct[anon.ProductID]; ok {
			plan.Updates = append(plan.Updates, lineUpdate{ProductID: anon.ProductID, Quantity: qty})
			plan.DropIDs = append(plan.DropIDs, anon.ID)
		} else {
			plan.MoveIDs = append(plan.MoveIDs, anon.ID)
		}
	}
	return plan, nil
}

// MergeOrAdoptGuestCart folds the guest cart addressed by rawToken into the
// user's cart on login. With no user cart the guest cart is adopted whole;
// otherwise lines merge and the guest cart is closed as MERGED. A stale or
// unknown token is a no-op, so replays after a successful merge are harmless.
func (s *Service) MergeOrAdoptGuestCart(ctx context.Context, userID int64, rawToken string) error {
	if rawToken == "" {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	anon, err := s.Repo.getAnonymousCart(ctx, tx, rawToken, true)
	if errors.Is(err, ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	userCart, err := s.Repo.LockActiveCart(ctx, tx, Identity{UserID: userID})
	if errors.Is(err, ErrCartNotFound) {
		return s.adopt(ctx, tx, anon, userID)
	}
	if err != nil {
		return err
	}

	userItems, err := s.Repo.ItemsForCart(ctx, tx, userCart.ID)
	if err != nil {
		return err
	}
	anonItems, err := s.Repo.ItemsForCart(ctx, tx, anon.ID)
	if err != nil {
		return err
	}

	stock, err := productStock(ctx, tx, anonItems)
	if err != nil {
		return err
	}
	plan, err := planMerge(userItems, anonItems, stock)
	if err != nil {
		return err
	}

	for _, u := range plan.Updates {
		if _, err := tx.Exec(ctx, `
			UPDATE cart_items SET quantity = $3
			WHERE cart_id = $1 AND product_id = $2`, userCart.ID, u.ProductID, u.Quantity); err != nil {
			return err
		}
	}
	if len(plan.DropIDs) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE id = ANY($1)`, plan.DropIDs); err != nil {
			return err
		}
	}
	if len(plan.MoveIDs) > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE cart_items SET cart_id = $1 WHERE id = ANY($2)`, userCart.ID, plan.MoveIDs); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE carts
		SET status = 'MERGED', merged_into_cart_id = $2, merged_at = $3, anonymous_token_hash = NULL
		WHERE id = $1`, anon.ID, userCart.ID, time.Now().UTC()); err != nil {
		return err
	}

	if err := outbox.Insert(ctx, tx, outbox.TopicCartMerged, strconv.FormatInt(userCart.ID, 10), map[string]any{
		"merged_cart_id": anon.ID,
		"into_cart_id":   userCart.ID,
		"user_id":        userID,
		"moved_lines":    len(plan.MoveIDs),
		"combined_lines": len(plan.Updates),
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.Audit.Emit(ctx, audit.Event{
		EntityType:  "cart",
		EntityID:    strconv.FormatInt(anon.ID, 10),
		Action:      audit.ActionCartMerged,
		ActorType:   "CUSTOMER",
		ActorUserID: &userID,
		Metadata:    map[string]any{"into_cart_id": userCart.ID},
	})
	return nil
}

// adopt hands the guest cart to the user unchanged: it becomes the user's
// ACTIVE cart and its token stops working.
func (s *Service) adopt(ctx context.Context, tx pgx.Tx, anon Cart, userID int64) error {
	if _, err := tx.Exec(ctx, `
		UPDATE carts SET user_id = $2, anonymous_token_hash = NULL
		WHERE id = $1`, anon.ID, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO active_carts(user_id, cart_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET cart_id = EXCLUDED.cart_id, updated_at = now()`,
		userID, anon.ID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.Audit.Emit(ctx, audit.Event{
		EntityType:  "cart",
		EntityID:    strconv.FormatInt(anon.ID, 10),
		Action:      audit.ActionCartAdopted,
		ActorType:   "CUSTOMER",
		ActorUserID: &userID,
	})
	return nil
}

// productStock loads stock_quantity for the products on the guest cart.
// The merge check compares against physical stock only; reservation holds
// are settled at payment commit, not here. No product locks are taken.
func productStock(ctx context.Context, tx pgx.Tx, anonItems []CartItem) (map[int64]int, error) {
	ids := make([]int64, 0, len(anonItems))
	for _, it := range anonItems {
		ids = append(ids, it.ProductID)
	}
	stock := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return stock, nil
	}

	rows, err := tx.Query(ctx, `
		SELECT id, stock_quantity FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		stock[id] = n
	}
	return stock, rows.Err()
}
