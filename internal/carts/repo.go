package carts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopforge/go-shop-orders/internal/postgres"
)

// maxTokenAttempts bounds retries on a token hash collision before the
// storage error surfaces.
const maxTokenAttempts = 3

const pgUniqueViolation = "23505"

type Repo struct{ DB *pgxpool.Pool }

const cartColumns = `id, user_id, anonymous_token_hash, status, merged_into_cart_id, merged_at, created_at`

func scanCart(row pgx.Row) (Cart, error) {
	var c Cart
	err := row.Scan(&c.ID, &c.UserID, &c.TokenHash, &c.Status, &c.MergedIntoCartID, &c.MergedAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, ErrCartNotFound
	}
	if err != nil {
		return Cart{}, err
	}
	return c, nil
}

// ResolveOrCreate resolves the caller's ACTIVE cart, creating one lazily.
// For anonymous callers with no usable token, a fresh cart and raw token are
// created and the token returned; it is never persisted, only its hash.
func (r *Repo) ResolveOrCreate(ctx context.Context, id Identity) (Cart, bool, string, error) {
	if !id.IsAnonymous() {
		cart, created, err := r.resolveUserCart(ctx, id.UserID)
		return cart, created, "", err
	}

	if id.CartToken != "" {
		cart, err := r.getAnonymousCart(ctx, r.DB, id.CartToken, false)
		if err == nil {
			return cart, false, "", nil
		}
		if !errors.Is(err, ErrCartNotFound) {
			return Cart{}, false, "", err
		}
		// Stale or already-merged token; fall through and issue a new cart.
	}
	return r.createAnonymousCart(ctx)
}

// resolveUserCart enforces the single-ACTIVE-cart-per-user invariant through
// the active_carts pointer row. An existing pointer is locked before any
// create-or-reuse decision; when no pointer exists yet, a lost insert race
// retries once and then finds the winner's row.
func (r *Repo) resolveUserCart(ctx context.Context, userID int64) (Cart, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		cart, created, err := r.resolveUserCartOnce(ctx, userID)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && attempt == 0 {
			continue
		}
		return cart, created, err
	}
	return Cart{}, false, errors.New("carts: pointer row insert raced twice")
}

func (r *Repo) resolveUserCartOnce(ctx context.Context, userID int64) (Cart, bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Cart{}, false, err
	}
	defer tx.Rollback(ctx)

	var pointerCartID int64
	err = tx.QueryRow(ctx, `
		SELECT cart_id FROM active_carts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&pointerCartID)
	havePointer := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, false, err
	}

	if havePointer {
		cart, err := scanCart(tx.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, pointerCartID))
		if err == nil && cart.Status == StatusActive {
			if err := tx.Commit(ctx); err != nil {
				return Cart{}, false, err
			}
			return cart, false, nil
		}
		if err != nil && !errors.Is(err, ErrCartNotFound) {
			return Cart{}, false, err
		}
	}

	// Pointer missing or pointing at a converted cart. Reuse an existing
	// ACTIVE cart if the user has one, otherwise create a fresh cart.
	cart, err := scanCart(tx.QueryRow(ctx, `
		SELECT `+cartColumns+` FROM carts
		WHERE user_id = $1 AND status = 'ACTIVE'
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, userID))
	created := false
	if errors.Is(err, ErrCartNotFound) {
		cart, err = scanCart(tx.QueryRow(ctx, `
			INSERT INTO carts(user_id, status) VALUES ($1, 'ACTIVE')
			RETURNING `+cartColumns, userID))
		created = true
	}
	if err != nil {
		return Cart{}, false, err
	}

	if havePointer {
		_, err = tx.Exec(ctx, `
			UPDATE active_carts SET cart_id = $2, updated_at = now() WHERE user_id = $1`,
			userID, cart.ID)
	} else {
		_, err = tx.Exec(ctx, `
			INSERT INTO active_carts(user_id, cart_id) VALUES ($1, $2)`, userID, cart.ID)
	}
	if err != nil {
		return Cart{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Cart{}, false, err
	}
	return cart, created, nil
}

func (r *Repo) createAnonymousCart(ctx context.Context) (Cart, bool, string, error) {
	var lastErr error
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := GenerateToken()
		if err != nil {
			return Cart{}, false, "", err
		}
		cart, err := scanCart(r.DB.QueryRow(ctx, `
			INSERT INTO carts(anonymous_token_hash, status) VALUES ($1, 'ACTIVE')
			RETURNING `+cartColumns, HashToken(token)))
		if err == nil {
			return cart, true, token, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			lastErr = err
			continue
		}
		return Cart{}, false, "", err
	}
	return Cart{}, false, "", lastErr
}

func (r *Repo) getAnonymousCart(ctx context.Context, q postgres.Queryer, rawToken string, forUpdate bool) (Cart, error) {
	sql := `
		SELECT ` + cartColumns + ` FROM carts
		WHERE user_id IS NULL AND status = 'ACTIVE' AND anonymous_token_hash = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	return scanCart(q.QueryRow(ctx, sql, HashToken(rawToken)))
}

// LockActiveCart locks the caller's ACTIVE cart row on the given transaction.
// Used by checkout; a missing cart is NotFound regardless of why.
func (r *Repo) LockActiveCart(ctx context.Context, tx pgx.Tx, id Identity) (Cart, error) {
	if !id.IsAnonymous() {
		var cartID int64
		err := tx.QueryRow(ctx, `
			SELECT c.id
			FROM active_carts ac
			JOIN carts c ON c.id = ac.cart_id
			WHERE ac.user_id = $1 AND c.status = 'ACTIVE'
			FOR UPDATE OF c`, id.UserID).Scan(&cartID)
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrCartNotFound
		}
		if err != nil {
			return Cart{}, err
		}
		return scanCart(tx.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, cartID))
	}
	if id.CartToken == "" {
		return Cart{}, ErrCartNotFound
	}
	return r.getAnonymousCart(ctx, tx, id.CartToken, true)
}

func (r *Repo) GetCart(ctx context.Context, q postgres.Queryer, cartID int64) (Cart, error) {
	return scanCart(q.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, cartID))
}

func (r *Repo) ItemsForCart(ctx context.Context, q postgres.Queryer, cartID int64) ([]CartItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, cart_id, product_id, quantity, price_at_add
		FROM cart_items WHERE cart_id = $1 ORDER BY id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CartItem
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.PriceAtAdd); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// MarkConverted flips the cart to CONVERTED on the caller's transaction. The
// caller holds the cart row lock.
func (r *Repo) MarkConverted(ctx context.Context, tx pgx.Tx, cartID int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE carts SET status = 'CONVERTED', anonymous_token_hash = NULL
		WHERE id = $1 AND status = 'ACTIVE'`, cartID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrCartNotActive
	}
	return nil
}

// CleanupAnonymousCarts deletes ACTIVE anonymous carts created before the
// cutoff. Items cascade.
func (r *Repo) CleanupAnonymousCarts(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, `
		DELETE FROM carts
		WHERE user_id IS NULL AND status = 'ACTIVE' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
