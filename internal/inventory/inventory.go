// Package inventory owns auction exclusivity on catalog items. An item with
// auction_locked_until in the future cannot be sold through the fixed-price
// path. Every mutator takes a Querier so the lock change commits in the same
// transaction as the auction or win transition that caused it.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/niota4/ageless-literature-sub006/internal/models"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Lock extends the item's auction lock to until. GREATEST makes re-locking
// idempotent and guarantees a lock is never shortened by a later caller.
func Lock(ctx context.Context, q Querier, ref models.ItemRef, until time.Time) error {
	tag, err := q.Exec(ctx, `
		UPDATE items
		SET auction_locked_until = GREATEST(COALESCE(auction_locked_until, $3), $3),
			updated_at = now()
		WHERE id = $1 AND item_type = $2
	`, ref.ID, ref.Type, until)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Release clears the lock unless another non-ended auction still claims the
// item. holder is the auction on whose behalf the release runs; its own claim
// does not block it.
func Release(ctx context.Context, q Querier, ref models.ItemRef, holder uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE items
		SET auction_locked_until = NULL, updated_at = now()
		WHERE id = $1 AND item_type = $2
		AND NOT EXISTS (
			SELECT 1 FROM auctions
			WHERE item_id = $1 AND item_type = $2 AND id <> $3 AND status = 'active'
		)
	`, ref.ID, ref.Type, holder)
	return err
}

// IsLocked is the predicate the fixed-price purchase path consults before
// selling an item.
func IsLocked(ctx context.Context, q Querier, ref models.ItemRef, now time.Time) (bool, error) {
	var locked bool
	err := q.QueryRow(ctx, `
		SELECT auction_locked_until IS NOT NULL AND auction_locked_until > $3
		FROM items WHERE id = $1 AND item_type = $2
	`, ref.ID, ref.Type, now).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, models.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return locked, nil
}
