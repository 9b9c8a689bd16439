package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/niota4/ageless-literature-sub006/internal/inventory"
	"github.com/niota4/ageless-literature-sub006/internal/models"
)

// Catalog access. Items are owned by the catalog subsystem; this engine reads
// them and mutates only sale_mode, price and auction_locked_until.

func (s *Store) GetItem(ctx context.Context, ref models.ItemRef) (*models.Item, error) {
	var (
		i     models.Item
		price string
	)
	err := s.Pool.QueryRow(ctx, `
		SELECT id, item_type, seller_id, title, sale_mode, price::text,
			auction_locked_until, created_at, updated_at
		FROM items WHERE id = $1 AND item_type = $2
	`, ref.ID, ref.Type).Scan(&i.ID, &i.Type, &i.SellerID, &i.Title, &i.SaleMode,
		&price, &i.AuctionLockedUntil, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if i.Price, err = parseDec(price); err != nil {
		return nil, err
	}
	return &i, nil
}

func (s *Store) CreateItem(ctx context.Context, i *models.Item) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO items (id, item_type, seller_id, title, sale_mode, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, now(), now())
	`, i.ID, i.Type, i.SellerID, i.Title, i.SaleMode, decArg(i.Price))
	return err
}

// IsItemLocked is the predicate the fixed-price purchase path calls to reject
// a sale that would conflict with an auction.
func (s *Store) IsItemLocked(ctx context.Context, ref models.ItemRef, now time.Time) (bool, error) {
	return inventory.IsLocked(ctx, s.Pool, ref, now)
}
