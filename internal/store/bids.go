package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/niota4/ageless-literature-sub006/internal/bids"
	"github.com/niota4/ageless-literature-sub006/internal/models"
)

const bidCols = `id, auction_id, bidder_id, amount::text, placed_at`

func scanBid(row scanner) (*models.Bid, error) {
	var (
		b      models.Bid
		amount string
	)
	err := row.Scan(&b.ID, &b.AuctionID, &b.BidderID, &amount, &b.PlacedAt)
	if err != nil {
		return nil, err
	}
	if b.Amount, err = parseDec(amount); err != nil {
		return nil, err
	}
	return &b, nil
}

// InsertBid accepts a bid with compare-and-set semantics: the auction row is
// locked, the bid validated against the committed high bid, and the bid plus
// the denormalized high columns commit together. placed_at comes from
// clock_timestamp() so accepted bids order strictly within the row lock's
// serialization.
func (s *Store) InsertBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount decimal.Decimal, now time.Time) (*models.Bid, error) {
	var bid *models.Bid
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		a, err := scanAuction(tx.QueryRow(ctx, `SELECT `+auctionCols+` FROM auctions WHERE id = $1 FOR UPDATE`, auctionID))
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := bids.Validate(a, amount, now); err != nil {
			return err
		}

		b := models.Bid{
			ID:        uuid.New(),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO bids (id, auction_id, bidder_id, amount, placed_at)
			VALUES ($1, $2, $3, $4::numeric, clock_timestamp())
			RETURNING placed_at
		`, b.ID, b.AuctionID, b.BidderID, decArg(b.Amount)).Scan(&b.PlacedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE auctions
			SET current_high_bid_id = $2, current_high_amount = $3::numeric, updated_at = now()
			WHERE id = $1
		`, auctionID, b.ID, decArg(b.Amount))
		if err != nil {
			return err
		}
		bid = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

// HighestBid returns nil when the auction has no bids.
func (s *Store) HighestBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	b, err := scanBid(s.Pool.QueryRow(ctx, `
		SELECT `+bidCols+` FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC
		LIMIT 1
	`, auctionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *Store) GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	b, err := scanBid(s.Pool.QueryRow(ctx, `SELECT `+bidCols+` FROM bids WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return b, err
}

func (s *Store) ListBids(ctx context.Context, auctionID uuid.UUID) ([]*models.Bid, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+bidCols+` FROM bids
		WHERE auction_id = $1
		ORDER BY placed_at
	`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
