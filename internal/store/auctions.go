package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/niota4/ageless-literature-sub006/internal/inventory"
	"github.com/niota4/ageless-literature-sub006/internal/models"
)

const auctionCols = `
	id, item_id, item_type, seller_id,
	starting_bid::text, reserve_price::text,
	starts_at, ends_at, ended_at, payment_window_hours, payment_deadline,
	status, end_outcome, winner_bid_id,
	current_high_bid_id, current_high_amount::text,
	relist_count, parent_auction_id, policy_applied,
	end_policy, relist_delay_hours, relist_max_count,
	convert_price_source, convert_manual_price::text, convert_markup_bps,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAuction(row scanner) (*models.Auction, error) {
	var (
		a           models.Auction
		startingBid string
		reserve     string
		outcome     *string
		highAmount  *string
		manualPrice *string
	)
	err := row.Scan(
		&a.ID, &a.ItemID, &a.ItemType, &a.SellerID,
		&startingBid, &reserve,
		&a.StartsAt, &a.EndsAt, &a.EndedAt, &a.PaymentWindowHours, &a.PaymentDeadline,
		&a.Status, &outcome, &a.WinnerBidID,
		&a.CurrentHighBidID, &highAmount,
		&a.RelistCount, &a.ParentAuctionID, &a.PolicyApplied,
		&a.EndPolicy, &a.RelistDelayHours, &a.RelistMaxCount,
		&a.ConvertPriceSource, &manualPrice, &a.ConvertMarkupBps,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if a.StartingBid, err = parseDec(startingBid); err != nil {
		return nil, err
	}
	if a.ReservePrice, err = parseDec(reserve); err != nil {
		return nil, err
	}
	if outcome != nil {
		a.EndOutcome = models.EndOutcome(*outcome)
	}
	if a.CurrentHighAmount, err = parseDecPtr(highAmount); err != nil {
		return nil, err
	}
	if a.ConvertManualPrice, err = parseDecPtr(manualPrice); err != nil {
		return nil, err
	}
	return &a, nil
}

func insertAuction(ctx context.Context, tx pgx.Tx, a *models.Auction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO auctions (
			id, item_id, item_type, seller_id,
			starting_bid, reserve_price,
			starts_at, ends_at, payment_window_hours,
			status, relist_count, parent_auction_id,
			end_policy, relist_delay_hours, relist_max_count,
			convert_price_source, convert_manual_price, convert_markup_bps,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6::numeric,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17::numeric, $18,
			$19, $19
		)
	`,
		a.ID, a.ItemID, a.ItemType, a.SellerID,
		decArg(a.StartingBid), decArg(a.ReservePrice),
		a.StartsAt, a.EndsAt, a.PaymentWindowHours,
		a.Status, a.RelistCount, a.ParentAuctionID,
		a.EndPolicy, a.RelistDelayHours, a.RelistMaxCount,
		a.ConvertPriceSource, decArgPtr(a.ConvertManualPrice), a.ConvertMarkupBps,
		a.CreatedAt,
	)
	return err
}

// CreateAuction inserts the auction and flips the item's sale mode to auction
// in the same transaction.
func (s *Store) CreateAuction(ctx context.Context, a *models.Auction) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertAuction(ctx, tx, a); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE items SET sale_mode = 'auction', updated_at = now()
			WHERE id = $1 AND item_type = $2
		`, a.ItemID, a.ItemType)
		return err
	})
}

func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	a, err := scanAuction(s.Pool.QueryRow(ctx, `SELECT `+auctionCols+` FROM auctions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return a, err
}

func (s *Store) listAuctions(ctx context.Context, query string, args ...any) ([]*models.Auction, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListDueScheduled(ctx context.Context, now time.Time) ([]*models.Auction, error) {
	return s.listAuctions(ctx, `
		SELECT `+auctionCols+` FROM auctions
		WHERE status = 'scheduled' AND starts_at <= $1
		ORDER BY starts_at
	`, now)
}

func (s *Store) ListDueActive(ctx context.Context, now time.Time) ([]*models.Auction, error) {
	return s.listAuctions(ctx, `
		SELECT `+auctionCols+` FROM auctions
		WHERE status = 'active' AND ends_at <= $1
		ORDER BY ends_at
	`, now)
}

// ListPolicyPending selects ended auctions whose end policy never completed:
// the close or reversal committed but the policy transaction failed before
// setting the marker. Sold auctions qualify only once their win has expired.
func (s *Store) ListPolicyPending(ctx context.Context) ([]*models.Auction, error) {
	return s.listAuctions(ctx, `
		SELECT `+auctionCols+` FROM auctions
		WHERE status = 'ended' AND policy_applied = FALSE
			AND (end_outcome <> 'sold'
				OR EXISTS (
					SELECT 1 FROM auction_wins w
					WHERE w.auction_id = auctions.id AND w.status = 'expired'
				))
		ORDER BY ended_at
	`)
}

// ListRelists walks the relist chain forward: children point at their parent,
// never the other way around.
func (s *Store) ListRelists(ctx context.Context, parentID uuid.UUID) ([]*models.Auction, error) {
	return s.listAuctions(ctx, `
		SELECT `+auctionCols+` FROM auctions
		WHERE parent_auction_id = $1
		ORDER BY created_at
	`, parentID)
}

// ActivateAuction moves scheduled -> active and locks the item through the
// scheduled close plus the payment window, so settlement lag cannot open a
// fixed-price sale gap.
func (s *Store) ActivateAuction(ctx context.Context, a *models.Auction, lockUntil time.Time) (bool, error) {
	return s.applyTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE auctions SET status = 'active', updated_at = now()
			WHERE id = $1 AND status = 'scheduled'
		`, a.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errPreconditionFailed
		}
		return inventory.Lock(ctx, tx, a.ItemRef(), lockUntil)
	})
}

// CloseSold ends the auction with a winner: outcome, winner bid, payment
// deadline, the pending_claim win row and the extended item lock commit
// together or not at all. The current_high_bid_id predicate rejects a close
// whose winner was read before a later bid committed; the caller retries
// against the fresh state.
func (s *Store) CloseSold(ctx context.Context, a *models.Auction, winnerBidID uuid.UUID, win *models.AuctionWin, endedAt, paymentDeadline time.Time) (bool, error) {
	return s.applyTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE auctions
			SET status = 'ended', end_outcome = 'sold', winner_bid_id = $2,
				ended_at = $3, payment_deadline = $4, updated_at = now()
			WHERE id = $1 AND status = 'active'
				AND current_high_bid_id IS NOT DISTINCT FROM $2
		`, a.ID, winnerBidID, endedAt, paymentDeadline)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errPreconditionFailed
		}
		if err := insertWin(ctx, tx, win); err != nil {
			return err
		}
		return inventory.Lock(ctx, tx, a.ItemRef(), paymentDeadline)
	})
}

// CloseNoSale ends the auction without a qualifying bid and releases the item
// lock in the same transaction. observedHighBidID is the high bid the outcome
// was resolved against (nil for no bids); a bid committing after that read
// fails the predicate and the close retries next tick.
func (s *Store) CloseNoSale(ctx context.Context, a *models.Auction, reason models.EndOutcome, observedHighBidID *uuid.UUID, endedAt time.Time) (bool, error) {
	return s.applyTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE auctions
			SET status = 'ended', end_outcome = $2, ended_at = $3, updated_at = now()
			WHERE id = $1 AND status = 'active'
				AND current_high_bid_id IS NOT DISTINCT FROM $4
		`, a.ID, reason, endedAt, observedHighBidID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errPreconditionFailed
		}
		return inventory.Release(ctx, tx, a.ItemRef(), a.ID)
	})
}

func markPolicyApplied(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE auctions SET policy_applied = TRUE, updated_at = now()
		WHERE id = $1 AND policy_applied = FALSE
	`, auctionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errPreconditionFailed
	}
	return nil
}

// MarkPolicyApplied flips the non-reversible policy marker. applied=false
// means another pass already ran the policy.
func (s *Store) MarkPolicyApplied(ctx context.Context, auctionID uuid.UUID) (bool, error) {
	return s.applyTx(ctx, func(tx pgx.Tx) error {
		return markPolicyApplied(ctx, tx, auctionID)
	})
}

// CreateRelist inserts the child auction guarded by the parent's policy
// marker, making double-relist impossible.
func (s *Store) CreateRelist(ctx context.Context, parentID uuid.UUID, child *models.Auction) (bool, error) {
	return s.applyTx(ctx, func(tx pgx.Tx) error {
		if err := markPolicyApplied(ctx, tx, parentID); err != nil {
			return err
		}
		return insertAuction(ctx, tx, child)
	})
}

// ConvertItemToFixed applies the convert_fixed policy: marker, item sale mode,
// new price and lock release in one transaction.
func (s *Store) ConvertItemToFixed(ctx context.Context, a *models.Auction, price decimal.Decimal) (bool, error) {
	return s.applyTx(ctx, func(tx pgx.Tx) error {
		if err := markPolicyApplied(ctx, tx, a.ID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE items
			SET sale_mode = 'fixed', price = $3::numeric, auction_locked_until = NULL, updated_at = now()
			WHERE id = $1 AND item_type = $2
		`, a.ItemID, a.ItemType, decArg(price))
		return err
	})
}

// UnlistItem applies the unlist policy.
func (s *Store) UnlistItem(ctx context.Context, a *models.Auction) (bool, error) {
	return s.applyTx(ctx, func(tx pgx.Tx) error {
		if err := markPolicyApplied(ctx, tx, a.ID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE items
			SET sale_mode = 'unlisted', auction_locked_until = NULL, updated_at = now()
			WHERE id = $1 AND item_type = $2
		`, a.ItemID, a.ItemType)
		return err
	})
}
