package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/niota4/ageless-literature-sub006/internal/inventory"
	"github.com/niota4/ageless-literature-sub006/internal/models"
)

const winCols = `id, auction_id, user_id, winning_amount::text, status, order_id, paid_at, reminder_sent_at, created_at, updated_at`

func scanWin(row scanner) (*models.AuctionWin, error) {
	var (
		w      models.AuctionWin
		amount string
	)
	err := row.Scan(&w.ID, &w.AuctionID, &w.UserID, &amount, &w.Status,
		&w.OrderID, &w.PaidAt, &w.ReminderSentAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if w.WinningAmount, err = parseDec(amount); err != nil {
		return nil, err
	}
	return &w, nil
}

func insertWin(ctx context.Context, tx pgx.Tx, w *models.AuctionWin) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO auction_wins (id, auction_id, user_id, winning_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, now(), now())
	`, w.ID, w.AuctionID, w.UserID, decArg(w.WinningAmount), w.Status)
	return err
}

func (s *Store) GetWin(ctx context.Context, id uuid.UUID) (*models.AuctionWin, error) {
	w, err := scanWin(s.Pool.QueryRow(ctx, `SELECT `+winCols+` FROM auction_wins WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return w, err
}

func (s *Store) listWins(ctx context.Context, query string, args ...any) ([]*models.AuctionWin, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AuctionWin
	for rows.Next() {
		w, err := scanWin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListOverdueWins selects unpaid wins whose auction's payment deadline has
// passed.
func (s *Store) ListOverdueWins(ctx context.Context, now time.Time) ([]*models.AuctionWin, error) {
	return s.listWins(ctx, `
		SELECT w.id, w.auction_id, w.user_id, w.winning_amount::text, w.status,
			w.order_id, w.paid_at, w.reminder_sent_at, w.created_at, w.updated_at
		FROM auction_wins w
		JOIN auctions a ON a.id = w.auction_id
		WHERE w.status IN ('pending_claim', 'claimed') AND a.payment_deadline < $1
		ORDER BY a.payment_deadline
	`, now)
}

// ListReminderDue selects unclaimed wins whose deadline falls within the
// reminder horizon and that have not been reminded yet.
func (s *Store) ListReminderDue(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.AuctionWin, error) {
	return s.listWins(ctx, `
		SELECT w.id, w.auction_id, w.user_id, w.winning_amount::text, w.status,
			w.order_id, w.paid_at, w.reminder_sent_at, w.created_at, w.updated_at
		FROM auction_wins w
		JOIN auctions a ON a.id = w.auction_id
		WHERE w.status = 'pending_claim'
			AND w.reminder_sent_at IS NULL
			AND a.payment_deadline >= $1
			AND a.payment_deadline <= $2
	`, now, now.Add(horizon))
}

// MarkReminderSent is a one-shot guard so an overlapping tick cannot remind
// twice.
func (s *Store) MarkReminderSent(ctx context.Context, winID uuid.UUID) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE auction_wins SET reminder_sent_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending_claim' AND reminder_sent_at IS NULL
	`, winID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimWin flips pending_claim -> claimed, rechecking owner, status and the
// payment deadline at commit time. A concurrent expiry tick or duplicate claim
// loses the race here.
func (s *Store) ClaimWin(ctx context.Context, winID, buyerID, orderID uuid.UUID, now time.Time) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE auction_wins w
		SET status = 'claimed', order_id = $3, updated_at = now()
		FROM auctions a
		WHERE w.id = $1 AND w.user_id = $2 AND w.status = 'pending_claim'
			AND a.id = w.auction_id AND a.payment_deadline >= $4
	`, winID, buyerID, orderID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkWinPaid flips claimed -> paid and releases the item lock in the same
// transaction.
func (s *Store) MarkWinPaid(ctx context.Context, win *models.AuctionWin, a *models.Auction, paidAt time.Time) (bool, error) {
	return s.applyTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE auction_wins SET status = 'paid', paid_at = $2, updated_at = now()
			WHERE id = $1 AND status = 'claimed'
		`, win.ID, paidAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errPreconditionFailed
		}
		return inventory.Release(ctx, tx, a.ItemRef(), a.ID)
	})
}

// ExpireWin flips an unpaid win to expired and releases the lock that was held
// for the winner, in one transaction.
func (s *Store) ExpireWin(ctx context.Context, win *models.AuctionWin, a *models.Auction) (bool, error) {
	return s.applyTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE auction_wins SET status = 'expired', updated_at = now()
			WHERE id = $1 AND status IN ('pending_claim', 'claimed')
		`, win.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errPreconditionFailed
		}
		return inventory.Release(ctx, tx, a.ItemRef(), a.ID)
	})
}
