// Package bids records the contested bid stream and resolves winners.
package bids

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/niota4/ageless-literature-sub006/internal/models"
	"github.com/niota4/ageless-literature-sub006/internal/notify"
)

// Store inserts a bid atomically: the auction row is locked, the bid is
// validated against the committed state, and the denormalized high-bid columns
// are updated in the same transaction.
type Store interface {
	InsertBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount decimal.Decimal, now time.Time) (*models.Bid, error)
}

type Ledger struct {
	store  Store
	events notify.Notifier
	log    *zap.SugaredLogger
}

func NewLedger(store Store, events notify.Notifier, log *zap.SugaredLogger) *Ledger {
	return &Ledger{store: store, events: events, log: log}
}

func (l *Ledger) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount decimal.Decimal) (*models.Bid, error) {
	if amount.Sign() <= 0 {
		return nil, models.ErrBidTooLow
	}

	bid, err := l.store.InsertBid(ctx, auctionID, bidderID, amount, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := l.events.PublishAuctionEvent(ctx, auctionID, notify.EventBidPlaced, map[string]any{
		"bid_id": bid.ID,
		"amount": bid.Amount.String(),
	}); err != nil {
		l.log.Warnw("bid event publish failed", "auction_id", auctionID, "error", err)
	}
	return bid, nil
}
