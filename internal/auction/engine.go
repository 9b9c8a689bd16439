// Package auction owns the lifecycle state machine: scheduled auctions open,
// active auctions close against the bid ledger, no-sale outcomes dispatch the
// configured end policy, and unpaid winners are reversed. All transitions are
// idempotent: a lost optimistic race at the store is a silent no-op.
package auction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/niota4/ageless-literature-sub006/internal/bids"
	"github.com/niota4/ageless-literature-sub006/internal/models"
	"github.com/niota4/ageless-literature-sub006/internal/notify"
)

// Store is the transactional persistence surface the state machine drives.
// Transition methods report applied=false when their precondition no longer
// held at commit time.
type Store interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	GetItem(ctx context.Context, ref models.ItemRef) (*models.Item, error)
	CreateAuction(ctx context.Context, a *models.Auction) error
	HighestBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error)

	ActivateAuction(ctx context.Context, a *models.Auction, lockUntil time.Time) (bool, error)
	CloseSold(ctx context.Context, a *models.Auction, winnerBidID uuid.UUID, win *models.AuctionWin, endedAt, paymentDeadline time.Time) (bool, error)
	CloseNoSale(ctx context.Context, a *models.Auction, reason models.EndOutcome, observedHighBidID *uuid.UUID, endedAt time.Time) (bool, error)

	MarkPolicyApplied(ctx context.Context, auctionID uuid.UUID) (bool, error)
	CreateRelist(ctx context.Context, parentID uuid.UUID, child *models.Auction) (bool, error)
	ConvertItemToFixed(ctx context.Context, a *models.Auction, price decimal.Decimal) (bool, error)
	UnlistItem(ctx context.Context, a *models.Auction) (bool, error)

	ExpireWin(ctx context.Context, win *models.AuctionWin, a *models.Auction) (bool, error)
}

type Engine struct {
	store              Store
	notifier           notify.Notifier
	log                *zap.SugaredLogger
	defaultWindowHours int
	now                func() time.Time
}

func NewEngine(store Store, notifier notify.Notifier, log *zap.SugaredLogger, defaultWindowHours int) *Engine {
	if defaultWindowHours <= 0 {
		defaultWindowHours = 48
	}
	return &Engine{
		store:              store,
		notifier:           notifier,
		log:                log,
		defaultWindowHours: defaultWindowHours,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

type CreateParams struct {
	ItemRef            models.ItemRef
	StartingBid        decimal.Decimal
	ReservePrice       decimal.Decimal
	StartsAt           time.Time
	EndsAt             time.Time
	PaymentWindowHours int
	EndPolicy          models.EndPolicy
	RelistDelayHours   int
	RelistMaxCount     int
	ConvertPriceSource models.PriceSource
	ConvertManualPrice *decimal.Decimal
	ConvertMarkupBps   int
}

var (
	ErrInvalidSchedule     = errors.New("ends_at must be after starts_at")
	ErrInvalidStartingBid  = errors.New("starting bid must be positive")
	ErrManualPriceRequired = errors.New("convert price source manual requires a manual price")
)

// Create validates the configuration, rejects items already under auction
// exclusivity, and inserts a scheduled auction. The end policy is immutable
// from this point on.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*models.Auction, error) {
	if !p.EndsAt.After(p.StartsAt) {
		return nil, ErrInvalidSchedule
	}
	if p.StartingBid.Sign() <= 0 {
		return nil, ErrInvalidStartingBid
	}
	if p.EndPolicy == models.PolicyConvertFixed &&
		p.ConvertPriceSource == models.PriceSourceManual && p.ConvertManualPrice == nil {
		return nil, ErrManualPriceRequired
	}

	item, err := e.store.GetItem(ctx, p.ItemRef)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if item.Locked(now) {
		return nil, models.ErrItemLockConflict
	}

	window := p.PaymentWindowHours
	if window <= 0 {
		window = e.defaultWindowHours
	}
	policy := p.EndPolicy
	if policy == "" {
		policy = models.PolicyNone
	}
	source := p.ConvertPriceSource
	if source == "" {
		source = models.PriceSourceStartingBid
	}

	a := &models.Auction{
		ID:                 uuid.New(),
		ItemID:             item.ID,
		ItemType:           item.Type,
		SellerID:           item.SellerID,
		StartingBid:        p.StartingBid,
		ReservePrice:       p.ReservePrice,
		StartsAt:           p.StartsAt.UTC(),
		EndsAt:             p.EndsAt.UTC(),
		PaymentWindowHours: window,
		Status:             models.AuctionScheduled,
		EndPolicy:          policy,
		RelistDelayHours:   p.RelistDelayHours,
		RelistMaxCount:     p.RelistMaxCount,
		ConvertPriceSource: source,
		ConvertManualPrice: p.ConvertManualPrice,
		ConvertMarkupBps:   p.ConvertMarkupBps,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.store.CreateAuction(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func paymentWindow(a *models.Auction) time.Duration {
	return time.Duration(a.PaymentWindowHours) * time.Hour
}

// Activate opens a scheduled auction and locks the item through the scheduled
// close plus the payment window.
func (e *Engine) Activate(ctx context.Context, a *models.Auction) error {
	lockUntil := a.EndsAt.Add(paymentWindow(a))
	applied, err := e.store.ActivateAuction(ctx, a, lockUntil)
	if err != nil {
		return err
	}
	if !applied {
		e.log.Debugw("activate lost race", "auction_id", a.ID)
	}
	return nil
}

// Close runs the active -> ended transition: resolve the winner, then either
// record the sale and open the payment window, or record the no-sale outcome
// and dispatch the end policy.
//
// The winner comes from a read taken before the close transaction, so both
// close transitions recheck current_high_bid_id against the observed bid at
// commit time. A bid that commits between the read and the close turns the
// close into a no-op; the next tick resolves against the fresh state.
func (e *Engine) Close(ctx context.Context, a *models.Auction) error {
	highest, err := e.store.HighestBid(ctx, a.ID)
	if err != nil {
		return err
	}
	winner, outcome := bids.Resolve(a, highest)
	now := e.now()

	if winner != nil {
		deadline := now.Add(paymentWindow(a))
		win := &models.AuctionWin{
			ID:            uuid.New(),
			AuctionID:     a.ID,
			UserID:        winner.BidderID,
			WinningAmount: winner.Amount,
			Status:        models.WinPendingClaim,
		}
		applied, err := e.store.CloseSold(ctx, a, winner.ID, win, now, deadline)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		e.log.Infow("auction sold", "auction_id", a.ID, "win_id", win.ID, "amount", winner.Amount.String())
		e.emitUser(ctx, win.UserID, notify.EventWinCreated, map[string]any{
			"win_id":     win.ID,
			"auction_id": a.ID,
			"amount":     winner.Amount.String(),
			"deadline":   deadline,
		})
		e.emitAuction(ctx, a.ID, notify.EventAuctionEnded, map[string]any{"outcome": models.OutcomeSold})
		return nil
	}

	var observedHighBidID *uuid.UUID
	if highest != nil {
		observedHighBidID = &highest.ID
	}
	applied, err := e.store.CloseNoSale(ctx, a, outcome, observedHighBidID, now)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	e.log.Infow("auction closed without sale", "auction_id", a.ID, "outcome", outcome)
	e.emitAuction(ctx, a.ID, notify.EventAuctionEnded, map[string]any{"outcome": outcome})

	if err := e.ApplyNoSalePolicy(ctx, a, highest, now); err != nil {
		if errors.Is(err, models.ErrPolicyAlreadyApplied) {
			return nil
		}
		return err
	}
	return nil
}

// ExpireWin reverses an unpaid winner: the win expires, the lock held for the
// winner is released, and the original auction's no-sale policy runs. The
// policy marker distinguishes this from a normal first-pass no-sale so the
// same auction cannot relist twice.
func (e *Engine) ExpireWin(ctx context.Context, win *models.AuctionWin) error {
	a, err := e.store.GetAuction(ctx, win.AuctionID)
	if err != nil {
		return err
	}
	applied, err := e.store.ExpireWin(ctx, win, a)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	e.log.Infow("win expired unpaid", "win_id", win.ID, "auction_id", a.ID)
	e.emitUser(ctx, win.UserID, notify.EventWinExpired, map[string]any{
		"win_id":     win.ID,
		"auction_id": a.ID,
	})

	highest, err := e.store.HighestBid(ctx, a.ID)
	if err != nil {
		return err
	}
	if err := e.ApplyNoSalePolicy(ctx, a, highest, e.now()); err != nil {
		if errors.Is(err, models.ErrPolicyAlreadyApplied) {
			return nil
		}
		return err
	}
	return nil
}

// DispatchPolicy re-runs the end policy for an ended auction whose earlier
// dispatch did not complete: the close (or reversal) committed but the policy
// transaction failed, leaving the marker unset. The marker CAS keeps the
// retry safe against an overlapping first attempt.
func (e *Engine) DispatchPolicy(ctx context.Context, a *models.Auction) error {
	highest, err := e.store.HighestBid(ctx, a.ID)
	if err != nil {
		return err
	}
	return e.ApplyNoSalePolicy(ctx, a, highest, e.now())
}

func (e *Engine) emitUser(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) {
	if err := e.notifier.Notify(ctx, userID, event, payload); err != nil {
		e.log.Warnw("notify failed", "event", event, "user_id", userID, "error", err)
	}
}

func (e *Engine) emitAuction(ctx context.Context, auctionID uuid.UUID, event string, payload map[string]any) {
	if err := e.notifier.PublishAuctionEvent(ctx, auctionID, event, payload); err != nil {
		e.log.Warnw("auction event publish failed", "event", event, "auction_id", auctionID, "error", err)
	}
}
