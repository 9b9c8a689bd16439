// Package claims turns an auction win into a paid order: claim inside the
// payment window creates the order, pay captures the charge and releases the
// item.
package claims

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/niota4/ageless-literature-sub006/internal/models"
	"github.com/niota4/ageless-literature-sub006/internal/notify"
	"github.com/niota4/ageless-literature-sub006/internal/orders"
	"github.com/niota4/ageless-literature-sub006/internal/payments"
)

type Store interface {
	GetWin(ctx context.Context, id uuid.UUID) (*models.AuctionWin, error)
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	// ClaimWin rechecks status, owner and deadline at commit time.
	ClaimWin(ctx context.Context, winID, buyerID, orderID uuid.UUID, now time.Time) (bool, error)
	// MarkWinPaid flips claimed -> paid and releases the item lock together.
	MarkWinPaid(ctx context.Context, win *models.AuctionWin, a *models.Auction, paidAt time.Time) (bool, error)
}

type Service struct {
	store    Store
	orders   orders.Creator
	charger  payments.Charger
	notifier notify.Notifier
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewService(store Store, oc orders.Creator, charger payments.Charger, notifier notify.Notifier, log *zap.SugaredLogger) *Service {
	return &Service{
		store:    store,
		orders:   oc,
		charger:  charger,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) loadWin(ctx context.Context, winID, buyerID uuid.UUID) (*models.AuctionWin, *models.Auction, error) {
	win, err := s.store.GetWin(ctx, winID)
	if err != nil {
		return nil, nil, err
	}
	if win.UserID != buyerID {
		return nil, nil, models.ErrNotWinOwner
	}
	a, err := s.store.GetAuction(ctx, win.AuctionID)
	if err != nil {
		return nil, nil, err
	}
	return win, a, nil
}

// Claim creates an order for the win and moves it to claimed. Order creation
// is an external collaborator, so it cannot share the win's transaction: the
// order is created first and voided best-effort if the conditional claim loses
// a race with a duplicate claim or the expiry tick.
func (s *Service) Claim(ctx context.Context, winID, buyerID uuid.UUID) (*models.AuctionWin, error) {
	win, a, err := s.loadWin(ctx, winID, buyerID)
	if err != nil {
		return nil, err
	}
	switch win.Status {
	case models.WinClaimed, models.WinPaid:
		return nil, models.ErrAlreadyClaimed
	case models.WinExpired:
		return nil, models.ErrWindowExpired
	}
	now := s.now()
	if a.PaymentDeadline == nil || now.After(*a.PaymentDeadline) {
		return nil, models.ErrWindowExpired
	}

	orderID, err := s.orders.Create(ctx, buyerID, a.ItemRef(), win.WinningAmount)
	if err != nil {
		return nil, err
	}

	applied, err := s.store.ClaimWin(ctx, winID, buyerID, orderID, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		if verr := s.orders.Void(ctx, orderID); verr != nil {
			s.log.Warnw("voiding orphan order failed", "order_id", orderID, "error", verr)
		}
		// Re-read to report why the claim lost.
		cur, rerr := s.store.GetWin(ctx, winID)
		if rerr == nil && cur.Status == models.WinExpired {
			return nil, models.ErrWindowExpired
		}
		return nil, models.ErrAlreadyClaimed
	}

	s.log.Infow("win claimed", "win_id", winID, "order_id", orderID)
	win.Status = models.WinClaimed
	win.OrderID = &orderID
	return win, nil
}

// Pay captures the charge through the external gateway and marks the win and
// order paid. A capture failure leaves the win claimed; the deadline-expiry
// path resolves it eventually.
func (s *Service) Pay(ctx context.Context, winID, buyerID uuid.UUID) (*models.AuctionWin, error) {
	win, a, err := s.loadWin(ctx, winID, buyerID)
	if err != nil {
		return nil, err
	}
	switch win.Status {
	case models.WinPendingClaim:
		return nil, models.ErrNotClaimed
	case models.WinPaid:
		return nil, models.ErrAlreadyPaid
	case models.WinExpired:
		return nil, models.ErrWindowExpired
	}
	if win.OrderID == nil {
		return nil, models.ErrNotClaimed
	}

	if err := s.charger.Charge(ctx, *win.OrderID, win.WinningAmount); err != nil {
		s.log.Warnw("charge capture failed", "win_id", winID, "order_id", *win.OrderID, "error", err)
		return nil, err
	}

	now := s.now()
	applied, err := s.store.MarkWinPaid(ctx, win, a, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Charge captured but the win expired under us; needs manual refund.
		s.log.Errorw("charge captured for a win no longer claimable", "win_id", winID, "order_id", *win.OrderID)
		return nil, models.ErrWindowExpired
	}

	if err := s.orders.MarkPaid(ctx, *win.OrderID); err != nil {
		s.log.Warnw("marking order paid failed", "order_id", *win.OrderID, "error", err)
	}
	if err := s.notifier.Notify(ctx, buyerID, notify.EventWinPaid, map[string]any{
		"win_id":   winID,
		"order_id": *win.OrderID,
	}); err != nil {
		s.log.Warnw("notify failed", "event", notify.EventWinPaid, "error", err)
	}

	s.log.Infow("win paid", "win_id", winID, "order_id", *win.OrderID)
	win.Status = models.WinPaid
	win.PaidAt = &now
	return win, nil
}
