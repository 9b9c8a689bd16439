// Package worker drives settlement: a single periodic tick re-evaluates every
// auction and win needing attention. Rows are processed independently; one
// failing row never blocks the rest of the pass, and lost optimistic races are
// silent no-ops.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/niota4/ageless-literature-sub006/internal/models"
	"github.com/niota4/ageless-literature-sub006/internal/notify"
)

type Store interface {
	ListDueScheduled(ctx context.Context, now time.Time) ([]*models.Auction, error)
	ListDueActive(ctx context.Context, now time.Time) ([]*models.Auction, error)
	ListOverdueWins(ctx context.Context, now time.Time) ([]*models.AuctionWin, error)
	ListPolicyPending(ctx context.Context) ([]*models.Auction, error)
	ListReminderDue(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.AuctionWin, error)
	MarkReminderSent(ctx context.Context, winID uuid.UUID) (bool, error)
}

type Engine interface {
	Activate(ctx context.Context, a *models.Auction) error
	Close(ctx context.Context, a *models.Auction) error
	ExpireWin(ctx context.Context, win *models.AuctionWin) error
	DispatchPolicy(ctx context.Context, a *models.Auction) error
}

type Worker struct {
	Store           Store
	Engine          Engine
	Notifier        notify.Notifier
	Log             *zap.SugaredLogger
	Interval        time.Duration
	ReminderHorizon time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (w *Worker) clock() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now().UTC()
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		if err := w.Tick(ctx); err != nil {
			w.Log.Errorw("settlement tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs the five settlement passes. Only pass-level failures (a broken
// list query) surface as errors; per-row failures are logged and skipped.
func (w *Worker) Tick(ctx context.Context) error {
	now := w.clock()

	if err := w.activateDue(ctx, now); err != nil {
		return err
	}
	if err := w.closeDue(ctx, now); err != nil {
		return err
	}
	if err := w.expireOverdueWins(ctx, now); err != nil {
		return err
	}
	if err := w.retryPolicies(ctx); err != nil {
		return err
	}
	return w.sendReminders(ctx, now)
}

func (w *Worker) activateDue(ctx context.Context, now time.Time) error {
	due, err := w.Store.ListDueScheduled(ctx, now)
	if err != nil {
		return err
	}
	for _, a := range due {
		if err := w.Engine.Activate(ctx, a); err != nil {
			w.Log.Errorw("activate failed", "auction_id", a.ID, "error", err)
		}
	}
	return nil
}

func (w *Worker) closeDue(ctx context.Context, now time.Time) error {
	due, err := w.Store.ListDueActive(ctx, now)
	if err != nil {
		return err
	}
	for _, a := range due {
		if err := w.Engine.Close(ctx, a); err != nil && !errors.Is(err, models.ErrPolicyAlreadyApplied) {
			w.Log.Errorw("close failed", "auction_id", a.ID, "error", err)
		}
	}
	return nil
}

func (w *Worker) expireOverdueWins(ctx context.Context, now time.Time) error {
	overdue, err := w.Store.ListOverdueWins(ctx, now)
	if err != nil {
		return err
	}
	for _, win := range overdue {
		if err := w.Engine.ExpireWin(ctx, win); err != nil && !errors.Is(err, models.ErrPolicyAlreadyApplied) {
			w.Log.Errorw("expire win failed", "win_id", win.ID, "error", err)
		}
	}
	return nil
}

// retryPolicies re-dispatches end policies whose first run failed after the
// close or reversal had already committed. The policy marker makes the retry
// a no-op when the first run actually completed.
func (w *Worker) retryPolicies(ctx context.Context) error {
	pending, err := w.Store.ListPolicyPending(ctx)
	if err != nil {
		return err
	}
	for _, a := range pending {
		if err := w.Engine.DispatchPolicy(ctx, a); err != nil && !errors.Is(err, models.ErrPolicyAlreadyApplied) {
			w.Log.Errorw("policy retry failed", "auction_id", a.ID, "error", err)
		}
	}
	return nil
}

// sendReminders gives unclaimed winners a one-shot nudge before their payment
// window closes.
func (w *Worker) sendReminders(ctx context.Context, now time.Time) error {
	if w.ReminderHorizon <= 0 {
		return nil
	}
	due, err := w.Store.ListReminderDue(ctx, now, w.ReminderHorizon)
	if err != nil {
		return err
	}
	for _, win := range due {
		sent, err := w.Store.MarkReminderSent(ctx, win.ID)
		if err != nil {
			w.Log.Errorw("mark reminder failed", "win_id", win.ID, "error", err)
			continue
		}
		if !sent {
			continue
		}
		if err := w.Notifier.Notify(ctx, win.UserID, notify.EventWinExpiring, map[string]any{
			"win_id":     win.ID,
			"auction_id": win.AuctionID,
		}); err != nil {
			w.Log.Warnw("reminder notify failed", "win_id", win.ID, "error", err)
		}
	}
	return nil
}
