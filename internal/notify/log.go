package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogNotifier is the fallback when Redis is not configured.
type LogNotifier struct {
	Log *zap.SugaredLogger
}

func (n *LogNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) error {
	n.Log.Infow("notify", "user_id", userID, "event", event, "payload", payload)
	return nil
}

func (n *LogNotifier) PublishAuctionEvent(ctx context.Context, auctionID uuid.UUID, event string, payload map[string]any) error {
	n.Log.Debugw("auction event", "auction_id", auctionID, "event", event, "payload", payload)
	return nil
}
