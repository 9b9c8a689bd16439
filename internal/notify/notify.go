// Package notify dispatches fire-and-forget events to users and to the live
// auction feed. Delivery failures are logged by callers and never block a
// state transition.
package notify

import (
	"context"

	"github.com/google/uuid"
)

const (
	EventBidPlaced     = "bid_placed"
	EventAuctionEnded  = "auction_ended"
	EventWinCreated    = "win_created"
	EventWinExpiring   = "win_expiring"
	EventWinExpired    = "win_expired"
	EventWinPaid       = "win_paid"
	EventRelistCreated = "relist_created"
)

type Notifier interface {
	// Notify targets a single user (winner, seller).
	Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) error
	// PublishAuctionEvent feeds everyone watching an auction.
	PublishAuctionEvent(ctx context.Context, auctionID uuid.UUID, event string, payload map[string]any) error
}

// AuctionChannel is the pub/sub channel carrying one auction's event stream.
func AuctionChannel(auctionID uuid.UUID) string {
	return "auction_events:" + auctionID.String()
}

// AuctionChannelPattern matches every auction's event channel.
const AuctionChannelPattern = "auction_events:*"

func UserChannel(userID uuid.UUID) string {
	return "user_events:" + userID.String()
}
