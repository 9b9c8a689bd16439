package bids

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/niota4/ageless-literature-sub006/internal/models"
)

// Validate decides whether a bid may be accepted against the auction row as
// currently committed. The store runs it under the auction's row lock so two
// concurrent submissions see each other's effect: the loser of the race is
// validated against the winner's amount and gets ErrBidTooLow.
func Validate(a *models.Auction, amount decimal.Decimal, now time.Time) error {
	if a.Status == models.AuctionEnded {
		return models.ErrAuctionAlreadyEnded
	}
	if a.Status != models.AuctionActive || now.After(a.EndsAt) {
		return models.ErrAuctionNotActive
	}
	if a.CurrentHighAmount != nil {
		// Strictly greater than the standing high bid; ties lose.
		if amount.Cmp(*a.CurrentHighAmount) <= 0 {
			return models.ErrBidTooLow
		}
		return nil
	}
	// First bid must meet the starting bid.
	if amount.Cmp(a.StartingBid) < 0 {
		return models.ErrBidTooLow
	}
	return nil
}

// Resolve determines the winner at close time. A zero reserve means no
// reserve: any accepted bid qualifies.
func Resolve(a *models.Auction, highest *models.Bid) (*models.Bid, models.EndOutcome) {
	if highest == nil {
		return nil, models.OutcomeNoBids
	}
	if a.ReservePrice.Sign() > 0 && highest.Amount.Cmp(a.ReservePrice) < 0 {
		return nil, models.OutcomeReserveNotMet
	}
	return highest, models.OutcomeSold
}
