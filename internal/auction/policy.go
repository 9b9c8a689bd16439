package auction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/niota4/ageless-literature-sub006/internal/models"
	"github.com/niota4/ageless-literature-sub006/internal/notify"
)

var errManualPriceUnset = errors.New("manual convert price not stored on auction")

const basisPointDenominator = 10000

// ConvertPrice computes the fixed price the convert_fixed policy applies:
// the configured source plus the markup in basis points, rounded to cents.
// highest_bid uses the top bid even when it was below reserve; with no bids it
// falls back to the starting bid.
func ConvertPrice(a *models.Auction, highest *models.Bid) (decimal.Decimal, error) {
	var base decimal.Decimal
	switch a.ConvertPriceSource {
	case models.PriceSourceManual:
		if a.ConvertManualPrice == nil {
			return decimal.Zero, errManualPriceUnset
		}
		base = *a.ConvertManualPrice
	case models.PriceSourceReserve:
		base = a.ReservePrice
	case models.PriceSourceHighestBid:
		if highest != nil {
			base = highest.Amount
		} else {
			base = a.StartingBid
		}
	default:
		base = a.StartingBid
	}

	markup := decimal.NewFromInt(int64(basisPointDenominator + a.ConvertMarkupBps))
	return base.Mul(markup).Div(decimal.NewFromInt(basisPointDenominator)).Round(2), nil
}

// buildRelist copies the auction's configuration into a new scheduled auction
// for the same item. from is the moment the relist was decided: the original
// close for a first-pass no-sale, the reversal time for an expired winner.
func (e *Engine) buildRelist(a *models.Auction, from time.Time) *models.Auction {
	now := e.now()
	startsAt := from.Add(time.Duration(a.RelistDelayHours) * time.Hour)
	parentID := a.ID
	return &models.Auction{
		ID:                 uuid.New(),
		ItemID:             a.ItemID,
		ItemType:           a.ItemType,
		SellerID:           a.SellerID,
		StartingBid:        a.StartingBid,
		ReservePrice:       a.ReservePrice,
		StartsAt:           startsAt,
		EndsAt:             startsAt.Add(a.Duration()),
		PaymentWindowHours: a.PaymentWindowHours,
		Status:             models.AuctionScheduled,
		RelistCount:        a.RelistCount + 1,
		ParentAuctionID:    &parentID,
		EndPolicy:          a.EndPolicy,
		RelistDelayHours:   a.RelistDelayHours,
		RelistMaxCount:     a.RelistMaxCount,
		ConvertPriceSource: a.ConvertPriceSource,
		ConvertManualPrice: a.ConvertManualPrice,
		ConvertMarkupBps:   a.ConvertMarkupBps,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// ApplyNoSalePolicy dispatches the auction's configured end-of-life policy.
// The policy marker on the auction row makes the dispatch idempotent across
// overlapping ticks and across the first-pass/reversal distinction: a second
// run returns ErrPolicyAlreadyApplied, which callers treat as a no-op.
func (e *Engine) ApplyNoSalePolicy(ctx context.Context, a *models.Auction, highest *models.Bid, from time.Time) error {
	switch a.EndPolicy {
	case models.PolicyRelist:
		if a.RelistMaxCount > 0 && a.RelistCount >= a.RelistMaxCount {
			// Limit reached: fall through to no further action.
			e.log.Infow("relist limit reached", "auction_id", a.ID, "relist_count", a.RelistCount)
			return e.markApplied(ctx, a.ID)
		}
		child := e.buildRelist(a, from)
		applied, err := e.store.CreateRelist(ctx, a.ID, child)
		if err != nil {
			return err
		}
		if !applied {
			return models.ErrPolicyAlreadyApplied
		}
		e.log.Infow("auction relisted", "auction_id", a.ID, "child_id", child.ID, "relist_count", child.RelistCount)
		e.emitUser(ctx, a.SellerID, notify.EventRelistCreated, map[string]any{
			"auction_id":   a.ID,
			"child_id":     child.ID,
			"relist_count": child.RelistCount,
		})
		e.emitAuction(ctx, a.ID, notify.EventRelistCreated, map[string]any{"child_id": child.ID})
		return nil

	case models.PolicyConvertFixed:
		price, err := ConvertPrice(a, highest)
		if err != nil {
			return err
		}
		applied, err := e.store.ConvertItemToFixed(ctx, a, price)
		if err != nil {
			return err
		}
		if !applied {
			return models.ErrPolicyAlreadyApplied
		}
		e.log.Infow("item converted to fixed price", "auction_id", a.ID, "price", price.String())
		return nil

	case models.PolicyUnlist:
		applied, err := e.store.UnlistItem(ctx, a)
		if err != nil {
			return err
		}
		if !applied {
			return models.ErrPolicyAlreadyApplied
		}
		e.log.Infow("item unlisted", "auction_id", a.ID)
		return nil

	default: // none
		return e.markApplied(ctx, a.ID)
	}
}

func (e *Engine) markApplied(ctx context.Context, auctionID uuid.UUID) error {
	applied, err := e.store.MarkPolicyApplied(ctx, auctionID)
	if err != nil {
		return err
	}
	if !applied {
		return models.ErrPolicyAlreadyApplied
	}
	return nil
}
