package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AuctionStatus string

const (
	AuctionScheduled AuctionStatus = "scheduled"
	AuctionActive    AuctionStatus = "active"
	AuctionEnded     AuctionStatus = "ended"
)

// EndOutcome is the terminal sub-classification of an ended auction.
type EndOutcome string

const (
	OutcomeSold          EndOutcome = "sold"
	OutcomeReserveNotMet EndOutcome = "reserve_not_met"
	OutcomeNoBids        EndOutcome = "no_bids"
	OutcomeCancelled     EndOutcome = "cancelled"
)

type EndPolicy string

const (
	PolicyNone         EndPolicy = "none"
	PolicyRelist       EndPolicy = "relist"
	PolicyConvertFixed EndPolicy = "convert_fixed"
	PolicyUnlist       EndPolicy = "unlist"
)

type PriceSource string

const (
	PriceSourceManual      PriceSource = "manual"
	PriceSourceReserve     PriceSource = "reserve"
	PriceSourceHighestBid  PriceSource = "highest_bid"
	PriceSourceStartingBid PriceSource = "starting_bid"
)

type WinStatus string

const (
	WinPendingClaim WinStatus = "pending_claim"
	WinClaimed      WinStatus = "claimed"
	WinPaid         WinStatus = "paid"
	WinExpired      WinStatus = "expired"
)

type ItemType string

const (
	ItemBook    ItemType = "book"
	ItemProduct ItemType = "product"
)

type SaleMode string

const (
	SaleModeAuction  SaleMode = "auction"
	SaleModeFixed    SaleMode = "fixed"
	SaleModeUnlisted SaleMode = "unlisted"
)

// ItemRef identifies a sellable catalog item. Books and general products live
// in the same items table, discriminated by type.
type ItemRef struct {
	Type ItemType
	ID   uuid.UUID
}

type Auction struct {
	ID       uuid.UUID
	ItemID   uuid.UUID
	ItemType ItemType
	SellerID uuid.UUID

	StartingBid  decimal.Decimal
	ReservePrice decimal.Decimal // zero means no reserve

	StartsAt           time.Time
	EndsAt             time.Time
	EndedAt            *time.Time
	PaymentWindowHours int
	PaymentDeadline    *time.Time

	Status     AuctionStatus
	EndOutcome EndOutcome // empty until ended

	WinnerBidID       *uuid.UUID
	CurrentHighBidID  *uuid.UUID
	CurrentHighAmount *decimal.Decimal

	RelistCount     int
	ParentAuctionID *uuid.UUID
	PolicyApplied   bool

	EndPolicy          EndPolicy
	RelistDelayHours   int
	RelistMaxCount     int // zero means unlimited
	ConvertPriceSource PriceSource
	ConvertManualPrice *decimal.Decimal
	ConvertMarkupBps   int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Auction) ItemRef() ItemRef {
	return ItemRef{Type: a.ItemType, ID: a.ItemID}
}

// Duration is the scheduled open interval, reused when a relist copies the
// parent's configuration.
func (a *Auction) Duration() time.Duration {
	return a.EndsAt.Sub(a.StartsAt)
}

type Bid struct {
	ID        uuid.UUID
	AuctionID uuid.UUID
	BidderID  uuid.UUID
	Amount    decimal.Decimal
	PlacedAt  time.Time
}

type AuctionWin struct {
	ID             uuid.UUID
	AuctionID      uuid.UUID
	UserID         uuid.UUID
	WinningAmount  decimal.Decimal
	Status         WinStatus
	OrderID        *uuid.UUID
	PaidAt         *time.Time
	ReminderSentAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Item struct {
	ID                 uuid.UUID
	Type               ItemType
	SellerID           uuid.UUID
	Title              string
	SaleMode           SaleMode
	Price              decimal.Decimal
	AuctionLockedUntil *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Locked reports whether the item is under auction exclusivity at now. The
// fixed-price purchase path uses this to reject conflicting sales.
func (i *Item) Locked(now time.Time) bool {
	return i.AuctionLockedUntil != nil && i.AuctionLockedUntil.After(now)
}

func (i *Item) Ref() ItemRef {
	return ItemRef{Type: i.Type, ID: i.ID}
}

type OrderStatus string

const (
	OrderCreated OrderStatus = "created"
	OrderPaid    OrderStatus = "paid"
	OrderVoid    OrderStatus = "void"
)

type Order struct {
	ID        uuid.UUID
	BuyerID   uuid.UUID
	ItemID    uuid.UUID
	ItemType  ItemType
	Amount    decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
