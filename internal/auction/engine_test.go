package auction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/niota4/ageless-literature-sub006/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeStore mimics the conditional-update semantics of the Postgres store:
// every transition checks its precondition and reports applied=false on a
// lost race instead of erroring.
type fakeStore struct {
	auctions map[uuid.UUID]*models.Auction
	items    map[uuid.UUID]*models.Item
	highest  map[uuid.UUID]*models.Bid
	wins     map[uuid.UUID]*models.AuctionWin

	lockUntil map[uuid.UUID]time.Time
	relists   []*models.Auction

	// afterHighestBid fires once after the next HighestBid read, standing in
	// for a bid transaction committing between the read and the close.
	afterHighestBid func()
	// relistErr fails the next CreateRelist, standing in for a transient
	// dispatch failure after the close committed.
	relistErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		auctions:  make(map[uuid.UUID]*models.Auction),
		items:     make(map[uuid.UUID]*models.Item),
		highest:   make(map[uuid.UUID]*models.Bid),
		wins:      make(map[uuid.UUID]*models.AuctionWin),
		lockUntil: make(map[uuid.UUID]time.Time),
	}
}

func (f *fakeStore) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	a, ok := f.auctions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) GetItem(_ context.Context, ref models.ItemRef) (*models.Item, error) {
	i, ok := f.items[ref.ID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return i, nil
}

func (f *fakeStore) CreateAuction(_ context.Context, a *models.Auction) error {
	f.auctions[a.ID] = a
	if i, ok := f.items[a.ItemID]; ok {
		i.SaleMode = models.SaleModeAuction
	}
	return nil
}

func (f *fakeStore) HighestBid(_ context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	b := f.highest[auctionID]
	if f.afterHighestBid != nil {
		hook := f.afterHighestBid
		f.afterHighestBid = nil
		hook()
	}
	return b, nil
}

// placeBid records a committed bid: the bids table and the denormalized high
// columns move together, as in the real insert transaction.
func (f *fakeStore) placeBid(a *models.Auction, b *models.Bid) {
	f.highest[a.ID] = b
	row := f.auctions[a.ID]
	row.CurrentHighBidID = &b.ID
	amount := b.Amount
	row.CurrentHighAmount = &amount
}

func (f *fakeStore) lock(itemID uuid.UUID, until time.Time) {
	if cur, ok := f.lockUntil[itemID]; !ok || until.After(cur) {
		f.lockUntil[itemID] = until
	}
}

func (f *fakeStore) ActivateAuction(_ context.Context, a *models.Auction, lockUntil time.Time) (bool, error) {
	cur := f.auctions[a.ID]
	if cur.Status != models.AuctionScheduled {
		return false, nil
	}
	cur.Status = models.AuctionActive
	f.lock(a.ItemID, lockUntil)
	return true, nil
}

func uuidPtrMatches(p *uuid.UUID, id uuid.UUID) bool {
	return p != nil && *p == id
}

func (f *fakeStore) CloseSold(_ context.Context, a *models.Auction, winnerBidID uuid.UUID, win *models.AuctionWin, endedAt, paymentDeadline time.Time) (bool, error) {
	cur := f.auctions[a.ID]
	if cur.Status != models.AuctionActive || !uuidPtrMatches(cur.CurrentHighBidID, winnerBidID) {
		return false, nil
	}
	cur.Status = models.AuctionEnded
	cur.EndOutcome = models.OutcomeSold
	cur.WinnerBidID = &winnerBidID
	cur.EndedAt = &endedAt
	cur.PaymentDeadline = &paymentDeadline
	f.wins[win.ID] = win
	f.lock(a.ItemID, paymentDeadline)
	return true, nil
}

func (f *fakeStore) CloseNoSale(_ context.Context, a *models.Auction, reason models.EndOutcome, observedHighBidID *uuid.UUID, endedAt time.Time) (bool, error) {
	cur := f.auctions[a.ID]
	if cur.Status != models.AuctionActive {
		return false, nil
	}
	committed := uuid.Nil
	if cur.CurrentHighBidID != nil {
		committed = *cur.CurrentHighBidID
	}
	observed := uuid.Nil
	if observedHighBidID != nil {
		observed = *observedHighBidID
	}
	if committed != observed {
		return false, nil
	}
	cur.Status = models.AuctionEnded
	cur.EndOutcome = reason
	cur.EndedAt = &endedAt
	delete(f.lockUntil, a.ItemID)
	return true, nil
}

func (f *fakeStore) markApplied(auctionID uuid.UUID) bool {
	cur := f.auctions[auctionID]
	if cur.PolicyApplied {
		return false
	}
	cur.PolicyApplied = true
	return true
}

func (f *fakeStore) MarkPolicyApplied(_ context.Context, auctionID uuid.UUID) (bool, error) {
	return f.markApplied(auctionID), nil
}

func (f *fakeStore) CreateRelist(_ context.Context, parentID uuid.UUID, child *models.Auction) (bool, error) {
	if f.relistErr != nil {
		err := f.relistErr
		f.relistErr = nil
		return false, err
	}
	if !f.markApplied(parentID) {
		return false, nil
	}
	f.auctions[child.ID] = child
	f.relists = append(f.relists, child)
	return true, nil
}

func (f *fakeStore) ConvertItemToFixed(_ context.Context, a *models.Auction, price decimal.Decimal) (bool, error) {
	if !f.markApplied(a.ID) {
		return false, nil
	}
	i := f.items[a.ItemID]
	i.SaleMode = models.SaleModeFixed
	i.Price = price
	delete(f.lockUntil, a.ItemID)
	return true, nil
}

func (f *fakeStore) UnlistItem(_ context.Context, a *models.Auction) (bool, error) {
	if !f.markApplied(a.ID) {
		return false, nil
	}
	f.items[a.ItemID].SaleMode = models.SaleModeUnlisted
	delete(f.lockUntil, a.ItemID)
	return true, nil
}

func (f *fakeStore) ExpireWin(_ context.Context, win *models.AuctionWin, a *models.Auction) (bool, error) {
	cur := f.wins[win.ID]
	if cur.Status != models.WinPendingClaim && cur.Status != models.WinClaimed {
		return false, nil
	}
	cur.Status = models.WinExpired
	delete(f.lockUntil, a.ItemID)
	return true, nil
}

type fakeNotifier struct {
	userEvents    []string
	auctionEvents []string
}

func (f *fakeNotifier) Notify(_ context.Context, _ uuid.UUID, event string, _ map[string]any) error {
	f.userEvents = append(f.userEvents, event)
	return nil
}

func (f *fakeNotifier) PublishAuctionEvent(_ context.Context, _ uuid.UUID, event string, _ map[string]any) error {
	f.auctionEvents = append(f.auctionEvents, event)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(store *fakeStore) (*Engine, *fakeNotifier) {
	events := &fakeNotifier{}
	e := NewEngine(store, events, zap.NewNop().Sugar(), 48)
	e.now = fixedClock(baseTime)
	return e, events
}

func seedItem(store *fakeStore) *models.Item {
	i := &models.Item{
		ID:       uuid.New(),
		Type:     models.ItemBook,
		SellerID: uuid.New(),
		Title:    "First Folio",
		SaleMode: models.SaleModeFixed,
		Price:    dec("100"),
	}
	store.items[i.ID] = i
	return i
}

func seedActiveAuction(store *fakeStore, item *models.Item, mutate func(*models.Auction)) *models.Auction {
	a := &models.Auction{
		ID:                 uuid.New(),
		ItemID:             item.ID,
		ItemType:           item.Type,
		SellerID:           item.SellerID,
		StartingBid:        dec("100"),
		StartsAt:           baseTime.Add(-24 * time.Hour),
		EndsAt:             baseTime.Add(-time.Minute),
		PaymentWindowHours: 48,
		Status:             models.AuctionActive,
		EndPolicy:          models.PolicyNone,
		ConvertPriceSource: models.PriceSourceStartingBid,
	}
	if mutate != nil {
		mutate(a)
	}
	store.auctions[a.ID] = a
	return a
}

func TestCreateValidation(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(store)
	item := seedItem(store)

	base := CreateParams{
		ItemRef:     item.Ref(),
		StartingBid: dec("100"),
		StartsAt:    baseTime.Add(time.Hour),
		EndsAt:      baseTime.Add(25 * time.Hour),
	}

	p := base
	p.EndsAt = p.StartsAt
	_, err := e.Create(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	p = base
	p.StartingBid = decimal.Zero
	_, err = e.Create(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidStartingBid)

	p = base
	p.EndPolicy = models.PolicyConvertFixed
	p.ConvertPriceSource = models.PriceSourceManual
	_, err = e.Create(context.Background(), p)
	assert.ErrorIs(t, err, ErrManualPriceRequired)
}

func TestCreateRejectsLockedItem(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(store)
	item := seedItem(store)
	until := baseTime.Add(time.Hour)
	item.AuctionLockedUntil = &until

	_, err := e.Create(context.Background(), CreateParams{
		ItemRef:     item.Ref(),
		StartingBid: dec("100"),
		StartsAt:    baseTime.Add(time.Hour),
		EndsAt:      baseTime.Add(25 * time.Hour),
	})
	assert.ErrorIs(t, err, models.ErrItemLockConflict)
}

func TestCreateAppliesDefaults(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(store)
	item := seedItem(store)

	a, err := e.Create(context.Background(), CreateParams{
		ItemRef:     item.Ref(),
		StartingBid: dec("100"),
		StartsAt:    baseTime.Add(time.Hour),
		EndsAt:      baseTime.Add(25 * time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, models.AuctionScheduled, a.Status)
	assert.Equal(t, 48, a.PaymentWindowHours)
	assert.Equal(t, models.PolicyNone, a.EndPolicy)
	assert.Equal(t, models.PriceSourceStartingBid, a.ConvertPriceSource)
	assert.Equal(t, item.SellerID, a.SellerID)
	assert.Equal(t, models.SaleModeAuction, item.SaleMode)
}

func TestActivateLocksThroughPaymentWindow(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, func(a *models.Auction) {
		a.Status = models.AuctionScheduled
		a.EndsAt = baseTime.Add(24 * time.Hour)
	})

	require.NoError(t, e.Activate(context.Background(), a))
	assert.Equal(t, models.AuctionActive, store.auctions[a.ID].Status)
	assert.Equal(t, a.EndsAt.Add(48*time.Hour), store.lockUntil[item.ID])
}

func TestCloseSoldCreatesWinAndDeadline(t *testing.T) {
	store := newFakeStore()
	e, events := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, nil)
	bidder := uuid.New()
	store.placeBid(a, &models.Bid{ID: uuid.New(), AuctionID: a.ID, BidderID: bidder, Amount: dec("250")})

	require.NoError(t, e.Close(context.Background(), a))

	cur := store.auctions[a.ID]
	assert.Equal(t, models.AuctionEnded, cur.Status)
	assert.Equal(t, models.OutcomeSold, cur.EndOutcome)
	require.NotNil(t, cur.WinnerBidID)
	assert.Equal(t, store.highest[a.ID].ID, *cur.WinnerBidID)
	require.NotNil(t, cur.PaymentDeadline)
	assert.Equal(t, baseTime.Add(48*time.Hour), *cur.PaymentDeadline)

	require.Len(t, store.wins, 1)
	for _, win := range store.wins {
		assert.Equal(t, models.WinPendingClaim, win.Status)
		assert.Equal(t, bidder, win.UserID)
		assert.True(t, win.WinningAmount.Equal(dec("250")))
	}
	assert.Equal(t, store.lockUntil[item.ID], baseTime.Add(48*time.Hour))
	assert.Contains(t, events.userEvents, "win_created")
	assert.Contains(t, events.auctionEvents, "auction_ended")
}

func TestCloseIsIdempotent(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, nil)
	store.placeBid(a, &models.Bid{ID: uuid.New(), BidderID: uuid.New(), Amount: dec("250")})

	require.NoError(t, e.Close(context.Background(), a))
	require.NoError(t, e.Close(context.Background(), a))
	assert.Len(t, store.wins, 1)
}

func TestCloseNoBidsWithPolicyNone(t *testing.T) {
	store := newFakeStore()
	e, events := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, nil)

	require.NoError(t, e.Close(context.Background(), a))

	cur := store.auctions[a.ID]
	assert.Equal(t, models.AuctionEnded, cur.Status)
	assert.Equal(t, models.OutcomeNoBids, cur.EndOutcome)
	assert.True(t, cur.PolicyApplied)
	assert.Empty(t, store.wins)
	assert.NotContains(t, store.lockUntil, item.ID)
	assert.Contains(t, events.auctionEvents, "auction_ended")
}

func TestCloseReserveNotMetRelists(t *testing.T) {
	store := newFakeStore()
	e, events := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, func(a *models.Auction) {
		a.ReservePrice = dec("500")
		a.EndPolicy = models.PolicyRelist
		a.RelistDelayHours = 12
		a.StartsAt = baseTime.Add(-72 * time.Hour)
	})
	store.placeBid(a, &models.Bid{ID: uuid.New(), BidderID: uuid.New(), Amount: dec("300")})

	require.NoError(t, e.Close(context.Background(), a))

	assert.Equal(t, models.OutcomeReserveNotMet, store.auctions[a.ID].EndOutcome)
	require.Len(t, store.relists, 1)
	child := store.relists[0]
	assert.Equal(t, 1, child.RelistCount)
	require.NotNil(t, child.ParentAuctionID)
	assert.Equal(t, a.ID, *child.ParentAuctionID)
	assert.Equal(t, models.AuctionScheduled, child.Status)
	assert.Equal(t, baseTime.Add(12*time.Hour), child.StartsAt)
	assert.Equal(t, a.Duration(), child.Duration())
	assert.True(t, child.ReservePrice.Equal(a.ReservePrice))
	assert.Contains(t, events.userEvents, "relist_created")
}

func TestRelistStopsAtMaxCount(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, func(a *models.Auction) {
		a.EndPolicy = models.PolicyRelist
		a.RelistMaxCount = 2
		a.RelistCount = 2
	})

	require.NoError(t, e.Close(context.Background(), a))

	assert.Empty(t, store.relists)
	assert.True(t, store.auctions[a.ID].PolicyApplied)
}

func TestCloseConvertsToFixedPrice(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, func(a *models.Auction) {
		a.ReservePrice = dec("600")
		a.EndPolicy = models.PolicyConvertFixed
		a.ConvertPriceSource = models.PriceSourceHighestBid
		a.ConvertMarkupBps = 1000
	})
	store.placeBid(a, &models.Bid{ID: uuid.New(), BidderID: uuid.New(), Amount: dec("500")})

	require.NoError(t, e.Close(context.Background(), a))

	assert.Equal(t, models.SaleModeFixed, item.SaleMode)
	assert.True(t, item.Price.Equal(dec("550")), "got %s", item.Price)
	assert.NotContains(t, store.lockUntil, item.ID)
}

func TestCloseUnlistsItem(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, func(a *models.Auction) {
		a.EndPolicy = models.PolicyUnlist
	})

	require.NoError(t, e.Close(context.Background(), a))
	assert.Equal(t, models.SaleModeUnlisted, item.SaleMode)
}

func TestExpireWinReversesAndRelists(t *testing.T) {
	store := newFakeStore()
	e, events := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, func(a *models.Auction) {
		a.EndPolicy = models.PolicyRelist
	})
	bidder := uuid.New()
	store.placeBid(a, &models.Bid{ID: uuid.New(), BidderID: bidder, Amount: dec("250")})
	require.NoError(t, e.Close(context.Background(), a))

	var win *models.AuctionWin
	for _, w := range store.wins {
		win = w
	}
	require.NotNil(t, win)

	require.NoError(t, e.ExpireWin(context.Background(), win))

	assert.Equal(t, models.WinExpired, win.Status)
	assert.NotContains(t, store.lockUntil, item.ID)
	// The sale outcome stays on the auction row; the win status and policy
	// marker carry the reversal.
	assert.Equal(t, models.OutcomeSold, store.auctions[a.ID].EndOutcome)
	require.Len(t, store.relists, 1)
	assert.Contains(t, events.userEvents, "win_expired")
	assert.Contains(t, events.userEvents, "relist_created")
}

func TestExpireWinIsIdempotent(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, func(a *models.Auction) {
		a.EndPolicy = models.PolicyRelist
	})
	store.placeBid(a, &models.Bid{ID: uuid.New(), BidderID: uuid.New(), Amount: dec("250")})
	require.NoError(t, e.Close(context.Background(), a))

	var win *models.AuctionWin
	for _, w := range store.wins {
		win = w
	}
	require.NoError(t, e.ExpireWin(context.Background(), win))
	require.NoError(t, e.ExpireWin(context.Background(), win))
	assert.Len(t, store.relists, 1)
}

func TestCloseRejectsStaleWinner(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, nil)
	early := &models.Bid{ID: uuid.New(), AuctionID: a.ID, BidderID: uuid.New(), Amount: dec("200")}
	store.placeBid(a, early)

	// A higher bid commits between the worker's high-bid read and the close
	// transaction.
	late := &models.Bid{ID: uuid.New(), AuctionID: a.ID, BidderID: uuid.New(), Amount: dec("300")}
	store.afterHighestBid = func() { store.placeBid(a, late) }

	require.NoError(t, e.Close(context.Background(), a))

	// The stale close must not commit: no win, auction still active.
	cur := store.auctions[a.ID]
	assert.Equal(t, models.AuctionActive, cur.Status)
	assert.Nil(t, cur.WinnerBidID)
	assert.Empty(t, store.wins)

	// The next tick resolves against the fresh state and sells to the late
	// bidder at the higher amount.
	require.NoError(t, e.Close(context.Background(), a))
	require.NotNil(t, cur.WinnerBidID)
	assert.Equal(t, late.ID, *cur.WinnerBidID)
	assert.Equal(t, cur.CurrentHighBidID, cur.WinnerBidID)
	require.Len(t, store.wins, 1)
	for _, win := range store.wins {
		assert.Equal(t, late.BidderID, win.UserID)
		assert.True(t, win.WinningAmount.Equal(dec("300")))
	}
}

func TestCloseNoSaleRejectsWhenLateBidCommits(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, nil)

	// No bids at read time; a qualifying bid commits before the close.
	late := &models.Bid{ID: uuid.New(), AuctionID: a.ID, BidderID: uuid.New(), Amount: dec("150")}
	store.afterHighestBid = func() { store.placeBid(a, late) }

	require.NoError(t, e.Close(context.Background(), a))
	assert.Equal(t, models.AuctionActive, store.auctions[a.ID].Status)

	require.NoError(t, e.Close(context.Background(), a))
	cur := store.auctions[a.ID]
	assert.Equal(t, models.OutcomeSold, cur.EndOutcome)
	require.NotNil(t, cur.WinnerBidID)
	assert.Equal(t, late.ID, *cur.WinnerBidID)
}

func TestDispatchPolicyRecoversFailedRelist(t *testing.T) {
	store := newFakeStore()
	e, _ := newTestEngine(store)
	item := seedItem(store)
	a := seedActiveAuction(store, item, func(a *models.Auction) {
		a.EndPolicy = models.PolicyRelist
	})
	store.relistErr = errors.New("connection reset")

	// The close commits, then the relist transaction fails: the auction is
	// ended with the marker still unset.
	require.Error(t, e.Close(context.Background(), a))
	cur := store.auctions[a.ID]
	assert.Equal(t, models.AuctionEnded, cur.Status)
	assert.False(t, cur.PolicyApplied)
	assert.Empty(t, store.relists)

	require.NoError(t, e.DispatchPolicy(context.Background(), a))
	assert.True(t, cur.PolicyApplied)
	assert.Len(t, store.relists, 1)

	err := e.DispatchPolicy(context.Background(), a)
	assert.ErrorIs(t, err, models.ErrPolicyAlreadyApplied)
	assert.Len(t, store.relists, 1)
}
