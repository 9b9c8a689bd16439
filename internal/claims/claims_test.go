package claims

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

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	win     *models.AuctionWin
	auction *models.Auction

	claimApplied bool
	paidApplied  bool

	// expireOnClaimFail simulates the expiry tick winning the race: the failed
	// CAS leaves the win expired for the re-read.
	expireOnClaimFail bool
}

func (f *fakeStore) GetWin(_ context.Context, id uuid.UUID) (*models.AuctionWin, error) {
	if f.win == nil || f.win.ID != id {
		return nil, models.ErrNotFound
	}
	return f.win, nil
}

func (f *fakeStore) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	if f.auction == nil || f.auction.ID != id {
		return nil, models.ErrNotFound
	}
	return f.auction, nil
}

func (f *fakeStore) ClaimWin(_ context.Context, winID, buyerID, orderID uuid.UUID, now time.Time) (bool, error) {
	if !f.claimApplied {
		if f.expireOnClaimFail {
			f.win.Status = models.WinExpired
		}
		return false, nil
	}
	f.win.Status = models.WinClaimed
	f.win.OrderID = &orderID
	return true, nil
}

func (f *fakeStore) MarkWinPaid(_ context.Context, win *models.AuctionWin, _ *models.Auction, paidAt time.Time) (bool, error) {
	if !f.paidApplied {
		return false, nil
	}
	f.win.Status = models.WinPaid
	f.win.PaidAt = &paidAt
	return true, nil
}

type fakeOrders struct {
	created []uuid.UUID
	voided  []uuid.UUID
	paid    []uuid.UUID
	err     error
}

func (f *fakeOrders) Create(_ context.Context, _ uuid.UUID, _ models.ItemRef, _ decimal.Decimal) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	id := uuid.New()
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeOrders) Void(_ context.Context, orderID uuid.UUID) error {
	f.voided = append(f.voided, orderID)
	return nil
}

func (f *fakeOrders) MarkPaid(_ context.Context, orderID uuid.UUID) error {
	f.paid = append(f.paid, orderID)
	return nil
}

type fakeCharger struct {
	charged []uuid.UUID
	err     error
}

func (f *fakeCharger) Charge(_ context.Context, orderID uuid.UUID, _ decimal.Decimal) error {
	if f.err != nil {
		return f.err
	}
	f.charged = append(f.charged, orderID)
	return nil
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, _ uuid.UUID, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeNotifier) PublishAuctionEvent(_ context.Context, _ uuid.UUID, event string, _ map[string]any) error {
	return nil
}

func seedWin(status models.WinStatus) *fakeStore {
	buyerID := uuid.New()
	deadline := baseTime.Add(24 * time.Hour)
	auctionID := uuid.New()
	store := &fakeStore{
		win: &models.AuctionWin{
			ID:            uuid.New(),
			AuctionID:     auctionID,
			UserID:        buyerID,
			WinningAmount: dec("250"),
			Status:        status,
		},
		auction: &models.Auction{
			ID:              auctionID,
			ItemID:          uuid.New(),
			ItemType:        models.ItemBook,
			PaymentDeadline: &deadline,
		},
		claimApplied: true,
		paidApplied:  true,
	}
	return store
}

func newTestService(store *fakeStore) (*Service, *fakeOrders, *fakeCharger, *fakeNotifier) {
	oc := &fakeOrders{}
	charger := &fakeCharger{}
	notifier := &fakeNotifier{}
	s := NewService(store, oc, charger, notifier, zap.NewNop().Sugar())
	s.now = func() time.Time { return baseTime }
	return s, oc, charger, notifier
}

func TestClaimCreatesOrder(t *testing.T) {
	store := seedWin(models.WinPendingClaim)
	s, oc, _, _ := newTestService(store)

	win, err := s.Claim(context.Background(), store.win.ID, store.win.UserID)
	require.NoError(t, err)

	assert.Equal(t, models.WinClaimed, win.Status)
	require.NotNil(t, win.OrderID)
	require.Len(t, oc.created, 1)
	assert.Equal(t, oc.created[0], *win.OrderID)
}

func TestClaimRejectsWrongOwner(t *testing.T) {
	store := seedWin(models.WinPendingClaim)
	s, _, _, _ := newTestService(store)

	_, err := s.Claim(context.Background(), store.win.ID, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotWinOwner)
}

func TestClaimRejectsAlreadyClaimed(t *testing.T) {
	store := seedWin(models.WinClaimed)
	s, oc, _, _ := newTestService(store)

	_, err := s.Claim(context.Background(), store.win.ID, store.win.UserID)
	assert.ErrorIs(t, err, models.ErrAlreadyClaimed)
	assert.Empty(t, oc.created)
}

func TestClaimRejectsExpiredWindow(t *testing.T) {
	store := seedWin(models.WinPendingClaim)
	past := baseTime.Add(-time.Hour)
	store.auction.PaymentDeadline = &past
	s, oc, _, _ := newTestService(store)

	_, err := s.Claim(context.Background(), store.win.ID, store.win.UserID)
	assert.ErrorIs(t, err, models.ErrWindowExpired)
	assert.Empty(t, oc.created)
}

func TestClaimVoidsOrderOnLostRace(t *testing.T) {
	store := seedWin(models.WinPendingClaim)
	store.claimApplied = false
	s, oc, _, _ := newTestService(store)

	_, err := s.Claim(context.Background(), store.win.ID, store.win.UserID)
	assert.ErrorIs(t, err, models.ErrAlreadyClaimed)
	require.Len(t, oc.created, 1)
	assert.Equal(t, oc.created, oc.voided)
}

func TestClaimReportsExpiryOnLostRace(t *testing.T) {
	store := seedWin(models.WinPendingClaim)
	store.claimApplied = false
	store.expireOnClaimFail = true
	s, oc, _, _ := newTestService(store)

	_, err := s.Claim(context.Background(), store.win.ID, store.win.UserID)
	assert.ErrorIs(t, err, models.ErrWindowExpired)
	assert.Equal(t, oc.created, oc.voided)
}

func TestPayCapturesChargeAndReleases(t *testing.T) {
	store := seedWin(models.WinClaimed)
	orderID := uuid.New()
	store.win.OrderID = &orderID
	s, oc, charger, notifier := newTestService(store)

	win, err := s.Pay(context.Background(), store.win.ID, store.win.UserID)
	require.NoError(t, err)

	assert.Equal(t, models.WinPaid, win.Status)
	require.NotNil(t, win.PaidAt)
	assert.Equal(t, []uuid.UUID{orderID}, charger.charged)
	assert.Equal(t, []uuid.UUID{orderID}, oc.paid)
	assert.Contains(t, notifier.events, "win_paid")
}

func TestPayRejectsUnclaimed(t *testing.T) {
	store := seedWin(models.WinPendingClaim)
	s, _, charger, _ := newTestService(store)

	_, err := s.Pay(context.Background(), store.win.ID, store.win.UserID)
	assert.ErrorIs(t, err, models.ErrNotClaimed)
	assert.Empty(t, charger.charged)
}

func TestPayRejectsAlreadyPaid(t *testing.T) {
	store := seedWin(models.WinPaid)
	s, _, charger, _ := newTestService(store)

	_, err := s.Pay(context.Background(), store.win.ID, store.win.UserID)
	assert.ErrorIs(t, err, models.ErrAlreadyPaid)
	assert.Empty(t, charger.charged)
}

func TestPayChargeFailureLeavesWinClaimed(t *testing.T) {
	store := seedWin(models.WinClaimed)
	orderID := uuid.New()
	store.win.OrderID = &orderID
	s, oc, charger, _ := newTestService(store)
	charger.err = errors.New("card declined")

	_, err := s.Pay(context.Background(), store.win.ID, store.win.UserID)
	require.Error(t, err)
	assert.Equal(t, models.WinClaimed, store.win.Status)
	assert.Empty(t, oc.paid)
}

func TestPayLostRaceAfterCapture(t *testing.T) {
	store := seedWin(models.WinClaimed)
	orderID := uuid.New()
	store.win.OrderID = &orderID
	store.paidApplied = false
	s, oc, _, _ := newTestService(store)

	_, err := s.Pay(context.Background(), store.win.ID, store.win.UserID)
	assert.ErrorIs(t, err, models.ErrWindowExpired)
	assert.Empty(t, oc.paid)
}
