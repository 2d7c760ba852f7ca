package auction_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
	apperrors "github.com/bidhaus/auction-backend/internal/domain/errors"
	"github.com/bidhaus/auction-backend/internal/domain/values"
	auctionsvc "github.com/bidhaus/auction-backend/internal/service/auction"
	"github.com/bidhaus/auction-backend/internal/testutil/fixtures"
	"github.com/bidhaus/auction-backend/internal/testutil/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type engineDeps struct {
	store     *mocks.AuctionStore
	publisher *mocks.Publisher
	notifier  *mocks.Notifier
	clock     *auction.MockClock
}

func newEngine(t *testing.T, cfg auctionsvc.Config) (auctionsvc.Service, *engineDeps) {
	t.Helper()

	deps := &engineDeps{
		store:     mocks.NewAuctionStore(),
		publisher: mocks.NewPublisher(),
		notifier:  mocks.NewNotifier(),
		clock:     auction.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	svc := auctionsvc.NewService(deps.store, deps.publisher, deps.notifier, nil, deps.clock, cfg, testLogger())
	return svc, deps
}

func usd(t *testing.T, amount float64) values.Money {
	t.Helper()
	return values.MustNewMoneyFromFloat(amount, "USD")
}

func TestCreateAuction(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})
	owner := auctionsvc.Actor{ID: uuid.New()}

	a, err := svc.CreateAuction(context.Background(), owner, auctionsvc.CreateAuctionRequest{
		Title:       "Road bike",
		Description: "Steel frame, 56cm",
		StartPrice:  usd(t, 300),
		StartTime:   deps.clock.Now().Add(time.Hour),
		EndTime:     deps.clock.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, auction.StatusUpcoming, a.Status)
	assert.Equal(t, owner.ID, a.OwnerID)
	assert.True(t, a.CurrentPrice.Equal(a.StartPrice))
	assert.Equal(t, int64(1), deps.store.Version(a.ID))
}

func TestCreateAuction_Invalid(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	_, err := svc.CreateAuction(context.Background(), auctionsvc.Actor{ID: uuid.New()}, auctionsvc.CreateAuctionRequest{
		Title:       "",
		Description: "No title",
		StartPrice:  usd(t, 10),
		StartTime:   deps.clock.Now().Add(time.Hour),
		EndTime:     deps.clock.Now().Add(2 * time.Hour),
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "MISSING_TITLE", appErr.Code)
}

func TestGetAuction_NotFound(t *testing.T) {
	svc, _ := newEngine(t, auctionsvc.Config{})

	_, err := svc.GetAuction(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrAuctionNotFound)
}

func TestGetAuction_AppliesOverdueTransition(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	a := fixtures.NewAuction(t).Build()
	deps.store.Seed(a)

	// Past the start time but never swept
	deps.clock.Advance(2 * time.Hour)

	got, err := svc.GetAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusActive, got.Status)
	assert.Equal(t, int64(2), deps.store.Version(a.ID))

	events := deps.publisher.EventsOfType(auction.EventStatusChanged)
	require.Len(t, events, 1)
	assert.Equal(t, auction.StatusActive, *events[0].NewStatus)
}

func TestPlaceBid_Accepted(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	a := fixtures.NewAuction(t).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)
	deps.clock.Advance(2 * time.Hour)

	bidder := uuid.New()
	placed, err := svc.PlaceBid(context.Background(), bidder, a.ID, usd(t, 101))
	require.NoError(t, err)

	assert.Equal(t, bidder, placed.BidderID)
	assert.Equal(t, "101.00 USD", placed.Amount.String())

	stored, err := deps.store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Bids, 1)
	assert.True(t, stored.CurrentPrice.Equal(placed.Amount))
	assert.Equal(t, int64(2), stored.Version)

	events := deps.publisher.EventsOfType(auction.EventBidPlaced)
	require.Len(t, events, 1)
	assert.Equal(t, bidder, *events[0].BidderID)
	assert.True(t, placed.Amount.Equal(*events[0].Amount))
}

func TestPlaceBid_Rejections(t *testing.T) {
	owner := uuid.New()

	tests := []struct {
		name    string
		status  auction.Status
		bidder  uuid.UUID
		amount  float64
		wantErr *apperrors.AppError
	}{
		{"upcoming auction", auction.StatusUpcoming, uuid.New(), 200, apperrors.ErrBidNotActive},
		{"closed auction", auction.StatusClosed, uuid.New(), 200, apperrors.ErrBidNotActive},
		{"owner bids", auction.StatusActive, owner, 200, apperrors.ErrBidSelf},
		{"equal to current price", auction.StatusActive, uuid.New(), 100, apperrors.ErrBidTooLow},
		{"below current price", auction.StatusActive, uuid.New(), 99, apperrors.ErrBidTooLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newEngine(t, auctionsvc.Config{})

			b := fixtures.NewAuction(t).WithOwner(owner).WithStatus(tt.status)
			a := b.Build()
			deps.store.Seed(a)
			if tt.status == auction.StatusActive {
				deps.clock.Advance(2 * time.Hour)
			}

			_, err := svc.PlaceBid(context.Background(), tt.bidder, a.ID, usd(t, tt.amount))
			assert.ErrorIs(t, err, tt.wantErr)

			stored, getErr := deps.store.GetByID(context.Background(), a.ID)
			require.NoError(t, getErr)
			assert.Empty(t, stored.Bids, "rejected bid must not be recorded")
		})
	}
}

func TestPlaceBid_RejectsCurrencyMismatch(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	a := fixtures.NewAuction(t).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)
	deps.clock.Advance(2 * time.Hour)

	_, err := svc.PlaceBid(context.Background(), uuid.New(), a.ID, values.MustNewMoneyFromFloat(500, values.EUR))
	assert.ErrorIs(t, err, apperrors.ErrBidCurrency)

	stored, err := deps.store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Bids)
}

func TestPlaceBid_SequenceFromMultipleBidders(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	owner := uuid.New()
	a := fixtures.NewAuction(t).WithOwner(owner).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)
	deps.clock.Advance(2 * time.Hour)

	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	_, err := svc.PlaceBid(ctx, alice, a.ID, usd(t, 100))
	assert.ErrorIs(t, err, apperrors.ErrBidTooLow)

	_, err = svc.PlaceBid(ctx, alice, a.ID, usd(t, 101))
	require.NoError(t, err)

	_, err = svc.PlaceBid(ctx, owner, a.ID, usd(t, 150))
	assert.ErrorIs(t, err, apperrors.ErrBidSelf)

	_, err = svc.PlaceBid(ctx, bob, a.ID, usd(t, 150))
	require.NoError(t, err)

	_, err = svc.PlaceBid(ctx, alice, a.ID, usd(t, 120))
	assert.ErrorIs(t, err, apperrors.ErrBidTooLow)

	stored, err := deps.store.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, stored.Bids, 2)
	assert.Equal(t, "150.00 USD", stored.CurrentPrice.String())

	// Bid amounts are strictly increasing in placement order
	for i := 1; i < len(stored.Bids); i++ {
		assert.True(t, stored.Bids[i].Amount.GreaterThan(stored.Bids[i-1].Amount))
	}
}

func TestPlaceBid_RejectsWhenEndTimePassedUnswept(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	a := fixtures.NewAuction(t).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)

	// End time elapsed but the sweeper has not run yet
	deps.clock.Advance(26 * time.Hour)

	_, err := svc.PlaceBid(context.Background(), uuid.New(), a.ID, usd(t, 500))
	assert.ErrorIs(t, err, apperrors.ErrBidNotActive)
}

func TestPlaceBid_NotifiesOutbidBidder(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	a := fixtures.NewAuction(t).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)
	deps.clock.Advance(2 * time.Hour)

	ctx := context.Background()
	first, second := uuid.New(), uuid.New()

	_, err := svc.PlaceBid(ctx, first, a.ID, usd(t, 110))
	require.NoError(t, err)

	_, err = svc.PlaceBid(ctx, second, a.ID, usd(t, 120))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(deps.notifier.Outbid()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, first, deps.notifier.Outbid()[0].BidderID)
}

func TestPlaceBid_NoOutbidNoticeWhenRaisingOwnBid(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	a := fixtures.NewAuction(t).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)
	deps.clock.Advance(2 * time.Hour)

	ctx := context.Background()
	bidder := uuid.New()

	_, err := svc.PlaceBid(ctx, bidder, a.ID, usd(t, 110))
	require.NoError(t, err)
	_, err = svc.PlaceBid(ctx, bidder, a.ID, usd(t, 120))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, deps.notifier.Outbid())
}

func TestPlaceBid_ConcurrentBiddersSerialize(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	a := fixtures.NewAuction(t).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)
	deps.clock.Advance(2 * time.Hour)

	ctx := context.Background()
	amounts := []float64{200, 201}

	var wg sync.WaitGroup
	errs := make([]error, len(amounts))
	for i, amount := range amounts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.PlaceBid(ctx, uuid.New(), a.ID, usd(t, amount))
		}()
	}
	wg.Wait()

	stored, err := deps.store.GetByID(ctx, a.ID)
	require.NoError(t, err)

	// Whichever order the lock granted, the auction state is consistent:
	// the 201 bid always lands, the 200 bid only if it went first.
	assert.Equal(t, "201.00 USD", stored.CurrentPrice.String())
	for i := 1; i < len(stored.Bids); i++ {
		assert.True(t, stored.Bids[i].Amount.GreaterThan(stored.Bids[i-1].Amount))
	}
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, apperrors.ErrBidTooLow)
		}
	}
}

func TestPlaceBid_RetriesVersionConflict(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{ConflictRetries: 3})

	a := fixtures.NewAuction(t).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)
	deps.clock.Advance(2 * time.Hour)

	// Another instance writes between our read and our write, once
	var once sync.Once
	deps.store.UpdateHook = func(*auction.Auction) {
		once.Do(func() { deps.store.BumpVersion(a.ID) })
	}

	placed, err := svc.PlaceBid(context.Background(), uuid.New(), a.ID, usd(t, 150))
	require.NoError(t, err)
	assert.Equal(t, "150.00 USD", placed.Amount.String())
}

func TestPlaceBid_BusyWhenLockHeld(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{LockWait: 50 * time.Millisecond})

	a := fixtures.NewAuction(t).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)
	deps.clock.Advance(2 * time.Hour)

	holding := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	deps.store.UpdateHook = func(*auction.Auction) {
		once.Do(func() {
			close(holding)
			<-proceed
		})
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.PlaceBid(context.Background(), uuid.New(), a.ID, usd(t, 110))
		done <- err
	}()
	<-holding

	_, err := svc.PlaceBid(context.Background(), uuid.New(), a.ID, usd(t, 120))
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrorTypeBusy, appErr.Type)

	close(proceed)
	require.NoError(t, <-done)
}

func TestTransition_Idempotent(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	a := fixtures.NewAuction(t).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)
	deps.clock.Advance(2 * time.Hour)

	got, err := svc.Transition(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusActive, got.Status)
	assert.Equal(t, int64(1), deps.store.Version(a.ID))
	assert.Empty(t, deps.publisher.Events())
}

func TestTransition_Activates(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	a := fixtures.NewAuction(t).Build()
	deps.store.Seed(a)
	deps.clock.Advance(2 * time.Hour)

	got, err := svc.Transition(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusActive, got.Status)

	events := deps.publisher.EventsOfType(auction.EventStatusChanged)
	require.Len(t, events, 1)
	assert.Equal(t, auction.StatusUpcoming, *events[0].OldStatus)
	assert.Equal(t, auction.StatusActive, *events[0].NewStatus)
}

func TestTransition_BothStepsAfterMissedWindow(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	a := fixtures.NewAuction(t).Build()
	deps.store.Seed(a)

	// The entire auction window elapsed while nothing ran
	deps.clock.Advance(30 * time.Hour)

	got, err := svc.Transition(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosed, got.Status)
	assert.Nil(t, got.WinnerID)

	events := deps.publisher.EventsOfType(auction.EventStatusChanged)
	require.Len(t, events, 2)
	assert.Equal(t, auction.StatusActive, *events[0].NewStatus)
	assert.Equal(t, auction.StatusClosed, *events[1].NewStatus)
}

func TestTransition_CloseSettlesWinnerAndNotifies(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	a := fixtures.NewAuction(t).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)
	deps.clock.Advance(2 * time.Hour)

	ctx := context.Background()
	loser, winner := uuid.New(), uuid.New()
	_, err := svc.PlaceBid(ctx, loser, a.ID, usd(t, 110))
	require.NoError(t, err)
	_, err = svc.PlaceBid(ctx, winner, a.ID, usd(t, 130))
	require.NoError(t, err)

	deps.clock.Advance(30 * time.Hour)

	got, err := svc.Transition(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosed, got.Status)
	require.NotNil(t, got.WinnerID)
	assert.Equal(t, winner, *got.WinnerID)

	require.Eventually(t, func() bool {
		return len(deps.notifier.Winners()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestUpdateAuction(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	owner := uuid.New()
	a := fixtures.NewAuction(t).WithOwner(owner).Build()
	deps.store.Seed(a)

	title := "Restored armchair"
	price := usd(t, 250)
	got, err := svc.UpdateAuction(context.Background(), auctionsvc.Actor{ID: owner}, a.ID, auctionsvc.UpdateAuctionRequest{
		Title:      &title,
		StartPrice: &price,
	})
	require.NoError(t, err)

	assert.Equal(t, title, got.Title)
	assert.True(t, got.StartPrice.Equal(price))
	assert.True(t, got.CurrentPrice.Equal(price), "current price follows start price before any bids")
}

func TestUpdateAuction_StartPriceBounds(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	owner := uuid.New()
	a := fixtures.NewAuction(t).WithOwner(owner).Build()
	deps.store.Seed(a)

	// Free-start auctions are allowed
	zero := usd(t, 0)
	got, err := svc.UpdateAuction(context.Background(), auctionsvc.Actor{ID: owner}, a.ID, auctionsvc.UpdateAuctionRequest{StartPrice: &zero})
	require.NoError(t, err)
	assert.True(t, got.StartPrice.IsZero())

	negative := values.MustNewMoneyFromFloat(-1, values.USD)
	_, err = svc.UpdateAuction(context.Background(), auctionsvc.Actor{ID: owner}, a.ID, auctionsvc.UpdateAuctionRequest{StartPrice: &negative})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INVALID_START_PRICE", appErr.Code)
}

func TestUpdateAuction_Authorization(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	owner := uuid.New()
	a := fixtures.NewAuction(t).WithOwner(owner).Build()
	deps.store.Seed(a)

	title := "Hijacked"

	_, err := svc.UpdateAuction(context.Background(), auctionsvc.Actor{ID: uuid.New()}, a.ID, auctionsvc.UpdateAuctionRequest{Title: &title})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrorTypeForbidden, appErr.Type)

	// Admins may edit any upcoming auction
	_, err = svc.UpdateAuction(context.Background(), auctionsvc.Actor{ID: uuid.New(), Admin: true}, a.ID, auctionsvc.UpdateAuctionRequest{Title: &title})
	require.NoError(t, err)
}

func TestUpdateAuction_RejectedOnceStarted(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	owner := uuid.New()
	a := fixtures.NewAuction(t).WithOwner(owner).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)

	title := "Too late"
	_, err := svc.UpdateAuction(context.Background(), auctionsvc.Actor{ID: owner}, a.ID, auctionsvc.UpdateAuctionRequest{Title: &title})
	assert.ErrorIs(t, err, apperrors.ErrNotUpcoming)
}

func TestDeleteAuction(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	owner := uuid.New()
	a := fixtures.NewAuction(t).WithOwner(owner).Build()
	deps.store.Seed(a)

	require.NoError(t, svc.DeleteAuction(context.Background(), auctionsvc.Actor{ID: owner}, a.ID))

	_, err := svc.GetAuction(context.Background(), a.ID)
	assert.ErrorIs(t, err, apperrors.ErrAuctionNotFound)
}

func TestDeleteAuction_RejectedOnceStarted(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	owner := uuid.New()
	a := fixtures.NewAuction(t).WithOwner(owner).WithStatus(auction.StatusActive).Build()
	deps.store.Seed(a)

	err := svc.DeleteAuction(context.Background(), auctionsvc.Actor{ID: owner}, a.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotUpcoming)
}

func TestListAuctions_Paging(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{DefaultPageSize: 2, MaxPageSize: 3})

	for i := 0; i < 5; i++ {
		deps.store.Seed(fixtures.NewAuction(t).Build())
	}

	ctx := context.Background()

	auctions, total, err := svc.ListAuctions(ctx, auctionsvc.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, auctions, 2, "default page size applies")

	auctions, _, err = svc.ListAuctions(ctx, auctionsvc.ListFilter{PerPage: 50})
	require.NoError(t, err)
	assert.Len(t, auctions, 3, "page size is capped")
}

func TestListAuctions_StatusFilter(t *testing.T) {
	svc, deps := newEngine(t, auctionsvc.Config{})

	deps.store.Seed(fixtures.NewAuction(t).Build())
	deps.store.Seed(fixtures.NewAuction(t).WithStatus(auction.StatusActive).Build())

	active := auction.StatusActive
	auctions, total, err := svc.ListAuctions(context.Background(), auctionsvc.ListFilter{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, auctions, 1)
	assert.Equal(t, auction.StatusActive, auctions[0].Status)
}
