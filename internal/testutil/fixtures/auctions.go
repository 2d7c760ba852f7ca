package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
	"github.com/bidhaus/auction-backend/internal/domain/values"
)

// AuctionBuilder assembles auction fixtures with sensible defaults
type AuctionBuilder struct {
	t           *testing.T
	ownerID     uuid.UUID
	title       string
	description string
	startPrice  values.Money
	startTime   time.Time
	endTime     time.Time
	now         time.Time
	status      auction.Status
}

// NewAuction starts a builder for an upcoming auction opening in one hour
// and running for a day.
func NewAuction(t *testing.T) *AuctionBuilder {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &AuctionBuilder{
		t:           t,
		ownerID:     uuid.New(),
		title:       "Mid-century armchair",
		description: "Teak frame, reupholstered in wool",
		startPrice:  values.MustNewMoneyFromFloat(100, "USD"),
		startTime:   now.Add(time.Hour),
		endTime:     now.Add(25 * time.Hour),
		now:         now,
		status:      auction.StatusUpcoming,
	}
}

func (b *AuctionBuilder) WithOwner(id uuid.UUID) *AuctionBuilder {
	b.ownerID = id
	return b
}

func (b *AuctionBuilder) WithTitle(title string) *AuctionBuilder {
	b.title = title
	return b
}

func (b *AuctionBuilder) WithStartPrice(amount float64) *AuctionBuilder {
	b.startPrice = values.MustNewMoneyFromFloat(amount, "USD")
	return b
}

func (b *AuctionBuilder) WithWindow(start, end time.Time) *AuctionBuilder {
	b.startTime = start
	b.endTime = end
	return b
}

// WithStatus advances the built auction to the given lifecycle state
func (b *AuctionBuilder) WithStatus(status auction.Status) *AuctionBuilder {
	b.status = status
	return b
}

// Build creates the auction, advancing it through the lifecycle if a later
// status was requested.
func (b *AuctionBuilder) Build() *auction.Auction {
	b.t.Helper()

	a, err := auction.NewAuction(b.ownerID, b.title, b.description, b.startPrice, b.startTime, b.endTime, b.now)
	require.NoError(b.t, err)

	if b.status >= auction.StatusActive {
		require.NoError(b.t, a.Activate(b.startTime))
	}
	if b.status == auction.StatusClosed {
		require.NoError(b.t, a.Close(b.endTime))
	}
	return a
}

// Clock returns a mock clock aligned with the builder's reference time
func (b *AuctionBuilder) Clock() *auction.MockClock {
	return auction.NewMockClock(b.now)
}
