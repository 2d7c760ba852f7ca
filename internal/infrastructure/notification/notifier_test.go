package notification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
	"github.com/bidhaus/auction-backend/internal/domain/values"
)

type captureSender struct {
	sent []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

type staticDirectory map[uuid.UUID]string

func (d staticDirectory) EmailFor(_ context.Context, id uuid.UUID) (string, error) {
	addr, ok := d[id]
	if !ok {
		return "", ErrUnknownRecipient
	}
	return addr, nil
}

func closedAuction(t *testing.T, winner uuid.UUID) *auction.Auction {
	t.Helper()

	now := time.Now().UTC()
	a, err := auction.NewAuction(
		uuid.New(),
		"Antique clock",
		"French mantel clock, working order",
		values.MustNewMoneyFromFloat(100, "USD"),
		now.Add(time.Minute),
		now.Add(time.Hour),
		now,
	)
	require.NoError(t, err)

	require.NoError(t, a.Activate(now.Add(time.Minute)))
	_, err = a.ApplyBid(winner, values.MustNewMoneyFromFloat(150, "USD"), now.Add(2*time.Minute))
	require.NoError(t, err)
	require.NoError(t, a.Close(now.Add(time.Hour)))
	return a
}

func TestNotifier_NotifyWinner(t *testing.T) {
	winner := uuid.New()
	a := closedAuction(t, winner)

	sender := &captureSender{}
	n := NewNotifier(sender, staticDirectory{winner: "winner@example.com"}, zap.NewNop())

	n.NotifyWinner(context.Background(), a)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "winner@example.com", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Subject, "Antique clock")
	assert.Contains(t, sender.sent[0].Body, "150.00 USD")
}

func TestNotifier_NotifyWinner_NoWinner(t *testing.T) {
	now := time.Now().UTC()
	a, err := auction.NewAuction(
		uuid.New(), "No bids", "Never bid on",
		values.MustNewMoneyFromFloat(10, "USD"),
		now.Add(time.Minute), now.Add(time.Hour), now,
	)
	require.NoError(t, err)
	require.NoError(t, a.Activate(now.Add(time.Minute)))
	require.NoError(t, a.Close(now.Add(time.Hour)))

	sender := &captureSender{}
	n := NewNotifier(sender, staticDirectory{}, zap.NewNop())

	n.NotifyWinner(context.Background(), a)
	assert.Empty(t, sender.sent)
}

func TestNotifier_NotifyOutbid(t *testing.T) {
	bidder := uuid.New()
	a := closedAuction(t, uuid.New())
	previous := auction.Bid{
		ID:       uuid.New(),
		BidderID: bidder,
		Amount:   values.MustNewMoneyFromFloat(120, "USD"),
		PlacedAt: time.Now().UTC(),
	}

	sender := &captureSender{}
	n := NewNotifier(sender, staticDirectory{bidder: "bidder@example.com"}, zap.NewNop())

	n.NotifyOutbid(context.Background(), a, previous)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "bidder@example.com", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Body, "120.00 USD")
}

func TestNotifier_SwallowsFailures(t *testing.T) {
	winner := uuid.New()
	a := closedAuction(t, winner)

	sender := &captureSender{err: assert.AnError}
	n := NewNotifier(sender, staticDirectory{winner: "winner@example.com"}, zap.NewNop())

	// Must not panic or surface the error
	n.NotifyWinner(context.Background(), a)
	assert.Empty(t, sender.sent)
}

func TestNotifier_UnknownRecipientSkipped(t *testing.T) {
	a := closedAuction(t, uuid.New())

	sender := &captureSender{}
	n := NewNotifier(sender, NewNoopDirectory(), zap.NewNop())

	n.NotifyWinner(context.Background(), a)
	assert.Empty(t, sender.sent)
}
