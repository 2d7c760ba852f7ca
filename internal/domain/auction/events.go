package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/auction-backend/internal/domain/values"
)

// EventType identifies the kind of auction event carried on a topic.
type EventType string

const (
	EventBidPlaced     EventType = "bid-placed"
	EventStatusChanged EventType = "status-changed"
)

// Event is a state-change notification fanned out to subscribers of an
// auction's topic.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	AuctionID uuid.UUID `json:"auction_id"`
	Timestamp time.Time `json:"timestamp"`

	// Bid fields, set for bid-placed events
	BidderID *uuid.UUID    `json:"bidder_id,omitempty"`
	Amount   *values.Money `json:"amount,omitempty"`

	// Status fields, set for status-changed events
	OldStatus *Status `json:"old_status,omitempty"`
	NewStatus *Status `json:"new_status,omitempty"`
}

// Topic returns the fan-out topic for an auction.
func Topic(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s", auctionID)
}

// NewBidPlacedEvent builds the event published after a bid is accepted.
func NewBidPlacedEvent(auctionID uuid.UUID, b Bid) Event {
	bidder := b.BidderID
	amount := b.Amount
	return Event{
		ID:        uuid.New(),
		Type:      EventBidPlaced,
		AuctionID: auctionID,
		Timestamp: b.PlacedAt,
		BidderID:  &bidder,
		Amount:    &amount,
	}
}

// NewStatusChangedEvent builds the event published after a lifecycle
// transition.
func NewStatusChangedEvent(auctionID uuid.UUID, from, to Status, at time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Type:      EventStatusChanged,
		AuctionID: auctionID,
		Timestamp: at,
		OldStatus: &from,
		NewStatus: &to,
	}
}
