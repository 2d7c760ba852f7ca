package auction

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/auction-backend/internal/domain/errors"
	"github.com/bidhaus/auction-backend/internal/domain/values"
)

// Auction is a timed sale of one item with ascending competitive bidding.
// The auction service is the sole writer of Status, CurrentPrice, Bids and
// WinnerID; everything else holds read-only projections.
type Auction struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`

	StartPrice   values.Money `json:"start_price"`
	CurrentPrice values.Money `json:"current_price"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	OwnerID  uuid.UUID  `json:"owner_id"`
	Status   Status     `json:"status"`
	Bids     []Bid      `json:"bids"`
	WinnerID *uuid.UUID `json:"winner_id,omitempty"`

	// Version is the optimistic-lock token owned by the store. It is
	// incremented on every successful conditional update.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bid is a monetary offer tied to a bidder and timestamp. Bids are appended
// in strictly increasing amount order, so the last bid is the highest.
type Bid struct {
	ID       uuid.UUID    `json:"id"`
	BidderID uuid.UUID    `json:"bidder_id"`
	Amount   values.Money `json:"amount"`
	PlacedAt time.Time    `json:"placed_at"`
}

type Status int

const (
	StatusUpcoming Status = iota
	StatusActive
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusUpcoming:
		return "upcoming"
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseStatus maps a status string to a Status.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "upcoming":
		return StatusUpcoming, true
	case "active":
		return StatusActive, true
	case "closed":
		return StatusClosed, true
	default:
		return 0, false
	}
}

// NewAuction creates an auction in status upcoming. Creation never starts in
// active or closed even when StartTime is already past: the activation must
// be observed as a transition so subscribers always see "activated" before
// any "closed".
func NewAuction(ownerID uuid.UUID, title, description string, startPrice values.Money, startTime, endTime time.Time, now time.Time) (*Auction, error) {
	if ownerID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_OWNER", "owner is required")
	}
	if title == "" {
		return nil, errors.NewValidationError("MISSING_TITLE", "title is required")
	}
	if description == "" {
		return nil, errors.NewValidationError("MISSING_DESCRIPTION", "description is required")
	}
	if startPrice.IsNegative() {
		return nil, errors.NewValidationError("INVALID_START_PRICE", "start price cannot be negative")
	}
	if !endTime.After(startTime) {
		return nil, errors.NewValidationError("INVALID_TIME_WINDOW", "end time must be after start time")
	}

	return &Auction{
		ID:           uuid.New(),
		Title:        title,
		Description:  description,
		StartPrice:   startPrice,
		CurrentPrice: startPrice,
		StartTime:    startTime,
		EndTime:      endTime,
		OwnerID:      ownerID,
		Status:       StatusUpcoming,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HighestBid returns the last appended bid, nil when there are none.
func (a *Auction) HighestBid() *Bid {
	if len(a.Bids) == 0 {
		return nil
	}
	return &a.Bids[len(a.Bids)-1]
}

// MinimumBid is the smallest acceptable bid amount: one increment above
// the current price.
func (a *Auction) MinimumBid() values.Money {
	return a.CurrentPrice.AddIncrement()
}

// ApplyBid appends a validated bid and advances the current price. Callers
// must run ValidateBid first under the per-auction lock; ApplyBid revalidates
// to keep the invariant local.
func (a *Auction) ApplyBid(bidderID uuid.UUID, amount values.Money, now time.Time) (*Bid, error) {
	if err := ValidateBid(a, bidderID, amount); err != nil {
		return nil, err
	}

	b := Bid{
		ID:       uuid.New(),
		BidderID: bidderID,
		Amount:   amount,
		PlacedAt: now,
	}
	a.Bids = append(a.Bids, b)
	a.CurrentPrice = amount
	a.UpdatedAt = now

	return &a.Bids[len(a.Bids)-1], nil
}

// DueTransitions reports the lifecycle steps owed at the given time, in
// lifecycle order. Both steps may be due in the same sweep when the whole
// window elapsed unobserved.
func (a *Auction) DueTransitions(now time.Time) []Status {
	var due []Status
	status := a.Status
	if status == StatusUpcoming && !now.Before(a.StartTime) {
		due = append(due, StatusActive)
		status = StatusActive
	}
	if status == StatusActive && !now.Before(a.EndTime) {
		due = append(due, StatusClosed)
	}
	return due
}

// Activate moves an upcoming auction to active.
func (a *Auction) Activate(now time.Time) error {
	if a.Status != StatusUpcoming {
		return errors.NewConflictError("auction is not upcoming")
	}
	a.Status = StatusActive
	a.UpdatedAt = now
	return nil
}

// Close moves an active auction to its terminal state and settles the
// winner: the bidder of the highest bid, or none when there were no bids.
func (a *Auction) Close(now time.Time) error {
	if a.Status != StatusActive {
		return errors.NewConflictError("auction is not active")
	}
	a.Status = StatusClosed
	if highest := a.HighestBid(); highest != nil {
		winner := highest.BidderID
		a.WinnerID = &winner
	}
	a.UpdatedAt = now
	return nil
}

// IsMutable reports whether owner edits and deletion are still permitted.
func (a *Auction) IsMutable() bool {
	return a.Status == StatusUpcoming
}
