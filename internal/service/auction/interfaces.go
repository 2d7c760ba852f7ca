package auction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
)

// Sentinel errors of the Store contract.
var (
	// ErrNotFound is returned when no auction exists with the given ID.
	ErrNotFound = errors.New("auction not found")
	// ErrVersionConflict is returned by Update when the stored version no
	// longer matches the version the caller read.
	ErrVersionConflict = errors.New("auction version conflict")
)

// Store is the persistence contract the engine depends on. Update is a
// conditional write: it succeeds only when the stored version matches the
// in-memory one and bumps the version, so concurrent writers detect each
// other through version conflicts.
type Store interface {
	Create(ctx context.Context, a *auction.Auction) error
	GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	Update(ctx context.Context, a *auction.Auction) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter) ([]*auction.Auction, int, error)
	ListDue(ctx context.Context, now time.Time) ([]*auction.Auction, error)
}

// ListFilter narrows and orders auction listings
type ListFilter struct {
	Status    *auction.Status
	Search    string
	OwnerID   *uuid.UUID
	SortBy    string
	Ascending bool
	Page      int
	PerPage   int
}

// Publisher receives domain events for fan-out to subscribers
type Publisher interface {
	Publish(event auction.Event)
}

// Notifier delivers best-effort participant notifications. Implementations
// must not block bid processing and must swallow delivery failures.
type Notifier interface {
	NotifyOutbid(ctx context.Context, a *auction.Auction, previous auction.Bid)
	NotifyWinner(ctx context.Context, a *auction.Auction)
}

// ViewCache is an optional read-through cache for single-auction reads
type ViewCache interface {
	Get(ctx context.Context, id uuid.UUID) *auction.Auction
	Put(ctx context.Context, a *auction.Auction)
	Invalidate(ctx context.Context, id uuid.UUID)
}
