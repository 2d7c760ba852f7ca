package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
	auctionsvc "github.com/bidhaus/auction-backend/internal/service/auction"
)

// AuctionStore is an in-memory Store with the same conditional-write
// semantics as the Postgres repository: Update succeeds only when the
// stored version matches and bumps it by one. Safe for concurrent use.
type AuctionStore struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]*auction.Auction

	// Error hooks for failure injection
	GetErr    error
	CreateErr error
	UpdateErr error

	// UpdateHook runs inside Update before the version check, with the
	// store unlocked state captured. Used to interleave writers in tests.
	UpdateHook func(a *auction.Auction)
}

// NewAuctionStore creates an empty in-memory store
func NewAuctionStore() *AuctionStore {
	return &AuctionStore{auctions: make(map[uuid.UUID]*auction.Auction)}
}

// Seed inserts an auction directly, bypassing version assignment checks
func (s *AuctionStore) Seed(a *auction.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Version == 0 {
		a.Version = 1
	}
	s.auctions[a.ID] = clone(a)
}

func (s *AuctionStore) Create(_ context.Context, a *auction.Auction) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Version = 1
	s.auctions[a.ID] = clone(a)
	return nil
}

func (s *AuctionStore) GetByID(_ context.Context, id uuid.UUID) (*auction.Auction, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, auctionsvc.ErrNotFound
	}
	return clone(a), nil
}

func (s *AuctionStore) Update(_ context.Context, a *auction.Auction) error {
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	if s.UpdateHook != nil {
		s.UpdateHook(a)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.auctions[a.ID]
	if !ok {
		return auctionsvc.ErrNotFound
	}
	if stored.Version != a.Version {
		return auctionsvc.ErrVersionConflict
	}
	a.Version++
	s.auctions[a.ID] = clone(a)
	return nil
}

func (s *AuctionStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[id]; !ok {
		return auctionsvc.ErrNotFound
	}
	delete(s.auctions, id)
	return nil
}

func (s *AuctionStore) List(_ context.Context, filter auctionsvc.ListFilter) ([]*auction.Auction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*auction.Auction
	for _, a := range s.auctions {
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.OwnerID != nil && a.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(a.Title), needle) &&
				!strings.Contains(strings.ToLower(a.Description), needle) {
				continue
			}
		}
		matched = append(matched, clone(a))
	}

	sort.Slice(matched, func(i, j int) bool {
		less := matched[i].CreatedAt.Before(matched[j].CreatedAt)
		if filter.Ascending {
			return less
		}
		return !less
	})

	total := len(matched)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = total
	}
	start := (page - 1) * perPage
	if start >= total {
		return nil, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *AuctionStore) ListDue(_ context.Context, now time.Time) ([]*auction.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*auction.Auction
	for _, a := range s.auctions {
		if len(a.DueTransitions(now)) > 0 {
			due = append(due, clone(a))
		}
	}
	return due, nil
}

// BumpVersion increments the stored version out from under callers,
// simulating a concurrent writer on another instance.
func (s *AuctionStore) BumpVersion(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.auctions[id]; ok {
		a.Version++
	}
}

// Version reports the stored version of an auction, 0 when absent
func (s *AuctionStore) Version(id uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.auctions[id]; ok {
		return a.Version
	}
	return 0
}

func clone(a *auction.Auction) *auction.Auction {
	c := *a
	c.Bids = append([]auction.Bid(nil), a.Bids...)
	if a.WinnerID != nil {
		w := *a.WinnerID
		c.WinnerID = &w
	}
	return &c
}
