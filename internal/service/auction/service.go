package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
	apperrors "github.com/bidhaus/auction-backend/internal/domain/errors"
	"github.com/bidhaus/auction-backend/internal/domain/values"
	"github.com/bidhaus/auction-backend/internal/metrics"
)

// Service is the auction engine: auction CRUD, bid acceptance and the
// lifecycle state machine. All mutations of a single auction are serialized
// through a per-auction lock; conditional writes catch concurrent writers
// on other instances.
type Service interface {
	CreateAuction(ctx context.Context, actor Actor, req CreateAuctionRequest) (*auction.Auction, error)
	GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	ListAuctions(ctx context.Context, filter ListFilter) ([]*auction.Auction, int, error)
	UpdateAuction(ctx context.Context, actor Actor, id uuid.UUID, req UpdateAuctionRequest) (*auction.Auction, error)
	DeleteAuction(ctx context.Context, actor Actor, id uuid.UUID) error
	PlaceBid(ctx context.Context, bidderID, auctionID uuid.UUID, amount values.Money) (*auction.Bid, error)
	Transition(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
}

// Actor identifies the authenticated caller for authorization checks
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

// CreateAuctionRequest carries the fields of a new auction
type CreateAuctionRequest struct {
	Title       string
	Description string
	StartPrice  values.Money
	StartTime   time.Time
	EndTime     time.Time
}

// UpdateAuctionRequest patches an upcoming auction. Nil fields are left
// unchanged.
type UpdateAuctionRequest struct {
	Title       *string
	Description *string
	StartPrice  *values.Money
	StartTime   *time.Time
	EndTime     *time.Time
}

// Config tunes the engine's concurrency behavior
type Config struct {
	// LockWait bounds how long a writer waits for the per-auction lock
	// before the request is rejected as busy.
	LockWait time.Duration
	// ConflictRetries is how many times a write is retried after a
	// version conflict before giving up.
	ConflictRetries int
	DefaultPageSize int
	MaxPageSize     int
}

func (c *Config) setDefaults() {
	if c.LockWait <= 0 {
		c.LockWait = 3 * time.Second
	}
	if c.ConflictRetries <= 0 {
		c.ConflictRetries = 3
	}
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = 15
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = 100
	}
}

type service struct {
	store     Store
	publisher Publisher
	notifier  Notifier
	cache     ViewCache
	clock     auction.Clock
	locks     *keyedLocks
	cfg       Config
	logger    *slog.Logger
}

// NewService creates the auction engine. cache may be nil to disable the
// read-through view cache.
func NewService(
	store Store,
	publisher Publisher,
	notifier Notifier,
	cache ViewCache,
	clock auction.Clock,
	cfg Config,
	logger *slog.Logger,
) Service {
	cfg.setDefaults()

	return &service{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		cache:     cache,
		clock:     clock,
		locks:     newKeyedLocks(),
		cfg:       cfg,
		logger:    logger,
	}
}

// CreateAuction validates and persists a new auction owned by the actor
func (s *service) CreateAuction(ctx context.Context, actor Actor, req CreateAuctionRequest) (*auction.Auction, error) {
	a, err := auction.NewAuction(actor.ID, req.Title, req.Description, req.StartPrice, req.StartTime, req.EndTime, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}

	s.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", a.ID.String()),
		slog.String("owner_id", actor.ID.String()),
		slog.Time("start_time", a.StartTime),
		slog.Time("end_time", a.EndTime))

	return a, nil
}

// GetAuction returns a single auction. Reads go through the view cache and
// bypass the per-auction lock; an auction with an overdue transition is
// brought up to date first so callers never observe a stale status.
func (s *service) GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	now := s.clock.Now()

	if s.cache != nil {
		if a := s.cache.Get(ctx, id); a != nil && len(a.DueTransitions(now)) == 0 {
			return a, nil
		}
	}

	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("get auction: %w", err)
	}

	if len(a.DueTransitions(now)) > 0 {
		return s.Transition(ctx, id)
	}

	if s.cache != nil {
		s.cache.Put(ctx, a)
	}
	return a, nil
}

// ListAuctions returns a page of auctions and the total match count
func (s *service) ListAuctions(ctx context.Context, filter ListFilter) ([]*auction.Auction, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = s.cfg.DefaultPageSize
	}
	if filter.PerPage > s.cfg.MaxPageSize {
		filter.PerPage = s.cfg.MaxPageSize
	}

	auctions, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list auctions: %w", err)
	}
	return auctions, total, nil
}

// UpdateAuction patches an auction that has not started yet. Only the owner
// or an admin may edit.
func (s *service) UpdateAuction(ctx context.Context, actor Actor, id uuid.UUID, req UpdateAuctionRequest) (*auction.Auction, error) {
	release, ok := s.locks.Acquire(ctx, id, s.cfg.LockWait)
	if !ok {
		return nil, s.lockFailure(ctx)
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt <= s.cfg.ConflictRetries; attempt++ {
		a, err := s.store.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, apperrors.ErrAuctionNotFound
			}
			return nil, fmt.Errorf("get auction: %w", err)
		}

		if err := authorize(actor, a); err != nil {
			return nil, err
		}
		if !a.IsMutable() {
			return nil, apperrors.ErrNotUpcoming
		}

		if err := applyPatch(a, req, s.clock.Now()); err != nil {
			return nil, err
		}

		if err := s.store.Update(ctx, a); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("update auction: %w", err)
		}

		s.invalidate(ctx, id)
		return a, nil
	}

	return nil, concurrentModification(lastErr)
}

// DeleteAuction removes an auction that has not started yet
func (s *service) DeleteAuction(ctx context.Context, actor Actor, id uuid.UUID) error {
	release, ok := s.locks.Acquire(ctx, id, s.cfg.LockWait)
	if !ok {
		return s.lockFailure(ctx)
	}
	defer release()

	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperrors.ErrAuctionNotFound
		}
		return fmt.Errorf("get auction: %w", err)
	}

	if err := authorize(actor, a); err != nil {
		return err
	}
	if !a.IsMutable() {
		return apperrors.ErrNotUpcoming
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperrors.ErrAuctionNotFound
		}
		return fmt.Errorf("delete auction: %w", err)
	}

	s.invalidate(ctx, id)
	s.logger.InfoContext(ctx, "auction deleted",
		slog.String("auction_id", id.String()),
		slog.String("actor_id", actor.ID.String()))
	return nil
}

// PlaceBid runs the bid acceptance pipeline: serialize on the auction,
// re-read current state, validate, append and persist in one conditional
// write. Overdue lifecycle transitions are folded into the same write so a
// bid never lands on an auction whose window already elapsed.
func (s *service) PlaceBid(ctx context.Context, bidderID, auctionID uuid.UUID, amount values.Money) (*auction.Bid, error) {
	release, ok := s.locks.Acquire(ctx, auctionID, s.cfg.LockWait)
	if !ok {
		return nil, s.lockFailure(ctx)
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt <= s.cfg.ConflictRetries; attempt++ {
		a, err := s.store.GetByID(ctx, auctionID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, apperrors.ErrAuctionNotFound
			}
			return nil, fmt.Errorf("get auction: %w", err)
		}

		now := s.clock.Now()
		transitions := applyDue(a, now)

		var previous *auction.Bid
		if h := a.HighestBid(); h != nil {
			prev := *h
			previous = &prev
		}

		placed, err := a.ApplyBid(bidderID, amount, now)
		if err != nil {
			metrics.BidsPlacedTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}

		if err := s.store.Update(ctx, a); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("update auction: %w", err)
		}

		s.invalidate(ctx, auctionID)
		s.publishTransitions(transitions)
		s.publisher.Publish(auction.NewBidPlacedEvent(a.ID, *placed))
		metrics.BidsPlacedTotal.WithLabelValues("accepted").Inc()

		if previous != nil && previous.BidderID != bidderID {
			snapshot := *a
			prev := *previous
			go s.notifier.NotifyOutbid(context.WithoutCancel(ctx), &snapshot, prev)
		}

		s.logger.InfoContext(ctx, "bid placed",
			slog.String("auction_id", a.ID.String()),
			slog.String("bid_id", placed.ID.String()),
			slog.String("bidder_id", bidderID.String()),
			slog.String("amount", amount.String()),
			slog.Int("attempt", attempt+1))

		return placed, nil
	}

	return nil, concurrentModification(lastErr)
}

// Transition applies every lifecycle step the auction owes at the current
// time. It is idempotent: with no transition due it returns the auction
// unchanged. Both steps fire in order when an entire window elapsed between
// sweeps.
func (s *service) Transition(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	release, ok := s.locks.Acquire(ctx, id, s.cfg.LockWait)
	if !ok {
		return nil, s.lockFailure(ctx)
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt <= s.cfg.ConflictRetries; attempt++ {
		a, err := s.store.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, apperrors.ErrAuctionNotFound
			}
			return nil, fmt.Errorf("get auction: %w", err)
		}

		transitions := applyDue(a, s.clock.Now())
		if len(transitions) == 0 {
			return a, nil
		}

		if err := s.store.Update(ctx, a); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("update auction: %w", err)
		}

		s.invalidate(ctx, id)
		s.publishTransitions(transitions)

		if a.Status == auction.StatusClosed {
			snapshot := *a
			go s.notifier.NotifyWinner(context.WithoutCancel(ctx), &snapshot)
		}

		s.logger.InfoContext(ctx, "auction transitioned",
			slog.String("auction_id", a.ID.String()),
			slog.String("status", a.Status.String()),
			slog.Int("steps", len(transitions)))

		return a, nil
	}

	return nil, concurrentModification(lastErr)
}

// publishTransitions fans out status-changed events and counts each applied
// transition by its destination status.
func (s *service) publishTransitions(events []auction.Event) {
	for _, ev := range events {
		s.publisher.Publish(ev)
		if ev.Type == auction.EventStatusChanged && ev.NewStatus != nil {
			metrics.TransitionsTotal.WithLabelValues(ev.NewStatus.String()).Inc()
		}
	}
}

// applyDue advances the auction through every transition owed at now and
// returns the matching events in the order applied.
func applyDue(a *auction.Auction, now time.Time) []auction.Event {
	var events []auction.Event
	for _, next := range a.DueTransitions(now) {
		from := a.Status
		switch next {
		case auction.StatusActive:
			if err := a.Activate(now); err != nil {
				return events
			}
		case auction.StatusClosed:
			if err := a.Close(now); err != nil {
				return events
			}
		}
		events = append(events, auction.NewStatusChangedEvent(a.ID, from, next, now))
	}
	return events
}

func authorize(actor Actor, a *auction.Auction) error {
	if actor.Admin || actor.ID == a.OwnerID {
		return nil
	}
	return apperrors.NewForbiddenError("only the owner may modify this auction")
}

func applyPatch(a *auction.Auction, req UpdateAuctionRequest, now time.Time) error {
	if req.Title != nil {
		a.Title = *req.Title
	}
	if req.Description != nil {
		a.Description = *req.Description
	}
	if req.StartPrice != nil {
		a.StartPrice = *req.StartPrice
		// No bids can exist before the auction starts
		a.CurrentPrice = *req.StartPrice
	}
	if req.StartTime != nil {
		a.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		a.EndTime = req.EndTime.UTC()
	}

	if a.Title == "" {
		return apperrors.NewValidationError("MISSING_TITLE", "Title is required")
	}
	if a.Description == "" {
		return apperrors.NewValidationError("MISSING_DESCRIPTION", "Description is required")
	}
	if a.StartPrice.IsNegative() {
		return apperrors.NewValidationError("INVALID_START_PRICE", "Start price cannot be negative")
	}
	if !a.EndTime.After(a.StartTime) {
		return apperrors.NewValidationError("INVALID_TIME_WINDOW", "End time must be after start time")
	}

	a.UpdatedAt = now
	return nil
}

func (s *service) lockFailure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return apperrors.NewBusyError("auction is busy, retry shortly")
}

func concurrentModification(cause error) error {
	err := apperrors.NewConflictError("auction was modified concurrently, retry")
	if cause != nil {
		return err.WithCause(cause)
	}
	return err
}

func (s *service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
}
