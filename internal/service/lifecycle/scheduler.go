package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
	"github.com/bidhaus/auction-backend/internal/metrics"
)

// Transitioner applies every overdue lifecycle step of a single auction
type Transitioner interface {
	Transition(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
}

// DueLister finds auctions owing a lifecycle transition at a given time
type DueLister interface {
	ListDue(ctx context.Context, now time.Time) ([]*auction.Auction, error)
}

// Scheduler periodically sweeps for auctions whose start or end time has
// passed and drives them through the engine. The sweep is a safety net:
// reads and bids already apply overdue transitions lazily, so a delayed
// sweep only delays notifications and fan-out, never correctness.
type Scheduler struct {
	engine   Transitioner
	store    DueLister
	clock    auction.Clock
	interval time.Duration
	logger   *slog.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a sweep scheduler
func NewScheduler(engine Transitioner, store DueLister, clock auction.Clock, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		engine:   engine,
		store:    store,
		clock:    clock,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs an immediate sweep and then sweeps on every tick until Stop
// is called or the context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Sweep processes every auction owing a transition. Failures are isolated
// per auction so one bad row cannot stall the rest of the sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.clock.Now()
	timer := prometheus.NewTimer(metrics.SweepDuration)
	defer timer.ObserveDuration()

	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "lifecycle sweep query failed", slog.Any("error", err))
		return
	}
	if len(due) == 0 {
		return
	}

	var transitioned int
	for _, a := range due {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.engine.Transition(ctx, a.ID); err != nil {
			metrics.SweepFailuresTotal.Inc()
			s.logger.WarnContext(ctx, "lifecycle transition failed",
				slog.String("auction_id", a.ID.String()),
				slog.Any("error", err))
			continue
		}
		transitioned++
	}

	s.logger.InfoContext(ctx, "lifecycle sweep completed",
		slog.Int("due", len(due)),
		slog.Int("transitioned", transitioned))
}
