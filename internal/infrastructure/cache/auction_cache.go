package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
)

// AuctionCache is a short-TTL read-through cache for auction views. The
// engine invalidates entries on every write; a stale window of a few
// milliseconds is acceptable because subscribers reconcile via the fan-out
// stream.
type AuctionCache struct {
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewAuctionCache creates an auction view cache
func NewAuctionCache(cache Cache, ttl time.Duration, logger *zap.Logger) *AuctionCache {
	return &AuctionCache{
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached auction, or nil on miss. Cache errors degrade to a
// miss; the store stays authoritative.
func (c *AuctionCache) Get(ctx context.Context, id uuid.UUID) *auction.Auction {
	raw, err := c.cache.Get(ctx, AuctionPrefix+id.String())
	if err != nil {
		if !IsCacheMiss(err) {
			c.logger.Warn("auction cache read failed",
				zap.String("auction_id", id.String()),
				zap.Error(err))
		}
		return nil
	}

	var a auction.Auction
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		c.logger.Warn("auction cache entry corrupt, dropping",
			zap.String("auction_id", id.String()),
			zap.Error(err))
		_ = c.cache.Delete(ctx, AuctionPrefix+id.String())
		return nil
	}

	return &a
}

// Put stores an auction view
func (c *AuctionCache) Put(ctx context.Context, a *auction.Auction) {
	data, err := json.Marshal(a)
	if err != nil {
		c.logger.Warn("auction cache marshal failed",
			zap.String("auction_id", a.ID.String()),
			zap.Error(err))
		return
	}

	if err := c.cache.Set(ctx, AuctionPrefix+a.ID.String(), string(data), c.ttl); err != nil {
		c.logger.Warn("auction cache write failed",
			zap.String("auction_id", a.ID.String()),
			zap.Error(err))
	}
}

// Invalidate drops the cached view after a write
func (c *AuctionCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.cache.Delete(ctx, AuctionPrefix+id.String()); err != nil {
		c.logger.Warn("auction cache invalidation failed",
			zap.String("auction_id", id.String()),
			zap.Error(err))
	}
}
