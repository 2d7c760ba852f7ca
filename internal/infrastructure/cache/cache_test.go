package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
	"github.com/bidhaus/auction-backend/internal/domain/values"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	client, _ := setupTestRedis(t)
	c, err := NewRedisCache(client, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()

	_, err = c.Get(ctx, "missing")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, c.Set(ctx, "greeting", "hello", time.Minute))

	got, err := c.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	require.NoError(t, c.Delete(ctx, "greeting"))
	_, err = c.Get(ctx, "greeting")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	c, err := NewRedisCache(client, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "ephemeral", "v", 5*time.Second))

	mr.FastForward(6 * time.Second)

	_, err = c.Get(ctx, "ephemeral")
	assert.True(t, IsCacheMiss(err))
}

func TestAuctionCache_RoundTrip(t *testing.T) {
	client, _ := setupTestRedis(t)
	c, err := NewRedisCache(client, zap.NewNop())
	require.NoError(t, err)

	ac := NewAuctionCache(c, time.Minute, zap.NewNop())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	a, err := auction.NewAuction(
		uuid.New(),
		"Vintage guitar",
		"1962 Stratocaster, sunburst finish",
		values.MustNewMoneyFromFloat(250, "USD"),
		now.Add(time.Hour),
		now.Add(2*time.Hour),
		now,
	)
	require.NoError(t, err)

	assert.Nil(t, ac.Get(ctx, a.ID))

	ac.Put(ctx, a)

	got := ac.Get(ctx, a.ID)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.Title, got.Title)
	assert.True(t, a.StartPrice.Equal(got.StartPrice))
	assert.Equal(t, auction.StatusUpcoming, got.Status)

	ac.Invalidate(ctx, a.ID)
	assert.Nil(t, ac.Get(ctx, a.ID))
}

func TestAuctionCache_CorruptEntryDropped(t *testing.T) {
	client, mr := setupTestRedis(t)
	c, err := NewRedisCache(client, zap.NewNop())
	require.NoError(t, err)

	ac := NewAuctionCache(c, time.Minute, zap.NewNop())
	ctx := context.Background()

	id := uuid.New()
	mr.Set(AuctionPrefix+id.String(), "{not json")

	assert.Nil(t, ac.Get(ctx, id))
	assert.False(t, mr.Exists(AuctionPrefix+id.String()))
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	client, _ := setupTestRedis(t)
	rl := NewRedisRateLimiter(client, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "bidder-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i)
	}

	allowed, err := rl.Allow(ctx, "bidder-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	// A different key has its own budget
	allowed, err = rl.Allow(ctx, "bidder-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiter_Reset(t *testing.T) {
	client, _ := setupTestRedis(t)
	rl := NewRedisRateLimiter(client, zap.NewNop())

	ctx := context.Background()
	allowed, err := rl.Allow(ctx, "bidder-1", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = rl.Allow(ctx, "bidder-1", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, rl.Reset(ctx, "bidder-1"))

	allowed, err = rl.Allow(ctx, "bidder-1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}
