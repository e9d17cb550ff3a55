package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return Wrap(raw), mr
}

func TestKeysAreNamespaced(t *testing.T) {
	c := &Client{}
	assert.Equal(t, "sf:cart:sess-1", c.CartKey("sess-1"))
	assert.Equal(t, "sf:session:access:jti-1", c.AccessSessionKey("jti-1"))
	assert.Equal(t, "sf:idempotency:payment:key-1", c.IdempotencyKey("payment", "key-1"))
	assert.Equal(t, "sf:idempotency:key-1", c.IdempotencyKey("", "key-1"))
	assert.Equal(t, "sf:rl:login:ip:10.0.0.1", c.RateLimitKey("login", "ip", "10.0.0.1"))
	assert.Equal(t, "sf:cart:padded", c.CartKey("  padded "))
}

func TestSetGetDel(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "sf:k", "v", time.Minute))
	got, err := c.Get(ctx, "sf:k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.Equal(t, time.Minute, mr.TTL("sf:k"))

	require.NoError(t, c.Del(ctx, "sf:k"))
	_, err = c.Get(ctx, "sf:k")
	assert.True(t, errors.Is(err, ErrNil))
}

func TestSetNXOnlyOnce(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "sf:nx", "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "sf:nx", "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := c.Get(ctx, "sf:nx")
	require.NoError(t, err)
	assert.Equal(t, "first", got)
}

func TestIncrWithTTLSetsExpiryOnce(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	count, err := c.IncrWithTTL(ctx, "sf:rl:x", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, time.Minute, mr.TTL("sf:rl:x"))

	mr.FastForward(30 * time.Second)
	count, err = c.IncrWithTTL(ctx, "sf:rl:x", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.Equal(t, 30*time.Second, mr.TTL("sf:rl:x"))

	mr.FastForward(31 * time.Second)
	count, err = c.IncrWithTTL(ctx, "sf:rl:x", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestUninitializedClient(t *testing.T) {
	var c *Client
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, time.Second, opts.DialTimeout)
}

func TestIncrWithTTLRepairsMissingExpiry(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("sf:rl:stuck", "4"))
	count, err := c.IncrWithTTL(ctx, "sf:rl:stuck", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)
	assert.Equal(t, time.Minute, mr.TTL("sf:rl:stuck"))
}
