package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/finadvisor/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	client, err := New(context.Background(), &config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.Nil(t, client.Redis())
	assert.NoError(t, client.Ping(t.Context()))
	assert.NoError(t, client.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(Disabled(), "test")

	allowed, remaining, err := limiter.Allow(context.Background(), SearchRateLimit)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, SearchRateLimit.Limit, remaining)

	assert.NoError(t, limiter.Wait(context.Background(), LLMRateLimit(60)))
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(Disabled(), "test")
	ctx := context.Background()

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set(ctx, "key", "value", TTLQuote))
	assert.NoError(t, cache.Delete(ctx, "key"))
}

func TestGetOrSet_Disabled(t *testing.T) {
	cache := NewCache(Disabled(), "test")
	calls := 0

	fn := func() ([]float64, error) {
		calls++
		return []float64{1, 2}, nil
	}

	got, err := GetOrSet(context.Background(), cache, "k", TTLQuote, fn)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got)

	_, err = GetOrSet(context.Background(), cache, "k", TTLQuote, fn)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "disabled cache never stores")

	_, err = GetOrSet(context.Background(), cache, "k", TTLQuote, func() (int, error) {
		return 0, errors.New("upstream down")
	})
	assert.EqualError(t, err, "upstream down")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "advisor:cache:quote:X", Key("advisor", "cache", "quote:X"))
	assert.Equal(t, "advisor", Key("advisor"))
	assert.Equal(t, "quote:NVDA:2mo:1d", QuoteKey("nvda", "2mo", "1d"))
	assert.Equal(t, "quote:info:^GSPC", QuoteInfoKey("^gspc"))

	a := SearchKey("NVDA earnings ", "ko", 5)
	b := SearchKey("nvda earnings", "ko", 5)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, SearchKey("nvda earnings", "us", 5))
}
