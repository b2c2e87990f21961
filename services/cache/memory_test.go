package cachesvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "portal:/v1/partnerships", []byte("[]"), time.Minute))
	require.NoError(t, c.Set(ctx, "portal:/v1/partners", []byte("{}"), 0))
	require.NoError(t, c.Set(ctx, "other", []byte("x"), time.Minute))

	val, err := c.Get(ctx, "portal:/v1/partnerships")
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), val)

	_, err = c.Get(ctx, "missing")
	assert.Equal(t, core.ErrCacheMiss, err)

	t.Run("expiry", func(t *testing.T) {
		now = now.Add(time.Minute)
		_, err := c.Get(ctx, "portal:/v1/partnerships")
		assert.Equal(t, core.ErrCacheMiss, err)

		_, err = c.Get(ctx, "portal:/v1/partners")
		assert.NoError(t, err, "no ttl never expires")
	})

	t.Run("delete prefix", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "other", []byte("x"), time.Hour))
		require.NoError(t, c.DeletePrefix(ctx, core.PortalCachePrefix))

		_, err := c.Get(ctx, "portal:/v1/partners")
		assert.Equal(t, core.ErrCacheMiss, err)
		_, err = c.Get(ctx, "other")
		assert.NoError(t, err)
	})
}

func TestMemoryCache_valuesAreCopied(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	val := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", val, 0))
	val[0] = 'z'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestNew_withoutRedisURL(t *testing.T) {
	c, err := New(context.Background(), core.NewTestConfig())
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
}
