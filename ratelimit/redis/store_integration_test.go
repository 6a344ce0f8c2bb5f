//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Incr_Integration(t *testing.T) {
	ctx := context.Background()

	t.Run("counts within a window", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		store := CreateTestStore(t, redisContainer.Addr)
		defer store.Close()

		for i := int64(1); i <= 5; i++ {
			count, resetAt, err := store.Incr(ctx, "auth:198.51.100.1", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, i, count)
			assert.WithinDuration(t, time.Now().Add(time.Minute), resetAt, 5*time.Second)
		}
	})

	t.Run("keys count independently", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		store := CreateTestStore(t, redisContainer.Addr)
		defer store.Close()

		_, _, err := store.Incr(ctx, "auth:198.51.100.1", time.Minute)
		require.NoError(t, err)
		_, _, err = store.Incr(ctx, "auth:198.51.100.1", time.Minute)
		require.NoError(t, err)

		count, _, err := store.Incr(ctx, "auth:198.51.100.2", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		count, _, err = store.Incr(ctx, "dashboard:198.51.100.1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("window expiry resets the count", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		store := CreateTestStore(t, redisContainer.Addr)
		defer store.Close()

		count, _, err := store.Incr(ctx, "demo:198.51.100.1", 2*time.Second)
		require.NoError(t, err)
		require.Equal(t, int64(1), count)

		count, _, err = store.Incr(ctx, "demo:198.51.100.1", 2*time.Second)
		require.NoError(t, err)
		require.Equal(t, int64(2), count)

		time.Sleep(3 * time.Second)

		count, _, err = store.Incr(ctx, "demo:198.51.100.1", 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "expired window should start over")
	})
}
