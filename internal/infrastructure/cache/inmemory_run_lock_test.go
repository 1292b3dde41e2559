package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sitebook/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRunLock_TryAcquire(t *testing.T) {
	ctx := context.Background()

	t.Run("second acquire fails while held", func(t *testing.T) {
		lock := NewInMemoryRunLock()
		token, ok, err := lock.TryAcquire(ctx, "reconcile", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotEmpty(t, token)

		_, ok, err = lock.TryAcquire(ctx, "reconcile", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		lock := NewInMemoryRunLock()
		_, ok1, _ := lock.TryAcquire(ctx, "a", time.Minute)
		_, ok2, _ := lock.TryAcquire(ctx, "b", time.Minute)
		assert.True(t, ok1)
		assert.True(t, ok2)
	})

	t.Run("expired lock can be taken", func(t *testing.T) {
		lock := NewInMemoryRunLock()
		now := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
		lock.now = func() time.Time { return now }

		_, ok, _ := lock.TryAcquire(ctx, "reconcile", time.Minute)
		require.True(t, ok)

		now = now.Add(2 * time.Minute)
		_, ok, _ = lock.TryAcquire(ctx, "reconcile", time.Minute)
		assert.True(t, ok)
	})
}

func TestInMemoryRunLock_Release(t *testing.T) {
	ctx := context.Background()

	t.Run("owner release frees the lock", func(t *testing.T) {
		lock := NewInMemoryRunLock()
		token, _, _ := lock.TryAcquire(ctx, "reconcile", time.Minute)
		require.NoError(t, lock.Release(ctx, "reconcile", token))

		_, ok, _ := lock.TryAcquire(ctx, "reconcile", time.Minute)
		assert.True(t, ok)
	})

	t.Run("stale token does not free a newer holder", func(t *testing.T) {
		lock := NewInMemoryRunLock()
		now := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
		lock.now = func() time.Time { return now }

		stale, _, _ := lock.TryAcquire(ctx, "reconcile", time.Minute)
		now = now.Add(2 * time.Minute)
		_, ok, _ := lock.TryAcquire(ctx, "reconcile", time.Minute)
		require.True(t, ok)

		require.NoError(t, lock.Release(ctx, "reconcile", stale))
		_, ok, _ = lock.TryAcquire(ctx, "reconcile", time.Minute)
		assert.False(t, ok)
	})
}

func TestInMemoryRunLock_Concurrent(t *testing.T) {
	lock := NewInMemoryRunLock()
	ctx := context.Background()

	var acquired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := lock.TryAcquire(ctx, "reconcile", time.Minute); ok {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), acquired.Load())
}

func TestRunLockFactory_Create(t *testing.T) {
	t.Run("no redis host uses in-memory lock", func(t *testing.T) {
		lock, err := NewRunLockFactory(config.RedisConfig{}).Create()
		require.NoError(t, err)
		assert.IsType(t, &InMemoryRunLock{}, lock)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		lock, err := NewRunLockFactory(config.RedisConfig{Host: "127.0.0.1", Port: 1}).Create()
		require.NoError(t, err)
		assert.IsType(t, &InMemoryRunLock{}, lock)
	})

	t.Run("unreachable redis fails without fallback", func(t *testing.T) {
		_, err := NewRunLockFactory(config.RedisConfig{Host: "127.0.0.1", Port: 1}, WithInMemoryFallback(false)).Create()
		assert.Error(t, err)
	})
}
