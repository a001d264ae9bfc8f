package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/trogers1052/portfolio-tracker/internal/models"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rdb := setupRedis(t)
	ctx := context.Background()

	t.Run("second holder times out", func(t *testing.T) {
		locker := NewRedisLocker(rdb, "test:", 5*time.Second, 100*time.Millisecond, zerolog.Nop())

		unlock, err := locker.Lock(ctx, "position:1:AAPL")
		require.NoError(t, err)

		_, err = locker.Lock(ctx, "position:1:AAPL")
		require.ErrorIs(t, err, models.ErrLockTimeout)

		unlock()
		unlock2, err := locker.Lock(ctx, "position:1:AAPL")
		require.NoError(t, err)
		unlock2()
	})

	t.Run("different keys do not contend", func(t *testing.T) {
		locker := NewRedisLocker(rdb, "test:", 5*time.Second, 100*time.Millisecond, zerolog.Nop())

		unlockA, err := locker.Lock(ctx, "position:1:AAPL")
		require.NoError(t, err)
		defer unlockA()

		unlockB, err := locker.Lock(ctx, "position:1:MSFT")
		require.NoError(t, err)
		unlockB()
	})

	t.Run("expired lock is not released by its old holder", func(t *testing.T) {
		locker := NewRedisLocker(rdb, "test:", 50*time.Millisecond, time.Second, zerolog.Nop())

		staleUnlock, err := locker.Lock(ctx, "position:2:TSLA")
		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)

		unlock, err := locker.Lock(ctx, "position:2:TSLA")
		require.NoError(t, err)
		defer unlock()

		staleUnlock()
		exists, err := rdb.Exists(ctx, "test:position:2:TSLA").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
	})

	t.Run("holders are serialized", func(t *testing.T) {
		locker := NewRedisLocker(rdb, "test:", 5*time.Second, 5*time.Second, zerolog.Nop())

		var mu sync.Mutex
		inside, maxInside := 0, 0
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(ctx, "position:3:NVDA")
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxInside)
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		locker := NewRedisLocker(rdb, "test:", 5*time.Second, 5*time.Second, zerolog.Nop())

		unlock, err := locker.Lock(ctx, "position:4:SLV")
		require.NoError(t, err)
		defer unlock()

		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(cctx, "position:4:SLV")
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
