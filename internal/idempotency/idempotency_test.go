package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/importcredit/internal/idempotency/config"
)

func newTestKeeper(t *testing.T, ttl time.Duration) (Keeper, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisKeeper(client, ttl), srv
}

func TestKeeperLifecycle(t *testing.T) {
	ctx := context.Background()
	keeper, srv := newTestKeeper(t, time.Hour)

	result, done, err := keeper.Begin(ctx, "req-1")
	require.NoError(t, err)
	require.False(t, done)
	require.Empty(t, result)

	// a second attempt while the first is running
	_, _, err = keeper.Begin(ctx, "req-1")
	require.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, keeper.Complete(ctx, "req-1", "imp-42"))
	result, done, err = keeper.Begin(ctx, "req-1")
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, "imp-42", result)

	require.True(t, srv.Exists(keyPrefix+"req-1"))
	require.Equal(t, time.Hour, srv.TTL(keyPrefix+"req-1"))

	// the window closes
	srv.FastForward(time.Hour + time.Second)
	_, done, err = keeper.Begin(ctx, "req-1")
	require.NoError(t, err)
	require.False(t, done)
}

func TestKeeperAbortAllowsRetry(t *testing.T) {
	ctx := context.Background()
	keeper, _ := newTestKeeper(t, 0)

	_, _, err := keeper.Begin(ctx, "req-2")
	require.NoError(t, err)
	require.NoError(t, keeper.Abort(ctx, "req-2"))

	_, done, err := keeper.Begin(ctx, "req-2")
	require.NoError(t, err)
	require.False(t, done)
}

func TestNewKeeperWithoutRedis(t *testing.T) {
	ctx := context.Background()
	keeper, err := NewKeeper(ctx, config.Config{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, done, err := keeper.Begin(ctx, "req-3")
		require.NoError(t, err)
		require.False(t, done)
	}
	require.NoError(t, keeper.Complete(ctx, "req-3", "x"))
}

func TestNewKeeperConnects(t *testing.T) {
	srv := miniredis.RunT(t)
	keeper, err := NewKeeper(context.Background(), config.Config{RedisAddr: srv.Addr(), TTL: time.Minute})
	require.NoError(t, err)

	_, _, err = keeper.Begin(context.Background(), "req-4")
	require.NoError(t, err)
	require.Equal(t, time.Minute, srv.TTL(keyPrefix+"req-4"))
}
