package shift

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisReportCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisReportCache(client, time.Hour)
}

func TestReportCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	report := Report{
		ShiftID:      uuid.New(),
		OperatorID:   "op-1",
		ExpectedCash: decimal.RequireFromString("150000"),
		Difference:   decimal.RequireFromString("-250.50"),
	}
	require.NoError(t, cache.Put(ctx, report))

	got, ok, err := cache.Get(ctx, report.ShiftID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, report.ShiftID, got.ShiftID)
	assert.Equal(t, "op-1", got.OperatorID)
	assert.True(t, got.ExpectedCash.Equal(report.ExpectedCash))
	assert.True(t, got.Difference.Equal(report.Difference))
}

func TestReportCacheMiss(t *testing.T) {
	cache := newTestCache(t)

	_, ok, err := cache.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReportCacheOverwrite(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, cache.Put(ctx, Report{ShiftID: id, OperatorID: "op-1"}))
	require.NoError(t, cache.Put(ctx, Report{ShiftID: id, OperatorID: "op-2"}))

	got, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "op-2", got.OperatorID)
}
