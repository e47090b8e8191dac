package shift

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisReportCache keeps the latest close report per shift in Redis.
type RedisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReportCache constructs the cache with the given entry TTL.
func NewRedisReportCache(client *redis.Client, ttl time.Duration) *RedisReportCache {
	return &RedisReportCache{client: client, ttl: ttl}
}

func reportKey(shiftID uuid.UUID) string {
	return "shift:report:" + shiftID.String()
}

// Put stores the report, replacing any previous entry for the shift.
func (c *RedisReportCache) Put(ctx context.Context, report Report) error {
	if c == nil || c.client == nil {
		return errors.New("shift: report cache not initialised")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("shift: marshal report: %w", err)
	}
	if err := c.client.Set(ctx, reportKey(report.ShiftID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("shift: cache put: %w", err)
	}
	return nil
}

// Get returns the cached report for the shift; the bool reports a hit.
func (c *RedisReportCache) Get(ctx context.Context, shiftID uuid.UUID) (Report, bool, error) {
	if c == nil || c.client == nil {
		return Report{}, false, errors.New("shift: report cache not initialised")
	}
	data, err := c.client.Get(ctx, reportKey(shiftID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Report{}, false, nil
		}
		return Report{}, false, fmt.Errorf("shift: cache get: %w", err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, false, fmt.Errorf("shift: unmarshal cached report: %w", err)
	}
	return report, true, nil
}
