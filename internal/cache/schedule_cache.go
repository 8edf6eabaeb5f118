// Package cache keeps read-mostly catalog data close to the API
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// ScheduleCache caches published schedules by ID. Misses and cache
// failures are indistinguishable to callers; both fall back to the store.
type ScheduleCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Schedule, bool)
	Set(ctx context.Context, schedule *models.Schedule)
	Invalidate(ctx context.Context, id uuid.UUID)
}

// RedisScheduleCache stores schedules as JSON with a TTL
type RedisScheduleCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisScheduleCache creates a new RedisScheduleCache
func NewRedisScheduleCache(client redis.UniversalClient, ttl time.Duration, logger *logrus.Logger) *RedisScheduleCache {
	return &RedisScheduleCache{client: client, ttl: ttl, logger: logger}
}

func scheduleKey(id uuid.UUID) string {
	return "rail:schedule:" + id.String()
}

// Get returns a cached schedule
func (c *RedisScheduleCache) Get(ctx context.Context, id uuid.UUID) (*models.Schedule, bool) {
	raw, err := c.client.Get(ctx, scheduleKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("schedule_id", id).Warn("Schedule cache lookup failed")
		}
		return nil, false
	}

	var schedule models.Schedule
	if err := json.Unmarshal(raw, &schedule); err != nil {
		c.logger.WithError(err).WithField("schedule_id", id).Warn("Discarding undecodable cached schedule")
		c.Invalidate(ctx, id)
		return nil, false
	}
	return &schedule, true
}

// Set stores a schedule
func (c *RedisScheduleCache) Set(ctx context.Context, schedule *models.Schedule) {
	raw, err := json.Marshal(schedule)
	if err != nil {
		c.logger.WithError(err).WithField("schedule_id", schedule.ID).Warn("Failed to encode schedule for cache")
		return
	}
	if err := c.client.Set(ctx, scheduleKey(schedule.ID), raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("schedule_id", schedule.ID).Warn("Failed to cache schedule")
	}
}

// Invalidate drops a cached schedule
func (c *RedisScheduleCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.client.Del(ctx, scheduleKey(id)).Err(); err != nil {
		c.logger.WithError(err).WithField("schedule_id", id).Warn("Failed to invalidate cached schedule")
	}
}

// NoopScheduleCache never caches anything
type NoopScheduleCache struct{}

// Get always misses
func (NoopScheduleCache) Get(context.Context, uuid.UUID) (*models.Schedule, bool) { return nil, false }

// Set does nothing
func (NoopScheduleCache) Set(context.Context, *models.Schedule) {}

// Invalidate does nothing
func (NoopScheduleCache) Invalidate(context.Context, uuid.UUID) {}
