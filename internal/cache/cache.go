// Package cache provides an optional Redis cache with entries for the
// latest datapoint per event and the OTA update-check result. When
// REDIS_URL is unset every method is a no-op or a miss. The runtime
// constructs, health-checks and closes the cache; the HTTP handlers, the
// ingestion pipeline and the OTA check neither read nor write through it.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/stefanposs/webmacs/infrastructure/logging"
)

// Cache wraps an optional Redis client. A nil client makes every method a
// no-op/miss, so callers never need to branch on whether caching is
// configured.
type Cache struct {
	client *redis.Client
	logger *logging.Logger
}

// New constructs a Cache. Pass an empty redisURL to disable caching.
func New(redisURL string, logger *logging.Logger) (*Cache, error) {
	if logger == nil {
		logger = logging.NewFromEnv("cache")
	}
	if redisURL == "" {
		return &Cache{logger: logger}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Cache{client: redis.NewClient(opts), logger: logger}, nil
}

// Enabled reports whether a Redis client is configured.
func (c *Cache) Enabled() bool { return c != nil && c.client != nil }

// HealthCheck pings Redis, satisfying service.HealthPinger. A disabled
// cache always reports healthy since it has nothing to be unhealthy about.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func latestKey(eventPublicID string) string { return "webmacs:latest:" + eventPublicID }

const otaCheckKey = "webmacs:ota:check"

// LatestValue is the cached shape of a single event's most recent reading.
type LatestValue struct {
	Value              float64    `json:"value"`
	Timestamp          time.Time  `json:"timestamp"`
	ExperimentPublicID *string    `json:"experiment_public_id,omitempty"`
}

// GetLatest returns the cached latest reading for an event, or ok=false on
// a cache miss or when caching is disabled.
func (c *Cache) GetLatest(ctx context.Context, eventPublicID string) (LatestValue, bool) {
	if !c.Enabled() {
		return LatestValue{}, false
	}
	raw, err := c.client.Get(ctx, latestKey(eventPublicID)).Bytes()
	if err != nil {
		return LatestValue{}, false
	}
	var v LatestValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return LatestValue{}, false
	}
	return v, true
}

// SetLatest caches an event's most recent reading for ttl.
func (c *Cache) SetLatest(ctx context.Context, eventPublicID string, v LatestValue, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, latestKey(eventPublicID), raw, ttl).Err(); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("cache set latest failed")
	}
}

// InvalidateEvent evicts the cached latest reading for an event.
func (c *Cache) InvalidateEvent(ctx context.Context, eventPublicID string) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Del(ctx, latestKey(eventPublicID)).Err(); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("cache invalidate failed")
	}
}

// GetOTACheck returns the cached OTA update-check payload, or ok=false on
// a miss.
func (c *Cache) GetOTACheck(ctx context.Context) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	raw, err := c.client.Get(ctx, otaCheckKey).Bytes()
	if err != nil {
		return nil, false
	}
	return raw, true
}

// SetOTACheck caches the OTA update-check payload for ttl.
func (c *Cache) SetOTACheck(ctx context.Context, payload []byte, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Set(ctx, otaCheckKey, payload, ttl).Err(); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("cache set ota check failed")
	}
}

// Close releases the underlying Redis connection, if any.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
