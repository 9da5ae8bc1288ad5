// Package idempotency caches idempotency-key lookups in Redis so client
// retries after timeouts short-circuit before taking the per-staff lock. The
// cache is a fast path only: the unique key column on the appointments table
// stays authoritative, so a cold or unavailable cache is safe.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mariobeauty/salon-scheduling/pkg/logging"
)

const keyPrefix = "booking:idem:"

// Cache maps idempotency keys to appointment ids with a TTL.
type Cache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCache creates a cache. A nil client disables the fast path entirely.
func NewCache(client *redis.Client, ttl time.Duration, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{redis: client, ttl: ttl, logger: logger.Component("idempotency")}
}

// Lookup returns the appointment id previously stored for the key, or
// (uuid.Nil, false) on a miss. Redis outages fail open as a miss.
func (c *Cache) Lookup(ctx context.Context, key string) (uuid.UUID, bool) {
	if c == nil || c.redis == nil || key == "" {
		return uuid.Nil, false
	}
	val, err := c.redis.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("idempotency lookup failed", "error", err)
		}
		return uuid.Nil, false
	}
	id, err := uuid.Parse(val)
	if err != nil {
		c.logger.Warn("idempotency cache holds malformed id", "value", val)
		return uuid.Nil, false
	}
	return id, true
}

// Remember stores the key → appointment mapping for the retry window. Errors
// are logged and swallowed: losing the fast path costs a lock acquisition,
// not correctness.
func (c *Cache) Remember(ctx context.Context, key string, appointmentID uuid.UUID) {
	if c == nil || c.redis == nil || key == "" {
		return
	}
	if err := c.redis.Set(ctx, keyPrefix+key, appointmentID.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("idempotency remember failed", "error", err, "appointment_id", appointmentID)
	}
}
