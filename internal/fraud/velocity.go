// Package fraud provides the velocity gate consulted before payment
// authorization: identifiers that fail too often inside a short window are
// temporarily blocked.
package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KindIP keys velocity counters by client address.
	KindIP = "ip"
	// KindCard keys velocity counters by card fingerprint.
	KindCard = "card"
	// KindUser keys velocity counters by user id.
	KindUser = "user"
)

const (
	defaultMaxAttempts   = 3
	defaultWindow        = 5 * time.Minute
	defaultBlockDuration = 30 * time.Minute
)

// Result reports the outcome of a velocity check.
type Result struct {
	Allowed      bool
	Attempts     int
	BlockedUntil time.Time
	Reason       string
}

// VelocityChecker counts failed attempts per identifier in Redis and blocks
// identifiers that exceed the limit. Cache errors fail open: fraud screening
// must never take payments down with it.
type VelocityChecker struct {
	cache         *redis.Client
	logger        *slog.Logger
	maxAttempts   int
	window        time.Duration
	blockDuration time.Duration
}

// NewVelocityChecker builds a checker with the default limits.
func NewVelocityChecker(cache *redis.Client, logger *slog.Logger) *VelocityChecker {
	return &VelocityChecker{
		cache:         cache,
		logger:        logger,
		maxAttempts:   defaultMaxAttempts,
		window:        defaultWindow,
		blockDuration: defaultBlockDuration,
	}
}

// Check reports whether the identifier may proceed.
func (v *VelocityChecker) Check(ctx context.Context, kind, identifier string) Result {
	if v.cache == nil {
		return Result{Allowed: true}
	}

	blockKey := blockKey(kind, identifier)
	ttl, err := v.cache.TTL(ctx, blockKey).Result()
	if err != nil {
		v.logger.Warn("velocity block lookup failed, allowing", "kind", kind, "error", err)
		return Result{Allowed: true}
	}
	if ttl > 0 {
		return Result{
			Allowed:      false,
			Attempts:     v.maxAttempts,
			BlockedUntil: time.Now().Add(ttl),
			Reason:       "too many failed attempts, temporarily blocked",
		}
	}

	raw, err := v.cache.Get(ctx, attemptKey(kind, identifier)).Result()
	if err != nil && err != redis.Nil {
		v.logger.Warn("velocity counter lookup failed, allowing", "kind", kind, "error", err)
		return Result{Allowed: true}
	}
	attempts, _ := strconv.Atoi(raw)

	if attempts >= v.maxAttempts {
		if err := v.cache.Set(ctx, blockKey, "1", v.blockDuration).Err(); err != nil {
			v.logger.Warn("velocity block write failed", "kind", kind, "error", err)
		}
		v.cache.Del(ctx, attemptKey(kind, identifier))
		return Result{
			Allowed:      false,
			Attempts:     attempts,
			BlockedUntil: time.Now().Add(v.blockDuration),
			Reason:       "maximum attempts exceeded",
		}
	}

	return Result{Allowed: true, Attempts: attempts}
}

// RecordFailure increments the identifier's failed-attempt counter.
func (v *VelocityChecker) RecordFailure(ctx context.Context, kind, identifier string) {
	if v.cache == nil {
		return
	}
	key := attemptKey(kind, identifier)
	cnt, err := v.cache.Incr(ctx, key).Result()
	if err != nil {
		v.logger.Warn("velocity counter increment failed", "kind", kind, "error", err)
		return
	}
	if cnt == 1 {
		v.cache.Expire(ctx, key, v.window)
	}
}

// Clear resets the counter after a successful operation.
func (v *VelocityChecker) Clear(ctx context.Context, kind, identifier string) {
	if v.cache == nil {
		return
	}
	v.cache.Del(ctx, attemptKey(kind, identifier))
}

func attemptKey(kind, identifier string) string {
	return fmt.Sprintf("velocity:%s:%s", kind, identifier)
}

func blockKey(kind, identifier string) string {
	return fmt.Sprintf("blocked:%s:%s", kind, identifier)
}
