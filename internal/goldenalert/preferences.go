package goldenalert

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/panapagos/panapagos/internal/notification"
)

const (
	defaultThresholdPercent = 5.0
	prefsKeyPrefix          = "alert:prefs:"
	prefsTTL                = 7 * 24 * time.Hour
)

// Preferences controls when and where a user is alerted.
type Preferences struct {
	ThresholdPercent float64  `json:"threshold_percent"`
	Channels         []string `json:"channels"`
}

// DefaultPreferences is the fixed policy applied when a user has none stored.
func DefaultPreferences() Preferences {
	return Preferences{
		ThresholdPercent: defaultThresholdPercent,
		Channels:         []string{notification.ChannelEmail, notification.ChannelPush},
	}
}

// PreferenceSource resolves a user's alert preferences.
type PreferenceSource interface {
	Get(ctx context.Context, userID string) (Preferences, error)
}

// StaticPreferences always returns the default policy.
type StaticPreferences struct{}

// Get implements PreferenceSource.
func (StaticPreferences) Get(context.Context, string) (Preferences, error) {
	return DefaultPreferences(), nil
}

// RedisPreferences caches per-user alert settings in Redis, falling back to
// the default policy when nothing is stored.
type RedisPreferences struct {
	cache *redis.Client
}

// NewRedisPreferences builds a Redis-backed preference source.
func NewRedisPreferences(cache *redis.Client) *RedisPreferences {
	return &RedisPreferences{cache: cache}
}

// Get returns the stored preferences for the user, or the defaults when none
// exist.
func (r *RedisPreferences) Get(ctx context.Context, userID string) (Preferences, error) {
	raw, err := r.cache.Get(ctx, prefsKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return Preferences{}, err
	}

	var prefs Preferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return Preferences{}, err
	}
	if prefs.ThresholdPercent <= 0 {
		prefs.ThresholdPercent = defaultThresholdPercent
	}
	if len(prefs.Channels) == 0 {
		prefs.Channels = DefaultPreferences().Channels
	}
	return prefs, nil
}

// Set stores a user's alert preferences.
func (r *RedisPreferences) Set(ctx context.Context, userID string, prefs Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return r.cache.Set(ctx, prefsKeyPrefix+userID, raw, prefsTTL).Err()
}
