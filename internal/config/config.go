package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName        = "Panapagos"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultAlertThreshold = 5.0
	defaultTxTimeout      = 10 * time.Second
	defaultTxMaxWait      = 5 * time.Second
	defaultAccessTTL      = 15 * time.Minute
	defaultRefreshTTL     = 30 * 24 * time.Hour

	minSigningSecretLen = 16
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string

	// LedgerSigningSecret keys the HMAC over every ledger entry. The process
	// refuses to start without it.
	LedgerSigningSecret string

	// AlertThresholdPercent is the default Golden Alert trigger in percent.
	AlertThresholdPercent float64

	// WebhookURL, when set, receives push notifications as signed JSON
	// POSTs keyed by WebhookSecret.
	WebhookURL    string
	WebhookSecret string

	// TxTimeout bounds a single ledger transaction; TxMaxWait bounds waiting
	// for a transaction slot.
	TxTimeout time.Duration
	TxMaxWait time.Duration

	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
}

// Load reads configuration values from the environment and populates a Config
// instance. A local .env file is applied first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:               getEnv("APP_NAME", defaultAppName),
		AppEnv:                getEnv("APP_ENV", defaultAppEnv),
		Port:                  getEnv("PORT", defaultPort),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		LedgerSigningSecret:   os.Getenv("LEDGER_SIGNING_SECRET"),
		AlertThresholdPercent: defaultAlertThreshold,
		WebhookURL:            os.Getenv("WEBHOOK_URL"),
		WebhookSecret:         os.Getenv("WEBHOOK_SECRET"),
		TxTimeout:             defaultTxTimeout,
		TxMaxWait:             defaultTxMaxWait,
		JWTSecret:             os.Getenv("JWT_SECRET"),
		RefreshSecret:         os.Getenv("REFRESH_SECRET"),
		AccessTokenTTL:        defaultAccessTTL,
		RefreshTokenTTL:       defaultRefreshTTL,
		ShutdownPeriod:        defaultShutdownDelay,
		IdempotencyTTL:        defaultIdempotencyTTL,
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if v := os.Getenv("GOLDEN_ALERT_THRESHOLD_PERCENT"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil || threshold <= 0 {
			return Config{}, fmt.Errorf("invalid GOLDEN_ALERT_THRESHOLD_PERCENT: %q", v)
		}
		cfg.AlertThresholdPercent = threshold
	}

	var err error
	if cfg.TxTimeout, err = durationEnv("LEDGER_TX_TIMEOUT", cfg.TxTimeout); err != nil {
		return Config{}, err
	}
	if cfg.TxMaxWait, err = durationEnv("LEDGER_TX_MAX_WAIT", cfg.TxMaxWait); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = durationEnv("REFRESH_TOKEN_TTL", cfg.RefreshTokenTTL); err != nil {
		return Config{}, err
	}

	if cfg.LedgerSigningSecret == "" {
		return Config{}, fmt.Errorf("LEDGER_SIGNING_SECRET must be set")
	}
	if len(cfg.LedgerSigningSecret) < minSigningSecretLen {
		return Config{}, fmt.Errorf("LEDGER_SIGNING_SECRET must be at least %d bytes", minSigningSecretLen)
	}

	// In dev the API can run on in-memory stores; everywhere else the
	// backing services are mandatory.
	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.JWTSecret
	}
	if cfg.WebhookURL != "" && cfg.WebhookSecret == "" {
		return Config{}, fmt.Errorf("WEBHOOK_SECRET must be set when WEBHOOK_URL is configured")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// durationEnv reads KEY_SECONDS as an integer or KEY as a time.ParseDuration
// string, preferring the seconds form when both are present.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
