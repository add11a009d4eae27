package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     string
	LogLevel string

	// postgres or memory
	EventStore string
	DBURL      string

	Webhook   WebhookConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig

	CronSecret     string
	EventsAPIToken string
	CORSOrigins    []string
}

type WebhookConfig struct {
	URL           string
	Secret        string
	Timeout       time.Duration
	MaxAttempts   int
	StaleAfter    time.Duration
	SweepBatch    int
	SweepInterval time.Duration // 0 leaves retries to the external scheduler
}

// DeliveryEnabled reports whether outbound calls can be made. Events are
// still recorded when it is false.
func (w WebhookConfig) DeliveryEnabled() bool {
	return w.URL != "" && w.Secret != ""
}

type RateLimitConfig struct {
	// memory or redis
	Backend     string
	Window      time.Duration
	MaxRequests int
	SweepEvery  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := Config{
		Env:        getEnv("APP_ENV", "development"),
		Port:       getEnv("PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		EventStore: strings.ToLower(getEnv("EVENT_STORE", "postgres")),
		DBURL:      os.Getenv("DB_URL"),
		Webhook: WebhookConfig{
			URL:           os.Getenv("N8N_WEBHOOK_URL"),
			Secret:        os.Getenv("WEBHOOK_SECRET"),
			Timeout:       getDuration("WEBHOOK_TIMEOUT", 10*time.Second, &errs),
			MaxAttempts:   getInt("WEBHOOK_MAX_ATTEMPTS", 3, &errs),
			StaleAfter:    getDuration("WEBHOOK_STALE_AFTER", 10*time.Minute, &errs),
			SweepBatch:    getInt("WEBHOOK_SWEEP_BATCH", 100, &errs),
			SweepInterval: getDuration("WEBHOOK_SWEEP_INTERVAL", 0, &errs),
		},
		RateLimit: RateLimitConfig{
			Backend:     strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
			Window:      getDuration("RATE_LIMIT_WINDOW", time.Minute, &errs),
			MaxRequests: getInt("RATE_LIMIT_MAX_REQUESTS", 60, &errs),
			SweepEvery:  getDuration("RATE_LIMIT_SWEEP_EVERY", 5*time.Minute, &errs),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0, &errs),
		},
		CronSecret:     os.Getenv("CRON_SECRET"),
		EventsAPIToken: os.Getenv("EVENTS_API_TOKEN"),
		CORSOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	switch cfg.EventStore {
	case "postgres":
		if cfg.DBURL == "" {
			errs = append(errs, errors.New("DB_URL is required when EVENT_STORE=postgres"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("EVENT_STORE must be postgres or memory, got %q", cfg.EventStore))
	}

	switch cfg.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be memory or redis, got %q", cfg.RateLimit.Backend))
	}

	if cfg.Webhook.MaxAttempts < 1 {
		errs = append(errs, errors.New("WEBHOOK_MAX_ATTEMPTS must be at least 1"))
	}
	if cfg.Webhook.SweepBatch < 1 {
		errs = append(errs, errors.New("WEBHOOK_SWEEP_BATCH must be at least 1"))
	}
	if cfg.RateLimit.MaxRequests < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX_REQUESTS must be at least 1"))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	if d < 0 {
		*errs = append(*errs, fmt.Errorf("%s must not be negative", key))
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
