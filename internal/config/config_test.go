package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EVENT_STORE", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if cfg.Webhook.MaxAttempts != 3 {
		t.Fatalf("max attempts=%d", cfg.Webhook.MaxAttempts)
	}
	if cfg.Webhook.StaleAfter != 10*time.Minute {
		t.Fatalf("stale after=%s", cfg.Webhook.StaleAfter)
	}
	if cfg.Webhook.SweepInterval != 0 {
		t.Fatalf("sweep interval should default to 0, got %s", cfg.Webhook.SweepInterval)
	}
	if cfg.RateLimit.Backend != "memory" {
		t.Fatalf("rate limit backend=%s", cfg.RateLimit.Backend)
	}
	if cfg.IsProduction() {
		t.Fatalf("default env should not be production")
	}
}

func TestLoad_PostgresNeedsDBURL(t *testing.T) {
	t.Setenv("EVENT_STORE", "postgres")
	t.Setenv("DB_URL", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "DB_URL") {
		t.Fatalf("expected DB_URL error, got %v", err)
	}
}

func TestLoad_InvalidValuesAreReportedTogether(t *testing.T) {
	t.Setenv("EVENT_STORE", "memory")
	t.Setenv("WEBHOOK_TIMEOUT", "soon")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "x")
	t.Setenv("RATE_LIMIT_BACKEND", "memcached")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"WEBHOOK_TIMEOUT", "WEBHOOK_MAX_ATTEMPTS", "RATE_LIMIT_BACKEND"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error should mention %s: %v", want, err)
		}
	}
}

func TestWebhookConfig_DeliveryEnabled(t *testing.T) {
	if (WebhookConfig{URL: "http://n8n"}).DeliveryEnabled() {
		t.Fatalf("delivery without secret should be disabled")
	}
	if !(WebhookConfig{URL: "http://n8n", Secret: "s"}).DeliveryEnabled() {
		t.Fatalf("delivery with url and secret should be enabled")
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	t.Setenv("EVENT_STORE", "memory")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.psicomapa.com, ,https://admin.psicomapa.com")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("origins=%v", cfg.CORSOrigins)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production")
	}
}
