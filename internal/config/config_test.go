package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "STORE_BACKEND", "BEDROCK_MODEL_ID", "LLM_PROVIDER",
		"REPLY_TIMEOUT", "STORE_MAX_ATTEMPTS", "INTAKE_REQUIRE_STAY_DATES", "WHATSAPP_ALLOW_UNDATED", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.StoreBackend != "memory" {
		t.Fatalf("expected memory store by default, got %s", cfg.StoreBackend)
	}
	if cfg.LLMProvider != "none" {
		t.Fatalf("expected no llm provider by default, got %s", cfg.LLMProvider)
	}
	if cfg.ReplyTimeout != 8*time.Second {
		t.Fatalf("expected default reply timeout, got %s", cfg.ReplyTimeout)
	}
	if cfg.StoreMaxAttempts != 3 || cfg.StoreRetryBaseDelay != 100*time.Millisecond {
		t.Fatalf("unexpected retry defaults: %d %s", cfg.StoreMaxAttempts, cfg.StoreRetryBaseDelay)
	}
	if !cfg.IntakeRequireStayDates {
		t.Fatalf("expected generic intake to require stay dates by default")
	}
	if !cfg.WhatsAppAllowUndated {
		t.Fatalf("expected whatsapp to allow undated conversations by default")
	}
	if cfg.MatchPolicy != "tiered" {
		t.Fatalf("expected tiered match policy, got %s", cfg.MatchPolicy)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("STORE_BACKEND", " DynamoDB ")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("REPLY_TIMEOUT", "3s")
	t.Setenv("REPLY_HISTORY_LIMIT", "4")
	t.Setenv("INTAKE_REQUIRE_STAY_DATES", "false")
	t.Setenv("WHATSAPP_PROPERTY_MAP", `{"1234":"rec1"}`)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://console.example.com, ,https://localhost:5173")
	t.Setenv("WEBHOOK_RATE_LIMIT", "2.5")
	t.Setenv("STORE_TIMEOUT", "not-a-duration")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	t.Setenv("SES_FROM_EMAIL", "bot@guestpilot.io")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.StoreBackend != "dynamodb" {
		t.Fatalf("expected normalized store backend, got %q", cfg.StoreBackend)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.ReplyTimeout != 3*time.Second || cfg.ReplyHistoryLimit != 4 {
		t.Fatalf("expected reply overrides, got %s %d", cfg.ReplyTimeout, cfg.ReplyHistoryLimit)
	}
	if cfg.IntakeRequireStayDates {
		t.Fatalf("expected stay dates requirement disabled")
	}
	if cfg.WhatsAppPropertyMap != `{"1234":"rec1"}` {
		t.Fatalf("expected property map override, got %s", cfg.WhatsAppPropertyMap)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://localhost:5173" {
		t.Fatalf("expected two cors origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.WebhookRateLimit != 2.5 {
		t.Fatalf("expected rate override, got %v", cfg.WebhookRateLimit)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("expected invalid duration to fall back to default, got %s", cfg.StoreTimeout)
	}
	if cfg.EmailProvider != "ses" || cfg.SESFromEmail != "bot@guestpilot.io" || cfg.SESFromName != "GuestPilot" {
		t.Fatalf("expected ses email settings, got %q %q %q", cfg.EmailProvider, cfg.SESFromEmail, cfg.SESFromName)
	}
}
