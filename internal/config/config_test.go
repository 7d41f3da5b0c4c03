package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PRESERVE_BOOKED_SLOTS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if !cfg.PreserveBookedSlots {
		t.Fatalf("expected booked slot preservation enabled by default")
	}
	if !cfg.NotifyAffectedCustomers {
		t.Fatalf("expected customer notifications enabled by default")
	}
	if cfg.FailFastNotifications {
		t.Fatalf("expected fail-fast notifications disabled by default")
	}
	if cfg.ProviderLockTTL != 10*time.Second {
		t.Fatalf("expected default provider lock TTL, got %s", cfg.ProviderLockTTL)
	}
	if cfg.RateLimitPerSec != 0 {
		t.Fatalf("expected rate limiting disabled by default, got %f", cfg.RateLimitPerSec)
	}
	if cfg.RateLimitBurst != 20 {
		t.Fatalf("expected default rate limit burst, got %d", cfg.RateLimitBurst)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("PRESERVE_BOOKED_SLOTS", "false")
	t.Setenv("PROVIDER_LOCK_TTL", "30s")
	t.Setenv("RATE_LIMIT_PER_SEC", "25.5")
	t.Setenv("RATE_LIMIT_BURST", "50")
	t.Setenv("SENDGRID_API_KEY", "SG.test")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.PreserveBookedSlots {
		t.Fatalf("expected booked slot preservation disabled")
	}
	if cfg.ProviderLockTTL != 30*time.Second {
		t.Fatalf("expected lock TTL override, got %s", cfg.ProviderLockTTL)
	}
	if cfg.RateLimitPerSec != 25.5 {
		t.Fatalf("expected rate limit override, got %f", cfg.RateLimitPerSec)
	}
	if cfg.RateLimitBurst != 50 {
		t.Fatalf("expected rate limit burst override, got %d", cfg.RateLimitBurst)
	}
	if cfg.SendGridAPIKey != "SG.test" {
		t.Fatalf("expected sendgrid key override, got %s", cfg.SendGridAPIKey)
	}
}
