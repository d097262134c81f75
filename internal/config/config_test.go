package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MarketPrice.String() != "800" {
		t.Fatalf("expected default market price 800, got %s", cfg.MarketPrice)
	}
	if cfg.NearbyRadiusKm != 50 {
		t.Fatalf("expected nearby radius 50, got %v", cfg.NearbyRadiusKm)
	}
	if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
		t.Fatal("development should fall back to dev secrets")
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("unexpected idempotency ttl %v", cfg.IdempotencyTTL)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoadSecondsOverride(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ShutdownPeriod != 3*time.Second {
		t.Fatalf("expected 3s shutdown, got %v", cfg.ShutdownPeriod)
	}
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	if _, err := load(viper.New()); err == nil {
		t.Fatal("expected error without DATABASE_URL in production")
	}
}

func TestLoadRejectsBadMarketPrice(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("MARKET_PRICE", "-5")

	if _, err := load(viper.New()); err == nil {
		t.Fatal("expected negative market price to be rejected")
	}
}
