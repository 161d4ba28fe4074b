package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/referrals")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %q", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("expected development mode by default")
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 5 {
		t.Errorf("unexpected pool defaults: max=%d min=%d", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.OutboxInterval != 2*time.Second {
		t.Errorf("expected 2s outbox interval, got %s", cfg.OutboxInterval)
	}
	if cfg.DirectoryCacheTTL != 5*time.Minute {
		t.Errorf("expected 5m directory cache TTL, got %s", cfg.DirectoryCacheTTL)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("unexpected CORS origins %v", cfg.CORSOrigins)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db:5432/referrals")
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("OUTBOX_INTERVAL", "500ms")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("expected port 9000, got %q", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Error("expected production mode")
	}
	if cfg.RedisURL != "redis://cache:6379/0" {
		t.Errorf("unexpected redis url %q", cfg.RedisURL)
	}
	if cfg.OutboxInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms outbox interval, got %s", cfg.OutboxInterval)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("expected 2 CORS origins, got %v", cfg.CORSOrigins)
	}
}

func TestValidate_ProductionRequiresAuth(t *testing.T) {
	cfg := &Config{Env: "production", OutboxInterval: time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for production without auth configuration")
	}

	cfg.AuthIssuer = "https://auth.example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_TLSRequiresCertAndKey(t *testing.T) {
	cfg := &Config{Env: "development", OutboxInterval: time.Second, TLSEnabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for TLS without cert file")
	}

	cfg.TLSCertFile = "server.crt"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for TLS without key file")
	}

	cfg.TLSKeyFile = "server.key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_OutboxInterval(t *testing.T) {
	cfg := &Config{Env: "development"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive outbox interval")
	}
}
