package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("SENTINEL_POSTGRES_URL", "postgres://localhost:5432/sentinel?sslmode=disable")
	t.Setenv("SENTINEL_ISSUER_URL", "https://id.example.com")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Token.KeySetTTL != 60*time.Minute {
		t.Errorf("expected 60m key set TTL, got %v", cfg.Token.KeySetTTL)
	}
	if !cfg.Token.RevocationCheckEnabled {
		t.Error("expected revocation checking enabled by default")
	}
	if cfg.Checker.PermissionCacheTTL != 30*time.Second {
		t.Errorf("expected 30s permission cache TTL, got %v", cfg.Checker.PermissionCacheTTL)
	}
	if cfg.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SENTINEL_KEYSET_TTL", "5m")
	t.Setenv("SENTINEL_REVOCATION_CHECK", "false")
	t.Setenv("SENTINEL_ENV", "production")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Token.KeySetTTL != 5*time.Minute {
		t.Errorf("expected 5m key set TTL, got %v", cfg.Token.KeySetTTL)
	}
	if cfg.Token.RevocationCheckEnabled {
		t.Error("expected revocation checking disabled")
	}
	if !cfg.IsProduction() {
		t.Error("expected production environment")
	}
}

func TestValidate_MissingIssuer(t *testing.T) {
	t.Setenv("SENTINEL_POSTGRES_URL", "postgres://localhost/sentinel")
	t.Setenv("SENTINEL_ISSUER_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error for missing issuer URL")
	}
}

func TestValidate_BadEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SENTINEL_ENV", "qa")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error for unknown environment")
	}
}
