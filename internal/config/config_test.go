package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SNACKS_TOKEN_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.TokenTTL != 12*time.Hour {
		t.Fatalf("TokenTTL = %v", cfg.TokenTTL)
	}
	if cfg.SessionRetention != 30*24*time.Hour {
		t.Fatalf("SessionRetention = %v", cfg.SessionRetention)
	}
}

func TestLoadOverridesAndValidation(t *testing.T) {
	t.Setenv("SNACKS_TOKEN_SECRET", "s3cret")
	t.Setenv("SNACKS_TOKEN_TTL", "45m")
	t.Setenv("SNACKS_ALLOWED_ORIGINS", "https://store.example, https://admin.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TokenTTL != 45*time.Minute {
		t.Fatalf("TokenTTL = %v", cfg.TokenTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://admin.example" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}

	t.Setenv("SNACKS_TOKEN_TTL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("SNACKS_TOKEN_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when token secret missing")
	}
}
