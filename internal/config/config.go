// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the auth service.
type Config struct {
	ListenAddr  string
	DatabaseDSN string

	TokenSecret string
	TokenIssuer string
	TokenTTL    time.Duration

	SessionRetention time.Duration
	SweepHourly      time.Duration
	SweepDaily       time.Duration

	MaxBodyBytes   int64
	RateBurst      int
	RatePerSecond  int
	AllowedOrigins []string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:       getString("SNACKS_LISTEN_ADDR", ":8080"),
		DatabaseDSN:      os.Getenv("SNACKS_PG_DSN"),
		TokenSecret:      os.Getenv("SNACKS_TOKEN_SECRET"),
		TokenIssuer:      getString("SNACKS_TOKEN_ISSUER", "snacks-auth"),
		AllowedOrigins:   splitCSV(os.Getenv("SNACKS_ALLOWED_ORIGINS")),
		MaxBodyBytes:     1 << 20,
		RateBurst:        40,
		RatePerSecond:    20,
		TokenTTL:         12 * time.Hour,
		SessionRetention: 30 * 24 * time.Hour,
		SweepHourly:      time.Hour,
		SweepDaily:       24 * time.Hour,
	}

	var err error
	if cfg.TokenTTL, err = getDuration("SNACKS_TOKEN_TTL", cfg.TokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.SessionRetention, err = getDuration("SNACKS_SESSION_RETENTION", cfg.SessionRetention); err != nil {
		return Config{}, err
	}
	if cfg.SweepHourly, err = getDuration("SNACKS_SWEEP_HOURLY", cfg.SweepHourly); err != nil {
		return Config{}, err
	}
	if cfg.SweepDaily, err = getDuration("SNACKS_SWEEP_DAILY", cfg.SweepDaily); err != nil {
		return Config{}, err
	}
	if cfg.MaxBodyBytes, err = getInt64("SNACKS_MAX_BODY_BYTES", cfg.MaxBodyBytes); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = getInt("SNACKS_RATE_BURST", cfg.RateBurst); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSecond, err = getInt("SNACKS_RATE_PER_SECOND", cfg.RatePerSecond); err != nil {
		return Config{}, err
	}

	if cfg.TokenSecret == "" {
		return Config{}, fmt.Errorf("config: SNACKS_TOKEN_SECRET is required")
	}
	return cfg, nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
