// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env            string
	ListenAddr     string
	DatabaseURL    string
	AllowedOrigins []string

	Auth       AuthConfig
	Settlement SettlementConfig
	Escrow     EscrowConfig
	R2         R2Config
	RedisURL   string
}

type AuthConfig struct {
	Secret       string
	ServiceToken string // operator credential for /settlement/*
}

type SettlementConfig struct {
	PlatformIdentity string
	FeePercent       int64
}

type EscrowConfig struct {
	IndexerURL   string
	PollInterval time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether receipt archiving has enough settings to run.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		ListenAddr:  getEnv("LISTEN_ADDR", ":5200"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		Auth: AuthConfig{
			Secret:       os.Getenv("AUTH_SECRET"),
			ServiceToken: os.Getenv("SETTLEMENT_SERVICE_TOKEN"),
		},
		Settlement: SettlementConfig{
			PlatformIdentity: getEnv("PLATFORM_IDENTITY", "platform-treasury"),
		},
		Escrow: EscrowConfig{
			IndexerURL: strings.TrimRight(os.Getenv("ESCROW_INDEXER_URL"), "/"),
		},
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
	}

	for _, origin := range strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	fee, err := strconv.ParseInt(getEnv("PLATFORM_FEE_PERCENT", "10"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("PLATFORM_FEE_PERCENT: %w", err)
	}
	cfg.Settlement.FeePercent = fee

	interval, err := time.ParseDuration(getEnv("ESCROW_POLL_INTERVAL", "15s"))
	if err != nil {
		return nil, fmt.Errorf("ESCROW_POLL_INTERVAL: %w", err)
	}
	cfg.Escrow.PollInterval = interval

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if len(c.Auth.Secret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 bytes")
	}
	if c.Auth.ServiceToken == "" {
		return fmt.Errorf("SETTLEMENT_SERVICE_TOKEN environment variable not set")
	}
	if c.Settlement.FeePercent < 0 || c.Settlement.FeePercent > 100 {
		return fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100, got %d", c.Settlement.FeePercent)
	}
	if c.Escrow.PollInterval <= 0 {
		return fmt.Errorf("ESCROW_POLL_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
