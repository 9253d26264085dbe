package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/odtboun/River/core/db"
)

type Config struct {
	OTel     OTelConfig
	Ledger   LedgerConfig
	Wallet   WalletConfig
	Cache    CacheConfig
	Sessions SessionConfig
	Env      string
	Port     string
	// PublicURL is the origin used when building shareable candidate links.
	PublicURL string
	NodeID    int64
	DB        db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type LedgerConfig struct {
	URL          string
	TEEURL       string
	PollInterval time.Duration
	Timeout      time.Duration
}

type WalletConfig struct {
	// SignerURL points at an external wallet bridge. Empty disables
	// external identities; the local fallback identity always works.
	SignerURL string
}

type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

type SessionConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	CookieSecure  bool
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
)

// Load loads configuration from environment variables.
// In development, it loads from .env.<service> and falls back to .env.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("RIVER_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:       getEnv("RIVER_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		PublicURL: strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		NodeID:    getEnvInt64("NODE_ID", 1),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", "sqlite://river.db"),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "river"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Ledger: LedgerConfig{
			URL:          getEnv("LEDGER_URL", ""),
			TEEURL:       getEnv("TEE_URL", ""),
			PollInterval: getEnvDuration("POLL_INTERVAL", 5*time.Second),
			Timeout:      getEnvDuration("LEDGER_TIMEOUT", 15*time.Second),
		},
		Wallet: WalletConfig{
			SignerURL: getEnv("WALLET_SIGNER_URL", ""),
		},
		Cache: CacheConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			TTL:      getEnvDuration("LEDGER_CACHE_TTL", 2*time.Second),
		},
		Sessions: SessionConfig{
			IdleTTL:       getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		},
	}
	cfg.Sessions.CookieSecure = cfg.IsProduction()

	if cfg.Ledger.URL == "" {
		return Config{}, fmt.Errorf("LEDGER_URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.Ledger.URL); err != nil {
		return Config{}, fmt.Errorf("LEDGER_URL is invalid: %w", err)
	}
	if cfg.Ledger.PollInterval <= 0 {
		return Config{}, fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if cfg.Cache.Enabled() && cfg.Cache.TTL >= cfg.Ledger.PollInterval {
		return Config{}, fmt.Errorf("LEDGER_CACHE_TTL must be shorter than POLL_INTERVAL")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LedgerConfig) TEEEnabled() bool {
	return c.TEEURL != ""
}

func (c WalletConfig) Enabled() bool {
	return c.SignerURL != ""
}

func (c CacheConfig) Enabled() bool {
	return c.RedisURL != "" && c.TTL > 0
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
