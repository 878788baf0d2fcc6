package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string
	LogLevel string

	DatabaseURL string

	SignBaseURL      string
	TokenIssuer      string
	TokenAudience    string
	TokenSecret      string
	TokenTTL         time.Duration
	SessionTTL       time.Duration
	SessionRetention time.Duration

	RedisAddr      string
	RedisPassword  string
	StatusCacheTTL time.Duration

	StatusRateLimitPerMin int
	APIRateLimitPerMin    int
	RateLimitProbeBypass  bool
	TrustedMonitorCIDRs   []string

	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveUseSSL    bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		SignBaseURL:           getEnv("SIGN_BASE_URL", "http://localhost:8080"),
		TokenIssuer:           getEnv("SIGN_TOKEN_ISSUER", "qrsignature-service"),
		TokenAudience:         getEnv("SIGN_TOKEN_AUDIENCE", "qrsignature-signer"),
		TokenSecret:           os.Getenv("SIGN_TOKEN_SECRET"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		StatusRateLimitPerMin: getEnvInt("STATUS_RATE_LIMIT_PER_MIN", 300),
		APIRateLimitPerMin:    getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		RateLimitProbeBypass:  getEnvBool("RATE_LIMIT_PROBE_BYPASS", true),
		TrustedMonitorCIDRs:   getEnvList("TRUSTED_MONITOR_CIDRS"),
		ArchiveEndpoint:       os.Getenv("ARCHIVE_ENDPOINT"),
		ArchiveAccessKey:      os.Getenv("ARCHIVE_ACCESS_KEY"),
		ArchiveSecretKey:      os.Getenv("ARCHIVE_SECRET_KEY"),
		ArchiveBucket:         os.Getenv("ARCHIVE_BUCKET"),
		ArchiveUseSSL:         getEnvBool("ARCHIVE_USE_SSL", true),
	}

	tokenTTL, err := time.ParseDuration(getEnv("SIGN_TOKEN_TTL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("parse SIGN_TOKEN_TTL: %w", err)
	}
	cfg.TokenTTL = tokenTTL

	sessionTTL, err := time.ParseDuration(getEnv("SIGN_SESSION_TTL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("parse SIGN_SESSION_TTL: %w", err)
	}
	cfg.SessionTTL = sessionTTL

	retention, err := time.ParseDuration(getEnv("SIGN_SESSION_RETENTION", "720h"))
	if err != nil {
		return nil, fmt.Errorf("parse SIGN_SESSION_RETENTION: %w", err)
	}
	cfg.SessionRetention = retention

	statusCacheTTL, err := time.ParseDuration(getEnv("STATUS_CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("parse STATUS_CACHE_TTL: %w", err)
	}
	cfg.StatusCacheTTL = statusCacheTTL

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.TokenSecret) < 32 {
		errs = append(errs, "SIGN_TOKEN_SECRET must be at least 32 chars")
	}
	if c.TokenTTL <= 0 || c.TokenTTL > 24*time.Hour {
		errs = append(errs, "SIGN_TOKEN_TTL must be between 1s and 24h")
	}
	if c.SessionTTL <= 0 || c.SessionTTL > 24*time.Hour {
		errs = append(errs, "SIGN_SESSION_TTL must be between 1s and 24h")
	}
	if c.SessionRetention < c.SessionTTL {
		errs = append(errs, "SIGN_SESSION_RETENTION must not be shorter than SIGN_SESSION_TTL")
	}
	if c.StatusCacheTTL < 0 {
		errs = append(errs, "STATUS_CACHE_TTL must be >= 0")
	}
	if c.StatusRateLimitPerMin <= 0 {
		errs = append(errs, "STATUS_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.ArchiveEnabled() {
		if c.ArchiveAccessKey == "" || c.ArchiveSecretKey == "" || c.ArchiveBucket == "" {
			errs = append(errs, "ARCHIVE_ACCESS_KEY, ARCHIVE_SECRET_KEY and ARCHIVE_BUCKET are required when ARCHIVE_ENDPOINT is set")
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ArchiveEnabled reports whether signed images should also be uploaded to
// object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveEndpoint != ""
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
