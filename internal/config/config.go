package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration

	OTPLength        int
	OTPTTL           time.Duration
	OTPMaxAttempts   int
	OTPRequestWindow time.Duration
	OTPRequestMax    int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	CatalogCacheTTL     time.Duration
	CatalogDefaultPage  int
	CatalogDefaultLimit int
	CatalogMaxLimit     int

	IdempotencyTTL  time.Duration
	CheckoutLockTTL time.Duration

	RateLimitPeriod   time.Duration
	RateLimitRequests int64

	WorkerConcurrency int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		JWTSecret:      k.String("JWT_SECRET"),
		JWTIssuer:      valueOrDefault(k.String("JWT_ISSUER"), "bazaar-api"),
		JWTAudience:    valueOrDefault(k.String("JWT_AUDIENCE"), "bazaar-storefront"),
		AccessTokenTTL: parseDuration(k.String("ACCESS_TOKEN_TTL"), "168h"),

		OTPLength:        intOrDefault(k.Int("OTP_LENGTH"), 6),
		OTPTTL:           parseDuration(k.String("OTP_TTL"), "5m"),
		OTPMaxAttempts:   intOrDefault(k.Int("OTP_MAX_ATTEMPTS"), 5),
		OTPRequestWindow: parseDuration(k.String("OTP_REQUEST_WINDOW"), "1h"),
		OTPRequestMax:    intOrDefault(k.Int("OTP_REQUEST_MAX"), 5),

		SMTPHost:     k.String("SMTP_HOST"),
		SMTPPort:     intOrDefault(k.Int("SMTP_PORT"), 587),
		SMTPUsername: k.String("SMTP_USERNAME"),
		SMTPPassword: k.String("SMTP_PASSWORD"),
		SMTPFrom:     k.String("SMTP_FROM"),

		SupabaseURL:    strings.TrimRight(k.String("SUPABASE_URL"), "/"),
		SupabaseKey:    k.String("SUPABASE_SERVICE_KEY"),
		SupabaseBucket: valueOrDefault(k.String("SUPABASE_BUCKET"), "product-images"),

		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		CatalogDefaultPage:  intOrDefault(k.Int("CATALOG_DEFAULT_PAGE"), 1),
		CatalogDefaultLimit: intOrDefault(k.Int("CATALOG_DEFAULT_LIMIT"), 20),
		CatalogMaxLimit:     intOrDefault(k.Int("CATALOG_MAX_LIMIT"), 100),

		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CheckoutLockTTL: parseDuration(k.String("CHECKOUT_LOCK_TTL"), "15s"),

		RateLimitPeriod:   parseDuration(k.String("RATE_LIMIT_PERIOD"), "1m"),
		RateLimitRequests: int64(intOrDefault(k.Int("RATE_LIMIT_REQUESTS"), 300)),

		WorkerConcurrency: intOrDefault(k.Int("WORKER_CONCURRENCY"), 10),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
