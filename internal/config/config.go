package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "CongoLedger"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultGatewayBaseURL  = "https://api.paystack.co"
	defaultGatewayTimeout  = 15 * time.Second
	defaultRateLimit       = 30
	devJWTSecret           = "dev-only-jwt-secret"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	gatewayTimeoutEnvVar   = "GATEWAY_TIMEOUT"
)

// Fees are flat per-operation fees in minor units. The system retains them.
type Fees struct {
	Transfer     int64
	Withdrawal   int64
	BankTransfer int64
}

// Gateway configures the payment gateway collaborator.
type Gateway struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	Timeout     time.Duration
	// WebhookSecret signs inbound events; defaults to SecretKey.
	WebhookSecret string
}

// Enabled reports whether a real gateway is configured.
func (g Gateway) Enabled() bool {
	return g.SecretKey != ""
}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	RateLimit      int
	Gateway        Gateway
	Fees           Fees
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		RateLimit:      defaultRateLimit,
		Gateway: Gateway{
			BaseURL:     strings.TrimRight(getEnv("GATEWAY_BASE_URL", defaultGatewayBaseURL), "/"),
			SecretKey:   os.Getenv("GATEWAY_SECRET_KEY"),
			CallbackURL: os.Getenv("GATEWAY_CALLBACK_URL"),
			Timeout:     defaultGatewayTimeout,
		},
	}
	cfg.Gateway.WebhookSecret = getEnv("WEBHOOK_SECRET", cfg.Gateway.SecretKey)

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.Gateway.Timeout, err = durationFromEnv(gatewayTimeoutEnvVar+"_SECONDS", gatewayTimeoutEnvVar, cfg.Gateway.Timeout); err != nil {
		return Config{}, err
	}

	if cfg.Fees.Transfer, err = int64FromEnv("TRANSFER_FEE", 0); err != nil {
		return Config{}, err
	}
	if cfg.Fees.Withdrawal, err = int64FromEnv("WITHDRAWAL_FEE", 0); err != nil {
		return Config{}, err
	}
	if cfg.Fees.BankTransfer, err = int64FromEnv("BANK_TRANSFER_FEE", 0); err != nil {
		return Config{}, err
	}
	limit, err := int64FromEnv("RATE_LIMIT_PER_MINUTE", defaultRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimit = int(limit)

	if cfg.IsDev() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}
	if !cfg.Gateway.Enabled() {
		return Config{}, fmt.Errorf("GATEWAY_SECRET_KEY must be set")
	}

	return cfg, nil
}

// IsDev reports whether the process runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func int64FromEnv(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return n, nil
}
