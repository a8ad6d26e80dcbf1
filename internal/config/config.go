package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName          = "walletsync"
	defaultAppEnv           = "development"
	defaultPort             = "8090"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultPollInterval     = 60 * time.Second
	defaultViewTTL          = 5 * time.Minute
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultLoginRateLimit   = 5
	pollSecondsEnvVar       = "POLL_INTERVAL_SECONDS"
	pollDurationEnvVar      = "POLL_INTERVAL"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
	requestTimeoutEnvVar    = "REQUEST_TIMEOUT"
	viewTTLEnvVar           = "VIEW_TTL"
	idempotencyTTLEnvVar    = "IDEMPOTENCY_TTL"
	loginRateLimitEnvVar    = "LOGIN_RATE_LIMIT"
	transferLockEnvVar      = "TRANSFER_LOCK"
	ledgerURLEnvVar         = "LEDGER_URL"
	controlPINHashEnvVar    = "CONTROL_PIN_HASH"
	instanceNameEnvVar      = "INSTANCE_NAME"
	defaultInstanceHostname = "local"
)

// Config captures the client runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	InstanceName   string
	LedgerURL      string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	TransferLock   bool
	RedisURL       string
	ViewTTL        time.Duration
	DatabaseURL    string
	ControlPINHash string
	IdempotencyTTL time.Duration
	LoginRateLimit int
	ShutdownPeriod time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		InstanceName:   getEnv(instanceNameEnvVar, hostname()),
		LedgerURL:      strings.TrimRight(os.Getenv(ledgerURLEnvVar), "/"),
		PollInterval:   defaultPollInterval,
		TransferLock:   true,
		RedisURL:       os.Getenv("REDIS_URL"),
		ViewTTL:        defaultViewTTL,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ControlPINHash: os.Getenv(controlPINHashEnvVar),
		IdempotencyTTL: defaultIdempotencyTTL,
		LoginRateLimit: defaultLoginRateLimit,
		ShutdownPeriod: defaultShutdownDelay,
	}

	var err error
	if cfg.PollInterval, err = durationFromEnv(pollSecondsEnvVar, pollDurationEnvVar, cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(requestTimeoutEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", requestTimeoutEnvVar, err)
		}
		cfg.RequestTimeout = d
	}

	if v := os.Getenv(viewTTLEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", viewTTLEnvVar, err)
		}
		cfg.ViewTTL = d
	}

	if v := os.Getenv(idempotencyTTLEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idempotencyTTLEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	if v := os.Getenv(loginRateLimitEnvVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", loginRateLimitEnvVar, err)
		}
		cfg.LoginRateLimit = n
	}

	if v := os.Getenv(transferLockEnvVar); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", transferLockEnvVar, err)
		}
		cfg.TransferLock = b
	}

	if cfg.LedgerURL == "" {
		return Config{}, fmt.Errorf("%s must be set", ledgerURLEnvVar)
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// durationFromEnv prefers the integer seconds variable over the Go duration one.
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

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return defaultInstanceHostname
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// IsDev reports whether the client runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
