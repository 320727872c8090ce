package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port        int
	DatabaseURL string
	Backend     string // postgres or memory
	LogLevel    string

	SchedulerInterval    time.Duration
	SchedulerConcurrency int
	BidQueueSize         int
	BidWorkerIdle        time.Duration

	JWTSecret string

	GatewayBaseURL        string // empty selects the sandbox gateway
	GatewayAPIKey         string
	GatewayCallbackSecret string
	GatewayReturnURL      string

	NotifyWebhookURL   string
	CORSAllowedOrigins []string
}

func Load() *Config {
	return &Config{
		Port:                  getEnvInt("PORT", 8080),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		Backend:               getEnv("LEDGER_BACKEND", BackendPostgres),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		SchedulerInterval:     getEnvDuration("SCHEDULER_INTERVAL", 60*time.Second),
		SchedulerConcurrency:  getEnvInt("SCHEDULER_CONCURRENCY", 8),
		BidQueueSize:          getEnvInt("BID_QUEUE_SIZE", 256),
		BidWorkerIdle:         getEnvDuration("BID_WORKER_IDLE", 5*time.Minute),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		GatewayBaseURL:        getEnv("GATEWAY_BASE_URL", ""),
		GatewayAPIKey:         getEnv("GATEWAY_API_KEY", ""),
		GatewayCallbackSecret: getEnv("GATEWAY_CALLBACK_SECRET", ""),
		GatewayReturnURL:      getEnv("GATEWAY_RETURN_URL", ""),
		NotifyWebhookURL:      getEnv("NOTIFY_WEBHOOK_URL", ""),
		CORSAllowedOrigins:    getEnvList("CORS_ALLOWED_ORIGINS"),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.Backend))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.SchedulerInterval <= 0 {
		errs = append(errs, errors.New("SCHEDULER_INTERVAL must be positive"))
	}
	if c.SchedulerConcurrency <= 0 {
		errs = append(errs, errors.New("SCHEDULER_CONCURRENCY must be positive"))
	}
	if c.BidQueueSize <= 0 {
		errs = append(errs, errors.New("BID_QUEUE_SIZE must be positive"))
	}
	if c.BidWorkerIdle <= 0 {
		errs = append(errs, errors.New("BID_WORKER_IDLE must be positive"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.GatewayBaseURL != "" && (c.GatewayAPIKey == "" || c.GatewayCallbackSecret == "") {
		errs = append(errs, errors.New("GATEWAY_API_KEY and GATEWAY_CALLBACK_SECRET are required with GATEWAY_BASE_URL"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Addr() string {
	return "0.0.0.0:" + strconv.Itoa(c.Port)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
