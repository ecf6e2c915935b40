// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Backend     BackendConfig
	Poll        PollConfig
	Inbox       InboxConfig
	Events      EventsConfig
	Audit       AuditConfig
	Timeout     TimeoutConfig
	Retry       RetryConfig
}

// BackendConfig describes the integration backend reached over HTTP.
type BackendConfig struct {
	URL        string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// StatusGRPCAddr switches the status source to gRPC when set.
	StatusGRPCAddr string
}

// PollConfig controls the live status poller.
type PollConfig struct {
	Interval         time.Duration
	FailureThreshold int
	DashboardRoute   string
}

// InboxConfig controls the conversation list.
type InboxConfig struct {
	MessageLimit int
}

// EventsConfig controls the optional AMQP event publisher.
type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

// AuditConfig controls retention of the action audit trail.
type AuditConfig struct {
	Retention     time.Duration
	PruneInterval time.Duration
}

// TimeoutConfig groups request-scoped timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Shutdown    time.Duration
}

// RetryConfig groups retry settings for the local store.
type RetryConfig struct {
	DatabaseMaxRetries     int
	DatabaseRetryBaseDelay time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/pagedesk.db"),
		Backend: BackendConfig{
			URL:            strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
			APIKey:         getEnv("BACKEND_API_KEY", ""),
			APISecret:      getEnv("BACKEND_API_SECRET", ""),
			Timeout:        getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),
			MaxRetries:     getEnvInt("BACKEND_MAX_RETRIES", 2),
			RetryDelay:     getEnvDuration("BACKEND_RETRY_DELAY", 200*time.Millisecond),
			StatusGRPCAddr: getEnv("STATUS_GRPC_ADDR", ""),
		},
		Poll: PollConfig{
			Interval:         getEnvDuration("POLL_INTERVAL", 30*time.Second),
			FailureThreshold: getEnvInt("POLL_FAILURE_THRESHOLD", 3),
			DashboardRoute:   getEnv("DASHBOARD_ROUTE", "flow_diagram"),
		},
		Inbox: InboxConfig{
			MessageLimit: getEnvInt("MESSAGE_LIMIT", 50),
		},
		Events: EventsConfig{
			AMQPURL:  getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "pagedesk.events"),
		},
		Audit: AuditConfig{
			Retention:     getEnvDuration("AUDIT_RETENTION", 30*24*time.Hour),
			PruneInterval: getEnvDuration("AUDIT_PRUNE_INTERVAL", time.Hour),
		},
		Timeout: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			Shutdown:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Retry: RetryConfig{
			DatabaseMaxRetries:     getEnvInt("DB_MAX_RETRIES", 3),
			DatabaseRetryBaseDelay: getEnvDuration("DB_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("BACKEND_URL cannot be empty")
	}
	if _, err := url.ParseRequestURI(c.Backend.URL); err != nil {
		return fmt.Errorf("BACKEND_URL is not a valid URL: %w", err)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be > 0")
	}
	if c.Backend.MaxRetries < 0 {
		return fmt.Errorf("BACKEND_MAX_RETRIES must be >= 0")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if c.Poll.FailureThreshold <= 0 {
		return fmt.Errorf("POLL_FAILURE_THRESHOLD must be > 0")
	}
	if c.Inbox.MessageLimit <= 0 {
		return fmt.Errorf("MESSAGE_LIMIT must be > 0")
	}
	if c.Audit.Retention <= 0 || c.Audit.PruneInterval <= 0 {
		return fmt.Errorf("AUDIT_RETENTION and AUDIT_PRUNE_INTERVAL must be > 0")
	}
	if c.Retry.DatabaseMaxRetries <= 0 {
		return fmt.Errorf("DB_MAX_RETRIES must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("30s") or bare seconds ("30").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
