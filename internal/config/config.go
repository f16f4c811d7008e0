// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string
	FrontendURL string
	LogLevel    string

	Store             string
	DBPath            string
	FirebaseProjectID string

	Agent           AgentConfig
	TTS             TTSConfig
	Timeout         TimeoutConfig
	RateLimit       RateLimitConfig
	Reminder        ReminderConfig
	ConversationLog ConversationLogConfig
}

// AgentConfig configures the conversational model.
type AgentConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// TTSConfig configures Google Cloud Text-to-Speech.
type TTSConfig struct {
	APIKey string
	Voice  string
}

// TimeoutConfig bounds collaborator calls.
type TimeoutConfig struct {
	Converse    time.Duration
	Playback    time.Duration
	HealthCheck time.Duration
	Shutdown    time.Duration
}

// RateLimitConfig holds per-user request budgets, in requests per minute.
type RateLimitConfig struct {
	GeneralPerMinute  int
	UpstreamPerMinute int
}

// ReminderConfig controls the daily reminder worker.
type ReminderConfig struct {
	Enabled  bool
	Interval time.Duration
	TimeZone string
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		GRPCPort:          getEnv("GRPC_PORT", "9090"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Store:             strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
		DBPath:            getEnv("DB_PATH", "./data/journal.db"),
		FirebaseProjectID: getEnv("FIREBASE_PROJECT_ID", ""),
		Agent: AgentConfig{
			APIKey:    getEnv("ANTHROPIC_API_KEY", ""),
			BaseURL:   getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1/"),
			Model:     getEnv("ANTHROPIC_MODEL", "claude-opus-4-5"),
			MaxTokens: getEnvInt("ANTHROPIC_MAX_TOKENS", 1024),
		},
		TTS: TTSConfig{
			APIKey: getEnv("GOOGLE_TTS_API_KEY", ""),
			Voice:  getEnv("GOOGLE_TTS_VOICE", "en-US-Neural2-F"),
		},
		Timeout: TimeoutConfig{
			Converse:    getEnvDuration("CONVERSE_TIMEOUT", 30*time.Second),
			Playback:    getEnvDuration("PLAYBACK_TIMEOUT", 60*time.Second),
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			Shutdown:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			GeneralPerMinute:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
			UpstreamPerMinute: getEnvInt("UPSTREAM_RATE_LIMIT_PER_MINUTE", 20),
		},
		Reminder: ReminderConfig{
			Enabled:  getEnvBool("REMINDERS_ENABLED", true),
			Interval: getEnvDuration("REMINDER_INTERVAL", 30*time.Second),
			TimeZone: getEnv("REMINDER_TZ", "Local"),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
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
	if c.GRPCPort == c.Port {
		return fmt.Errorf("GRPC_PORT must differ from PORT")
	}
	switch c.Store {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StoreFirestore:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required when STORE_BACKEND=firestore")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreSQLite, StoreFirestore, c.Store)
	}
	if c.Timeout.Converse <= 0 {
		return fmt.Errorf("CONVERSE_TIMEOUT must be > 0")
	}
	if c.Timeout.Playback <= 0 {
		return fmt.Errorf("PLAYBACK_TIMEOUT must be > 0")
	}
	if c.RateLimit.GeneralPerMinute <= 0 || c.RateLimit.UpstreamPerMinute <= 0 {
		return fmt.Errorf("rate limits must be > 0")
	}
	if c.Reminder.Enabled && c.Reminder.Interval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be > 0")
	}
	if _, err := c.ReminderLocation(); err != nil {
		return fmt.Errorf("REMINDER_TZ: %w", err)
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS allow-list.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

// ReminderLocation resolves the reminder time zone.
func (c *Config) ReminderLocation() (*time.Location, error) {
	if c.Reminder.TimeZone == "" || c.Reminder.TimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Reminder.TimeZone)
}

// GeorgiaConfigured reports whether the model credential is set.
func (c *Config) GeorgiaConfigured() bool { return strings.TrimSpace(c.Agent.APIKey) != "" }

// TTSConfigured reports whether the TTS credential is set.
func (c *Config) TTSConfigured() bool { return strings.TrimSpace(c.TTS.APIKey) != "" }

// FirestoreConfigured reports whether a Firebase project is set.
func (c *Config) FirestoreConfigured() bool { return c.FirebaseProjectID != "" }

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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

// getEnvDuration accepts Go durations ("45s") or bare seconds ("45").
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
