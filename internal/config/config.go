// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Feedback backends.
const (
	BackendGemini = "gemini"
	BackendGRPC   = "grpc"
	BackendNone   = "none"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	CatalogPath string
	LogLevel    slog.Level
	Cooldown    time.Duration
	Feedback    FeedbackConfig
	Journal     JournalConfig
	MQTT        MQTTConfig
	Retention   RetentionConfig
}

// FeedbackConfig selects and configures the posture feedback backend.
type FeedbackConfig struct {
	Backend        string
	GeminiAPIKey   string
	GeminiModel    string
	AgentAddr      string
	RequestTimeout time.Duration
}

// JournalConfig controls NDJSON feedback journaling.
type JournalConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// MQTTConfig configures the optional studio speaker bridge.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// RetentionConfig controls verdict history pruning.
type RetentionConfig struct {
	History  time.Duration
	Interval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	apiKey := getEnv("GEMINI_API_KEY", getEnv("API_KEY", ""))
	agentAddr := getEnv("AGENT_ADDR", "")

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/yogguru.db"),
		CatalogPath: getEnv("CATALOG_PATH", ""),
		LogLevel:    getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		Cooldown:    getEnvDuration("FEEDBACK_COOLDOWN", 7*time.Second),
		Feedback: FeedbackConfig{
			Backend:        strings.ToLower(getEnv("FEEDBACK_BACKEND", defaultBackend(apiKey, agentAddr))),
			GeminiAPIKey:   apiKey,
			GeminiModel:    getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
			AgentAddr:      agentAddr,
			RequestTimeout: getEnvDuration("FEEDBACK_TIMEOUT", 30*time.Second),
		},
		Journal: JournalConfig{
			Enabled:   getEnvBool("FEEDBACK_JOURNAL_ENABLED", false),
			Dir:       getEnv("FEEDBACK_JOURNAL_DIR", "./data/logs/feedback"),
			QueueSize: getEnvInt("FEEDBACK_JOURNAL_QUEUE_SIZE", 1000),
		},
		MQTT: MQTTConfig{
			Broker:      getEnv("MQTT_BROKER", ""),
			ClientID:    getEnv("MQTT_CLIENT_ID", "yogguru-trainer"),
			TopicPrefix: strings.TrimSuffix(getEnv("MQTT_TOPIC_PREFIX", "yogguru/studio"), "/"),
		},
		Retention: RetentionConfig{
			History:  getEnvDuration("VERDICT_HISTORY", 90*24*time.Hour),
			Interval: getEnvDuration("RETENTION_INTERVAL", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaultBackend(apiKey, agentAddr string) string {
	switch {
	case apiKey != "":
		return BackendGemini
	case agentAddr != "":
		return BackendGRPC
	default:
		return BackendNone
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("FEEDBACK_COOLDOWN must be > 0")
	}
	if c.Feedback.RequestTimeout <= 0 {
		return fmt.Errorf("FEEDBACK_TIMEOUT must be > 0")
	}
	switch c.Feedback.Backend {
	case BackendGemini:
		if c.Feedback.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini backend")
		}
	case BackendGRPC:
		if c.Feedback.AgentAddr == "" {
			return fmt.Errorf("AGENT_ADDR is required for the grpc backend")
		}
	case BackendNone:
	default:
		return fmt.Errorf("unknown FEEDBACK_BACKEND %q", c.Feedback.Backend)
	}
	if c.Journal.Enabled {
		if c.Journal.Dir == "" {
			return fmt.Errorf("FEEDBACK_JOURNAL_DIR cannot be empty")
		}
		if c.Journal.QueueSize <= 0 {
			return fmt.Errorf("FEEDBACK_JOURNAL_QUEUE_SIZE must be > 0")
		}
	}
	if c.MQTT.Enabled() && c.MQTT.TopicPrefix == "" {
		return fmt.Errorf("MQTT_TOPIC_PREFIX cannot be empty")
	}
	if c.Retention.History < 0 {
		return fmt.Errorf("VERDICT_HISTORY cannot be negative")
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
