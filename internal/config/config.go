package config

import (
	"os"
	"strconv"
	"time"

	"answergate/domain/verdict"
	"answergate/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Oracle   OracleConfig
	Store    StoreConfig
	Database DatabaseConfig
	Server   ServerConfig
	Gate     GateConfig
	OpenAI   OpenAIConfig
}

// OracleConfig holds scoring oracle access settings
type OracleConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	QualityPreset string
	Metrics       []string
	Timeout       time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
}

// StoreConfig selects and tunes the remediation store backend
type StoreConfig struct {
	// Backend is one of "postgres", "sqlite", "remote", "memory".
	Backend string
	// ProjectID identifies the knowledge base on the remote backend.
	ProjectID string
	// RemoteBaseURL and RemoteAPIKey configure the remote backend.
	RemoteBaseURL string
	RemoteAPIKey  string
	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string
	// SimilarityThreshold is the default match cutoff for in-house backends.
	SimilarityThreshold float64
	Timeout             time.Duration
}

// DatabaseConfig holds postgres connection settings
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// GateConfig holds verdict policy settings
type GateConfig struct {
	// ThresholdsFile points at a JSON rule table; empty uses defaults.
	ThresholdsFile string
	// FailMode resolves oracle failures and empty score sets.
	FailMode verdict.FallbackMode
	// FallbackAnswer substitutes guardrailed responses.
	FallbackAnswer string
}

// OpenAIConfig holds settings for the optional generation wrapper
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float32
}

// Load reads configuration from environment variables and validates it.
// Validation failures are fatal at startup; nothing here is re-checked per
// request.
func Load() (*Config, error) {
	cfg := &Config{
		Oracle: OracleConfig{
			APIKey:        os.Getenv("CODEX_API_KEY"),
			BaseURL:       getEnvOrDefault("CODEX_BASE_URL", "https://api.cleanlab.ai/api"),
			Model:         getEnvOrDefault("CODEX_MODEL", "gpt-4.1-mini"),
			QualityPreset: getEnvOrDefault("CODEX_QUALITY_PRESET", "medium"),
			Metrics:       nil, // oracle default set
			Timeout:       getEnvDurationOrDefault("ORACLE_TIMEOUT", 30*time.Second),
			MaxRetries:    getEnvIntOrDefault("ORACLE_MAX_RETRIES", 2),
			RetryBackoff:  getEnvDurationOrDefault("ORACLE_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Store: StoreConfig{
			Backend:             getEnvOrDefault("STORE_BACKEND", "postgres"),
			ProjectID:           os.Getenv("CODEX_PROJECT_ID"),
			RemoteBaseURL:       getEnvOrDefault("CODEX_BASE_URL", "https://api.cleanlab.ai/api"),
			RemoteAPIKey:        os.Getenv("CODEX_API_KEY"),
			SQLitePath:          getEnvOrDefault("STORE_SQLITE_PATH", "answergate.db"),
			SimilarityThreshold: getEnvFloatOrDefault("STORE_SIMILARITY_THRESHOLD", 0.6),
			Timeout:             getEnvDurationOrDefault("STORE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Gate: GateConfig{
			ThresholdsFile: os.Getenv("GATE_THRESHOLDS_FILE"),
			FailMode:       verdict.FallbackMode(getEnvOrDefault("GATE_FAIL_MODE", string(verdict.FailOpen))),
			FallbackAnswer: os.Getenv("GATE_FALLBACK_ANSWER"),
		},
		OpenAI: OpenAIConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Model:       getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: float32(getEnvFloatOrDefault("OPENAI_TEMPERATURE", 0)),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Oracle.APIKey == "" {
		return errors.ConfigInvalid("CODEX_API_KEY is required")
	}
	if cfg.Gate.FailMode != verdict.FailOpen && cfg.Gate.FailMode != verdict.FailClosed {
		return errors.ConfigInvalid("GATE_FAIL_MODE must be \"open\" or \"closed\"")
	}
	if cfg.Oracle.MaxRetries < 0 {
		return errors.ConfigInvalid("ORACLE_MAX_RETRIES must be >= 0")
	}
	if cfg.Store.SimilarityThreshold <= 0 || cfg.Store.SimilarityThreshold > 1 {
		return errors.ConfigInvalid("STORE_SIMILARITY_THRESHOLD must be in (0,1]")
	}
	switch cfg.Store.Backend {
	case "postgres":
		if cfg.Database.URL == "" {
			return errors.ConfigInvalid("DATABASE_URL is required for the postgres store backend")
		}
	case "remote":
		if cfg.Store.ProjectID == "" {
			return errors.ConfigInvalid("CODEX_PROJECT_ID is required for the remote store backend")
		}
	case "sqlite", "memory":
	default:
		return errors.ConfigInvalid("STORE_BACKEND must be one of postgres, sqlite, remote, memory")
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
