// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.lexbase/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Embedding: embedder model and client-side rate limiting
//   - Vector store: PostgreSQL + pgvector connection (see storage.go)
//   - Metadata store: MongoDB connection
//   - Knowledge base: document directory and search defaults
//   - Observability: OTLP tracing (see observability.go)
//
// Security: sensitive fields (passwords, API keys) are masked in
// MarshalJSON and String; the config directory uses 0750 permissions.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedRateLimit indicates the embedding rate limit is out of range.
	ErrInvalidEmbedRateLimit = errors.New("invalid embedding rate limit")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidMongoURL indicates the MongoDB connection URL is invalid.
	ErrInvalidMongoURL = errors.New("invalid MongoDB URL")

	// ErrInvalidMongoDatabase indicates the MongoDB database name is invalid.
	ErrInvalidMongoDatabase = errors.New("invalid MongoDB database name")

	// ErrInvalidSearchLimit indicates the default search limit is out of range.
	ErrInvalidSearchLimit = errors.New("invalid search limit")

	// ErrInvalidScoreThreshold indicates the score threshold is out of range.
	ErrInvalidScoreThreshold = errors.New("invalid score threshold")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions, which is
	// what the pgvector schema stores.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultDevPassword is the PostgreSQL password from docker-compose.yml.
	// Validation warns when it is still in use.
	DefaultDevPassword = "lexbase_dev_password"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON. When
// adding new sensitive fields, update MarshalJSON.
type Config struct {
	// Embedding configuration
	EmbedderModel  string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedRateLimit float64 `mapstructure:"embed_rate_limit" json:"embed_rate_limit"` // requests per second, 0 disables
	EmbedBurst     int     `mapstructure:"embed_burst" json:"embed_burst"`

	// Vector store configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Metadata store configuration
	MongoURL      string `mapstructure:"mongo_url" json:"mongo_url"` // SENSITIVE: may embed credentials, masked in MarshalJSON
	MongoDatabase string `mapstructure:"mongo_database" json:"mongo_database"`

	// Knowledge base configuration
	KnowledgeBaseDir string  `mapstructure:"knowledge_base_dir" json:"knowledge_base_dir"`
	SearchLimit      int     `mapstructure:"search_limit" json:"search_limit"`
	ScoreThreshold   float64 `mapstructure:"score_threshold" json:"score_threshold"`

	// Observability configuration (see observability.go)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".lexbase")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults(configDir)
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(configDir string) {
	// Embedding defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embed_rate_limit", 2.0)
	viper.SetDefault("embed_burst", 2)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "lexbase")
	viper.SetDefault("postgres_password", DefaultDevPassword)
	viper.SetDefault("postgres_db_name", "lexbase")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// MongoDB defaults
	viper.SetDefault("mongo_url", "mongodb://localhost:27017")
	viper.SetDefault("mongo_database", "lexbase")

	// Knowledge base defaults
	viper.SetDefault("knowledge_base_dir", filepath.Join(configDir, "knowledge"))
	viper.SetDefault("search_limit", 5)
	viper.SetDefault("score_threshold", 0.7)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.service_name", "lexbase")
	viper.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variable overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; Validate only
// checks its presence.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("mongo_url", "MONGO_URL")
	mustBind("knowledge_base_dir", "LEXBASE_KNOWLEDGE_DIR")
	mustBind("embedder_model", "LEXBASE_EMBEDDER_MODEL")
	mustBind("tracing.enabled", "LEXBASE_TRACING_ENABLED")
	mustBind("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid substring matches against the original secret.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 bytes or
// fewer are fully masked; longer ones keep the first and last 2 characters
// for debug utility. This defends against accidental logging, not against
// compromised logs.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking: PostgresPassword and MongoURL credentials here, Tracing.APIKey
// via TracingConfig.MarshalJSON.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.MongoURL = maskMongoURL(a.MongoURL)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
