// Package config provides configuration management for the application.
//
// Values are resolved in order: built-in defaults, an optional YAML file
// (with ${VAR} and ${VAR:-default} expansion), then environment variables.
// A .env file in the working directory is loaded into the environment
// first without overriding variables that are already set.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at a YAML file.
const EnvConfigPath = "ZHENGHE_CONFIG"

// defaultConfigPaths are tried in order when EnvConfigPath is unset.
var defaultConfigPaths = []string{"config.yaml", "config/config.yaml"}

// Config holds the application configuration
type Config struct {
	API        APIConfig        `yaml:"api"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LogConfig        `yaml:"logging"`
	Cache      CacheConfig      `yaml:"cache"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// APIConfig describes the upstream chat-completion API.
type APIConfig struct {
	// APIKey is sent as a bearer token; commands that call the API require it
	APIKey string `yaml:"api_key"`
	// BaseURL has endpoints such as /models appended verbatim
	BaseURL string `yaml:"base_url" validate:"required,url"`
	// Model is used for chat turns when the caller names none
	Model string `yaml:"model" validate:"required"`
	// DefaultMaxTokens applies when a call omits an explicit limit
	DefaultMaxTokens int `yaml:"default_max_tokens" validate:"gt=0"`
	// MaxRetries bounds retries of connection-level failures
	MaxRetries int `yaml:"max_retries" validate:"gte=0"`
}

// HTTPConfig holds transport timeouts in seconds.
type HTTPConfig struct {
	ConnectTimeout int `yaml:"connect_timeout" validate:"gt=0"`
	ReadTimeout    int `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout   int `yaml:"write_timeout" validate:"gt=0"`
}

// ConnectTimeoutDuration returns ConnectTimeout as a time.Duration.
func (h HTTPConfig) ConnectTimeoutDuration() time.Duration {
	return time.Duration(h.ConnectTimeout) * time.Second
}

// ReadTimeoutDuration returns ReadTimeout as a time.Duration.
func (h HTTPConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns WriteTimeout as a time.Duration.
func (h HTTPConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
	// File additionally writes JSON logs to a rotating file when set
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// CacheConfig configures the models listing cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type" validate:"oneof=local redis"`
	// Dir holds local cache files
	Dir string `yaml:"dir"`
	// TTL in seconds; 0 keeps local entries forever
	TTL   int         `yaml:"ttl" validate:"gte=0"`
	Redis RedisConfig `yaml:"redis"`
}

// TTLDuration returns TTL as a time.Duration.
func (c CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// RedisConfig holds the Redis connection for the redis cache type.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// TranscriptConfig configures conversation persistence.
type TranscriptConfig struct {
	Enabled bool `yaml:"enabled"`
	// RetentionDays deletes older entries; 0 keeps everything
	RetentionDays int `yaml:"retention_days" validate:"gte=0"`
}

// StorageConfig selects the database behind transcripts.
type StorageConfig struct {
	Type       string           `yaml:"type" validate:"oneof=sqlite postgresql mongodb"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns" validate:"gte=0"`
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port" validate:"required,numeric"`
	// MasterKey, when set, is required as a bearer token on /v1 routes
	MasterKey string `yaml:"master_key"`
	// BodySizeLimit caps request bodies, e.g. "1M"
	BodySizeLimit string `yaml:"body_size_limit"`
}

// MetricsConfig controls the Prometheus endpoint of the HTTP server.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint" validate:"startswith=/"`
}

// buildDefaultConfig returns the configuration used when nothing is set.
func buildDefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:          "https://api.deepseek.com",
			Model:            "deepseek-chat",
			DefaultMaxTokens: 50,
			MaxRetries:       2,
		},
		HTTP: HTTPConfig{
			ConnectTimeout: 60,
			ReadTimeout:    90,
			WriteTimeout:   60,
		},
		Logging: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Cache: CacheConfig{
			Type: "local",
			Dir:  ".cache",
			TTL:  3600,
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: "data/zhenghe.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "zhenghe"},
		},
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: "1M",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// Load reads configuration from .env, the YAML file (if any) and the
// environment, then validates the result.
func Load() (*Config, error) {
	// Ignore error if .env file doesn't exist
	_ = godotenv.Load()

	path := os.Getenv(EnvConfigPath)
	if path == "" {
		for _, candidate := range defaultConfigPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := buildDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Cache.Enabled && c.Cache.Type == "redis" && c.Cache.Redis.URL == "" {
		return errors.New("invalid configuration: cache type redis requires REDIS_URL")
	}
	if c.Transcript.Enabled {
		switch {
		case c.Storage.Type == "postgresql" && c.Storage.PostgreSQL.URL == "":
			return errors.New("invalid configuration: postgresql storage requires POSTGRES_URL")
		case c.Storage.Type == "mongodb" && c.Storage.MongoDB.URL == "":
			return errors.New("invalid configuration: mongodb storage requires MONGODB_URL")
		}
	}
	return nil
}

// envPattern matches ${VAR} and ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} with the value of VAR and ${VAR:-default}
// with the value or default when VAR is unset or empty. Placeholders
// without a default whose variable is unset or empty are left intact.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if parts[2] != "" {
			return parts[3]
		}
		return match
	})
}

// applyEnvOverrides overwrites fields whose environment variable is set.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = b
		}
	}

	str("DEEPSEEK_API_KEY", &cfg.API.APIKey)
	str("DEEPSEEK_BASE_URL", &cfg.API.BaseURL)
	str("DEEPSEEK_MODEL", &cfg.API.Model)
	num("DEFAULT_MAX_TOKENS", &cfg.API.DefaultMaxTokens)
	num("MAX_RETRIES", &cfg.API.MaxRetries)

	num("HTTP_CONNECT_TIMEOUT", &cfg.HTTP.ConnectTimeout)
	num("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	num("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	str("LOG_FILE", &cfg.Logging.File)

	flag("CACHE_ENABLED", &cfg.Cache.Enabled)
	str("CACHE_TYPE", &cfg.Cache.Type)
	str("CACHE_DIR", &cfg.Cache.Dir)
	num("CACHE_TTL", &cfg.Cache.TTL)
	str("REDIS_URL", &cfg.Cache.Redis.URL)

	flag("TRANSCRIPT_ENABLED", &cfg.Transcript.Enabled)
	num("TRANSCRIPT_RETENTION_DAYS", &cfg.Transcript.RetentionDays)

	str("STORAGE_TYPE", &cfg.Storage.Type)
	str("SQLITE_PATH", &cfg.Storage.SQLite.Path)
	str("POSTGRES_URL", &cfg.Storage.PostgreSQL.URL)
	num("POSTGRES_MAX_CONNS", &cfg.Storage.PostgreSQL.MaxConns)
	str("MONGODB_URL", &cfg.Storage.MongoDB.URL)
	str("MONGODB_DATABASE", &cfg.Storage.MongoDB.Database)

	str("PORT", &cfg.Server.Port)
	str("ZHENGHE_MASTER_KEY", &cfg.Server.MasterKey)
	str("BODY_SIZE_LIMIT", &cfg.Server.BodySizeLimit)
	flag("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)

	return errors.Join(errs...)
}
