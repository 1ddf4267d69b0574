package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/logging"
)

// Validation bounds.
const (
	MinConcurrentQueries = 1
	MaxConcurrentQueries = 50
	MinConnections       = 1
	MaxConnections       = 100
	MinSampleSize        = 1
	MaxSampleSize        = 10000
	MinQueryTimeoutSecs  = 1
	MaxQueryTimeoutSecs  = 3600
	MaxThrottleMS        = 60000
)

// Config holds all configuration for a collection run.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// The database URL carries credentials and must only come from the environment.
type Config struct {
	DatabaseURL string `yaml:"-" env:"DBSURVEYOR_DATABASE_URL"` // Secret - not in YAML
	Version     string `yaml:"-"`                               // Set at load time, not from config

	Connection ConnectionConfig `yaml:"connection"`
	Collection CollectionConfig `yaml:"collection"`
	Sampling   SamplingConfig   `yaml:"sampling"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ConnectionConfig is the credential-free description of a connection plus
// pool and timeout settings. Host, Port, Database and Username are filled in
// from the connection string by the adapter; there is deliberately no
// password field.
type ConnectionConfig struct {
	Host     string `yaml:"-"`
	Port     int    `yaml:"-"`
	Database string `yaml:"-"`
	Username string `yaml:"-"`

	ConnectTimeout     time.Duration `yaml:"connect_timeout" env:"DBSURVEYOR_CONNECT_TIMEOUT" env-default:"30s"`
	QueryTimeout       time.Duration `yaml:"query_timeout" env:"DBSURVEYOR_QUERY_TIMEOUT" env-default:"30s"`
	MaxConnections     int           `yaml:"max_connections" env:"DBSURVEYOR_MAX_CONNECTIONS" env-default:"10"`
	MinIdleConnections int           `yaml:"min_idle_connections" env:"DBSURVEYOR_MIN_IDLE_CONNECTIONS" env-default:"2"`
	IdleTimeout        time.Duration `yaml:"idle_timeout" env:"DBSURVEYOR_IDLE_TIMEOUT" env-default:"10m"`
	ReadOnly           bool          `yaml:"read_only" env:"DBSURVEYOR_READ_ONLY" env-default:"true"`
	ApplicationName    string        `yaml:"application_name" env:"DBSURVEYOR_APPLICATION_NAME" env-default:"dbsurveyor"`
}

// Redacted renders the connection identity for logs: user:****@host:port/db.
func (c ConnectionConfig) Redacted() string {
	var b strings.Builder
	if c.Username != "" {
		b.WriteString(c.Username)
		b.WriteString(":" + logging.MaskedPassword + "@")
	}
	b.WriteString(c.Host)
	if c.Port > 0 {
		b.WriteString(":" + strconv.Itoa(c.Port))
	}
	if c.Database != "" {
		if c.Host != "" || c.Port > 0 {
			b.WriteString("/")
		}
		b.WriteString(c.Database)
	}
	return b.String()
}

// WithEndpoint returns a copy carrying the connection identity parsed from a URL.
func (c ConnectionConfig) WithEndpoint(host string, port int, database, username string) ConnectionConfig {
	c.Host, c.Port, c.Database, c.Username = host, port, database, username
	return c
}

// CollectionConfig selects which object kinds are collected.
type CollectionConfig struct {
	IncludeSystemTables   bool `yaml:"include_system_tables" env:"DBSURVEYOR_INCLUDE_SYSTEM_TABLES" env-default:"false"`
	IncludeViews          bool `yaml:"include_views" env:"DBSURVEYOR_INCLUDE_VIEWS" env-default:"true"`
	IncludeProcedures     bool `yaml:"include_procedures" env:"DBSURVEYOR_INCLUDE_PROCEDURES" env-default:"true"`
	IncludeFunctions      bool `yaml:"include_functions" env:"DBSURVEYOR_INCLUDE_FUNCTIONS" env-default:"true"`
	IncludeTriggers       bool `yaml:"include_triggers" env:"DBSURVEYOR_INCLUDE_TRIGGERS" env-default:"true"`
	IncludeIndexes        bool `yaml:"include_indexes" env:"DBSURVEYOR_INCLUDE_INDEXES" env-default:"true"`
	IncludeConstraints    bool `yaml:"include_constraints" env:"DBSURVEYOR_INCLUDE_CONSTRAINTS" env-default:"true"`
	IncludeCustomTypes    bool `yaml:"include_custom_types" env:"DBSURVEYOR_INCLUDE_CUSTOM_TYPES" env-default:"true"`
	MaxConcurrentQueries  int  `yaml:"max_concurrent_queries" env:"DBSURVEYOR_MAX_CONCURRENT_QUERIES" env-default:"10"`
	SampleData            bool `yaml:"sample_data" env:"DBSURVEYOR_SAMPLE_DATA" env-default:"false"`
	MaxInferenceDocuments int  `yaml:"max_inference_documents" env:"DBSURVEYOR_MAX_INFERENCE_DOCUMENTS" env-default:"1000"`
}

// SensitivePattern is a column-name rule for the sensitivity detector.
type SensitivePattern struct {
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description"`
}

// SamplingConfig controls the sampling executor. An empty SensitivePatterns
// list selects the built-in set.
type SamplingConfig struct {
	SampleSize           int                `yaml:"sample_size" env:"DBSURVEYOR_SAMPLE_SIZE" env-default:"100"`
	ThrottleMS           int                `yaml:"throttle_ms" env:"DBSURVEYOR_THROTTLE_MS" env-default:"0"`
	QueryTimeoutSecs     int                `yaml:"query_timeout_secs" env:"DBSURVEYOR_SAMPLE_QUERY_TIMEOUT_SECS" env-default:"30"`
	SensitivePatterns    []SensitivePattern `yaml:"sensitive_patterns"`
	TimestampColumnHints []string           `yaml:"timestamp_column_hints" env:"DBSURVEYOR_TIMESTAMP_COLUMN_HINTS" env-separator:","`
}

// Throttle returns the configured delay before each sample query.
func (s SamplingConfig) Throttle() time.Duration {
	return time.Duration(s.ThrottleMS) * time.Millisecond
}

// QueryTimeout returns the per-sample query timeout.
func (s SamplingConfig) QueryTimeout() time.Duration {
	return time.Duration(s.QueryTimeoutSecs) * time.Second
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level       string `yaml:"level" env:"DBSURVEYOR_LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"DBSURVEYOR_LOG_DEVELOPMENT" env-default:"false"`
}

// Options converts to logger construction options.
func (l LoggingConfig) Options() logging.Options {
	return logging.Options{Level: l.Level, Development: l.Development}
}

// DefaultConnectionConfig returns the documented connection defaults.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		ConnectTimeout:     30 * time.Second,
		QueryTimeout:       30 * time.Second,
		MaxConnections:     10,
		MinIdleConnections: 2,
		IdleTimeout:        10 * time.Minute,
		ReadOnly:           true,
		ApplicationName:    "dbsurveyor",
	}
}

// DefaultCollectionConfig returns the documented collection defaults.
func DefaultCollectionConfig() CollectionConfig {
	return CollectionConfig{
		IncludeViews:          true,
		IncludeProcedures:     true,
		IncludeFunctions:      true,
		IncludeTriggers:       true,
		IncludeIndexes:        true,
		IncludeConstraints:    true,
		IncludeCustomTypes:    true,
		MaxConcurrentQueries:  10,
		MaxInferenceDocuments: 1000,
	}
}

// DefaultSamplingConfig returns the documented sampling defaults.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		SampleSize:       100,
		QueryTimeoutSecs: 30,
	}
}

// Default returns a Config with every documented default and no database URL.
func Default() *Config {
	return &Config{
		Connection: DefaultConnectionConfig(),
		Collection: DefaultCollectionConfig(),
		Sampling:   DefaultSamplingConfig(),
		Logging:    LoggingConfig{Level: "info"},
	}
}

// Load reads configuration with environment variable overrides.
// A .env file in the working directory is loaded first when present. When
// path names an existing YAML file it is read with env overrides; otherwise
// only the environment and defaults apply. The result is validated.
func Load(path, version string) (*Config, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{Version: version}

	if path != "" && fileExists(path) {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section's ranges.
func (c *Config) Validate() error {
	if err := c.Connection.Validate(); err != nil {
		return err
	}
	if err := c.Collection.Validate(); err != nil {
		return err
	}
	return c.Sampling.Validate()
}

// Validate checks pool sizes and timeouts.
func (c ConnectionConfig) Validate() error {
	const op = "validate connection config"
	if c.MaxConnections < MinConnections || c.MaxConnections > MaxConnections {
		return apperrors.Newf(apperrors.ErrConfiguration, op, "max_connections must be between %d and %d, got %d", MinConnections, MaxConnections, c.MaxConnections)
	}
	if c.MinIdleConnections < 0 || c.MinIdleConnections > c.MaxConnections {
		return apperrors.Newf(apperrors.ErrConfiguration, op, "min_idle_connections must be between 0 and max_connections (%d), got %d", c.MaxConnections, c.MinIdleConnections)
	}
	if c.ConnectTimeout <= 0 {
		return apperrors.New(apperrors.ErrConfiguration, op, "connect_timeout must be positive")
	}
	if c.QueryTimeout <= 0 {
		return apperrors.New(apperrors.ErrConfiguration, op, "query_timeout must be positive")
	}
	if c.IdleTimeout < 0 {
		return apperrors.New(apperrors.ErrConfiguration, op, "idle_timeout must not be negative")
	}
	return nil
}

// Validate checks the concurrency bound.
func (c CollectionConfig) Validate() error {
	const op = "validate collection config"
	if c.MaxConcurrentQueries < MinConcurrentQueries || c.MaxConcurrentQueries > MaxConcurrentQueries {
		return apperrors.Newf(apperrors.ErrConfiguration, op, "max_concurrent_queries must be between %d and %d, got %d", MinConcurrentQueries, MaxConcurrentQueries, c.MaxConcurrentQueries)
	}
	if c.MaxInferenceDocuments < 1 {
		return apperrors.Newf(apperrors.ErrConfiguration, op, "max_inference_documents must be positive, got %d", c.MaxInferenceDocuments)
	}
	return nil
}

// Validate checks sample size, throttle and timeout ranges.
func (s SamplingConfig) Validate() error {
	const op = "validate sampling config"
	if s.SampleSize < MinSampleSize || s.SampleSize > MaxSampleSize {
		return apperrors.Newf(apperrors.ErrConfiguration, op, "sample_size must be between %d and %d, got %d", MinSampleSize, MaxSampleSize, s.SampleSize)
	}
	if s.ThrottleMS < 0 || s.ThrottleMS > MaxThrottleMS {
		return apperrors.Newf(apperrors.ErrConfiguration, op, "throttle_ms must be between 0 and %d, got %d", MaxThrottleMS, s.ThrottleMS)
	}
	if s.QueryTimeoutSecs < MinQueryTimeoutSecs || s.QueryTimeoutSecs > MaxQueryTimeoutSecs {
		return apperrors.Newf(apperrors.ErrConfiguration, op, "query_timeout_secs must be between %d and %d, got %d", MinQueryTimeoutSecs, MaxQueryTimeoutSecs, s.QueryTimeoutSecs)
	}
	for _, p := range s.SensitivePatterns {
		if strings.TrimSpace(p.Pattern) == "" {
			return apperrors.New(apperrors.ErrConfiguration, op, "sensitive pattern must not be empty")
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return apperrors.Newf(apperrors.ErrConfiguration, op, "sensitive pattern %q does not compile", p.Pattern)
		}
	}
	return nil
}

// loadEnvFile loads a .env file if it exists. Variables already set win.
func loadEnvFile(path string) error {
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
