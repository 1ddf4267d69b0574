package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
)

// chdirTemp moves the test into an empty directory so no stray .env is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
	return tmpDir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("", "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	// Tag defaults and the Default* constructors must agree.
	if cfg.Connection != DefaultConnectionConfig() {
		t.Errorf("connection defaults drifted: %+v vs %+v", cfg.Connection, DefaultConnectionConfig())
	}
	if cfg.Collection != DefaultCollectionConfig() {
		t.Errorf("collection defaults drifted: %+v vs %+v", cfg.Collection, DefaultCollectionConfig())
	}
	if cfg.Sampling.SampleSize != 100 || cfg.Sampling.QueryTimeoutSecs != 30 || cfg.Sampling.ThrottleMS != 0 {
		t.Errorf("unexpected sampling defaults: %+v", cfg.Sampling)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected Logging.Level=info, got %s", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := chdirTemp(t)
	configPath := filepath.Join(tmpDir, "dbsurveyor.yaml")

	yamlContent := `
connection:
  max_connections: 20
  connect_timeout: 5s
collection:
  include_system_tables: true
  max_concurrent_queries: 8
sampling:
  sample_size: 50
  sensitive_patterns:
    - pattern: "(?i)salary"
      description: "compensation data"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("DBSURVEYOR_SAMPLE_SIZE", "25")
	t.Setenv("DBSURVEYOR_TIMESTAMP_COLUMN_HINTS", "occurred_at,logged_at")

	cfg, err := Load(configPath, "v1")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Connection.MaxConnections != 20 {
		t.Errorf("expected MaxConnections=20 (from yaml), got %d", cfg.Connection.MaxConnections)
	}
	if cfg.Connection.ConnectTimeout != 5*time.Second {
		t.Errorf("expected ConnectTimeout=5s (from yaml), got %s", cfg.Connection.ConnectTimeout)
	}
	if !cfg.Collection.IncludeSystemTables {
		t.Error("expected IncludeSystemTables=true (from yaml)")
	}
	if cfg.Collection.MaxConcurrentQueries != 8 {
		t.Errorf("expected MaxConcurrentQueries=8 (from yaml), got %d", cfg.Collection.MaxConcurrentQueries)
	}
	if cfg.Sampling.SampleSize != 25 {
		t.Errorf("expected SampleSize=25 (from env), got %d", cfg.Sampling.SampleSize)
	}
	if len(cfg.Sampling.SensitivePatterns) != 1 || cfg.Sampling.SensitivePatterns[0].Description != "compensation data" {
		t.Errorf("unexpected sensitive patterns: %+v", cfg.Sampling.SensitivePatterns)
	}
	if strings.Join(cfg.Sampling.TimestampColumnHints, "|") != "occurred_at|logged_at" {
		t.Errorf("unexpected hints: %v", cfg.Sampling.TimestampColumnHints)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	tmpDir := chdirTemp(t)
	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("DBSURVEYOR_MAX_CONCURRENT_QUERIES=3\n"), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("DBSURVEYOR_MAX_CONCURRENT_QUERIES") })

	cfg, err := Load("", "v1")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Collection.MaxConcurrentQueries != 3 {
		t.Errorf("expected MaxConcurrentQueries=3 (from .env), got %d", cfg.Collection.MaxConcurrentQueries)
	}
}

func TestLoad_InvalidRange(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DBSURVEYOR_MAX_CONCURRENT_QUERIES", "51")

	_, err := Load("", "v1")
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"concurrency lower bound", func(c *Config) { c.Collection.MaxConcurrentQueries = 1 }, false},
		{"concurrency upper bound", func(c *Config) { c.Collection.MaxConcurrentQueries = 50 }, false},
		{"concurrency zero", func(c *Config) { c.Collection.MaxConcurrentQueries = 0 }, true},
		{"connections upper bound", func(c *Config) { c.Connection.MaxConnections = 100 }, false},
		{"connections too many", func(c *Config) { c.Connection.MaxConnections = 101 }, true},
		{"idle above max", func(c *Config) { c.Connection.MaxConnections = 2; c.Connection.MinIdleConnections = 3 }, true},
		{"sample size upper bound", func(c *Config) { c.Sampling.SampleSize = 10000 }, false},
		{"sample size too large", func(c *Config) { c.Sampling.SampleSize = 10001 }, true},
		{"sample size zero", func(c *Config) { c.Sampling.SampleSize = 0 }, true},
		{"query timeout too long", func(c *Config) { c.Sampling.QueryTimeoutSecs = 3601 }, true},
		{"negative throttle", func(c *Config) { c.Sampling.ThrottleMS = -1 }, true},
		{"zero connect timeout", func(c *Config) { c.Connection.ConnectTimeout = 0 }, true},
		{"bad pattern", func(c *Config) {
			c.Sampling.SensitivePatterns = []SensitivePattern{{Pattern: "(unclosed"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, apperrors.ErrConfiguration) {
				t.Errorf("Validate() = %v, want ErrConfiguration", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestConnectionConfig_Redacted(t *testing.T) {
	tests := []struct {
		name string
		cfg  ConnectionConfig
		want string
	}{
		{"full", ConnectionConfig{Host: "db", Port: 5432, Database: "sales", Username: "app"}, "app:****@db:5432/sales"},
		{"no user", ConnectionConfig{Host: "db", Database: "sales"}, "db/sales"},
		{"file path", ConnectionConfig{Database: "/var/data/app.db"}, "/var/data/app.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Redacted(); got != tt.want {
				t.Errorf("Redacted() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSamplingConfig_Durations(t *testing.T) {
	s := SamplingConfig{ThrottleMS: 250, QueryTimeoutSecs: 2}
	if s.Throttle() != 250*time.Millisecond {
		t.Errorf("Throttle() = %s", s.Throttle())
	}
	if s.QueryTimeout() != 2*time.Second {
		t.Errorf("QueryTimeout() = %s", s.QueryTimeout())
	}
}
