package sqlite

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MemoryPath is the special in-memory database name.
const MemoryPath = ":memory:"

// DefaultBusyTimeoutMS is applied so catalog reads wait out writers.
const DefaultBusyTimeoutMS = 5000

// Config contains SQLite-specific connection options.
type Config struct {
	Path          string
	ReadOnly      bool
	BusyTimeoutMS int
}

// ParseConnectionString accepts sqlite:///abs/path, sqlite://rel/path,
// sqlite:path, sqlite::memory:, :memory: and bare file paths. Query
// parameters are ignored.
func ParseConnectionString(connString string) (*Config, error) {
	s := strings.TrimSpace(connString)
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "sqlite://"):
		s = s[len("sqlite://"):]
	case strings.HasPrefix(lower, "sqlite:"):
		s = s[len("sqlite:"):]
	}
	if s == "" {
		return nil, fmt.Errorf("sqlite connection string has no database path")
	}

	cfg := &Config{Path: s, ReadOnly: true, BusyTimeoutMS: DefaultBusyTimeoutMS}
	if s != MemoryPath {
		cfg.Path = filepath.Clean(s)
	}
	return cfg, nil
}

// IsMemory reports whether the database lives in memory.
func (c *Config) IsMemory() bool {
	return c.Path == MemoryPath
}

// Name is the database name reported in DatabaseInfo: the file name without
// its extension, or "memory".
func (c *Config) Name() string {
	if c.IsMemory() {
		return "memory"
	}
	base := filepath.Base(c.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DSN renders the modernc.org/sqlite data source name. File databases are
// opened read-only through a URI filename unless ReadOnly is false.
func (c *Config) DSN() string {
	pragma := fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeoutMS)
	if c.IsMemory() {
		return "file::memory:?" + pragma
	}
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(c.Path)
	if c.ReadOnly {
		return "file:" + escaped + "?mode=ro&" + pragma
	}
	return "file:" + escaped + "?" + pragma
}
