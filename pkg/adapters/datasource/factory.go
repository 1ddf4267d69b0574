package datasource

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/crypto"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// Options are passed to every adapter factory.
type Options struct {
	Config *config.Config // nil selects config.Default()
	Logger *zap.Logger    // nil selects a no-op logger
}

// AdapterFactory creates adapters from the registry.
type AdapterFactory interface {
	// NewAdapter opens an adapter for the engine named by the connection string.
	NewAdapter(ctx context.Context, connString string) (Adapter, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []AdapterInfo
}

type registryFactory struct {
	opts Options
}

// NewAdapterFactory returns a factory that uses the global registry.
func NewAdapterFactory(opts Options) AdapterFactory {
	return &registryFactory{opts: opts}
}

func (f *registryFactory) NewAdapter(ctx context.Context, connString string) (Adapter, error) {
	return NewAdapter(ctx, connString, f.opts)
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements AdapterFactory at compile time.
var _ AdapterFactory = (*registryFactory)(nil)

// DetectDatabaseType infers the engine from the connection string alone.
// It never opens a connection and never echoes the input in its error.
func DetectDatabaseType(connString string) (models.DatabaseType, error) {
	s := strings.ToLower(strings.TrimSpace(connString))
	switch {
	case strings.HasPrefix(s, "postgres://"), strings.HasPrefix(s, "postgresql://"):
		return models.DatabaseTypePostgreSQL, nil
	case strings.HasPrefix(s, "mysql://"):
		return models.DatabaseTypeMySQL, nil
	case strings.HasPrefix(s, "mongodb://"), strings.HasPrefix(s, "mongodb+srv://"):
		return models.DatabaseTypeMongoDB, nil
	case strings.HasPrefix(s, "mssql://"), strings.HasPrefix(s, "sqlserver://"):
		return models.DatabaseTypeSQLServer, nil
	case strings.HasPrefix(s, "sqlite:"), s == ":memory:":
		return models.DatabaseTypeSQLite, nil
	}

	path := s
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	for _, suffix := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(path, suffix) {
			return models.DatabaseTypeSQLite, nil
		}
	}

	if s == "" {
		return "", apperrors.New(apperrors.ErrInvalidParameters, "detect database type", "empty connection string")
	}
	detail := "unrecognized connection string format"
	if i := strings.Index(s, "://"); i > 0 && !strings.ContainsAny(s[:i], "@:/") {
		detail = "unsupported scheme " + s[:i]
	}
	return "", apperrors.New(apperrors.ErrInvalidParameters, "detect database type", detail)
}

// NewAdapter detects the engine, validates the configuration and calls the
// registered factory. The connection string is held in a crypto.Secret that
// is zeroed before NewAdapter returns. Engines that are not compiled into the
// binary yield an UnsupportedAdapter.
func NewAdapter(ctx context.Context, connString string, opts Options) (Adapter, error) {
	dbType, err := DetectDatabaseType(connString)
	if err != nil {
		return nil, err
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Connection.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Collection.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	factory := GetFactory(dbType)
	if factory == nil {
		logger.Warn("Adapter not compiled in", zap.String("database_type", string(dbType)))
		return NewUnsupportedAdapter(dbType, cfg.Connection), nil
	}

	var adapter Adapter
	err = crypto.Scoped(connString, func(secret *crypto.Secret) error {
		var ferr error
		adapter, ferr = factory(ctx, secret, cfg, logger.Named(string(dbType)))
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return adapter, nil
}
