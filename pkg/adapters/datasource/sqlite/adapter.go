package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// driverName is the database/sql name registered by modernc.org/sqlite.
const driverName = "sqlite"

// Features supported by the SQLite adapter.
var Features = datasource.FeatureSet{
	datasource.FeatureSchemaCollection,
	datasource.FeatureDataSampling,
	datasource.FeatureQueryTimeout,
	datasource.FeatureReadOnlyMode,
}

// Adapter provides SQLite connectivity.
type Adapter struct {
	dsn    *Config
	cfg    *config.Config
	conn   config.ConnectionConfig
	pool   *datasource.SQLPoolWrapper
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter opens the database file and verifies it can be read.
// If logger is nil, a no-op logger is used.
func NewAdapter(ctx context.Context, dsn *Config, cfg *config.Config, logger *zap.Logger) (*Adapter, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn.ReadOnly = cfg.Connection.ReadOnly

	conn := cfg.Connection.WithEndpoint("", 0, dsn.Path, "")
	if dsn.IsMemory() {
		// Each connection to :memory: is a separate database.
		conn.MaxConnections = 1
		conn.MinIdleConnections = 1
	}

	pool, err := datasource.OpenSQL(ctx, models.DatabaseTypeSQLite, conn, classifyError, logger, func() (*sql.DB, error) {
		return sql.Open(driverName, dsn.DSN())
	})
	if err != nil {
		return nil, err
	}

	return &Adapter{
		dsn:    dsn,
		cfg:    cfg,
		conn:   conn,
		pool:   pool,
		db:     pool.GetDB(),
		logger: logger,
	}, nil
}

// TestConnection verifies the file opens and the catalog is readable.
func (a *Adapter) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.conn.ConnectTimeout)
	defer cancel()

	if err := a.pool.Ping(ctx); err != nil {
		return datasource.ClassifyConnectError("test connection", err, classifyError)
	}
	var n int
	if err := a.db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		return datasource.ClassifyConnectError("test connection", fmt.Errorf("read catalog: %w", err), classifyError)
	}
	return nil
}

func (a *Adapter) DatabaseType() models.DatabaseType {
	return models.DatabaseTypeSQLite
}

func (a *Adapter) SupportsFeature(f datasource.Feature) bool {
	return Features.Has(f)
}

// ConnectionConfig returns the settings with the file path as database name.
func (a *Adapter) ConnectionConfig() config.ConnectionConfig {
	return a.conn
}

// SampleTables samples every table in schema using sampling settings cfg.
func (a *Adapter) SampleTables(ctx context.Context, schema *models.DatabaseSchema, cfg config.SamplingConfig) ([]models.TableSample, error) {
	src := &sampleSource{adapter: a, hints: cfg.TimestampColumnHints}
	samples, err := datasource.SampleAll(ctx, src, schema, cfg, a.cfg.Collection.MaxConcurrentQueries, classifyError, a.logger)
	datasource.LogPoolStats(a.logger, a.pool, "sampling")
	return samples, err
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.pool.Close()
}

// Ensure Adapter implements datasource.Adapter at compile time.
var _ datasource.Adapter = (*Adapter)(nil)
