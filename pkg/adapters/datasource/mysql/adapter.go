package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// Features supported by the MySQL adapter.
var Features = datasource.FeatureSet{
	datasource.FeatureSchemaCollection,
	datasource.FeatureDataSampling,
	datasource.FeatureMultiDatabase,
	datasource.FeatureConnectionPooling,
	datasource.FeatureQueryTimeout,
	datasource.FeatureReadOnlyMode,
}

// systemSchemas are skipped unless system tables are requested.
var systemSchemas = []string{"information_schema", "mysql", "performance_schema", "sys"}

// Adapter provides MySQL connectivity.
type Adapter struct {
	cfg    *config.Config
	conn   config.ConnectionConfig
	pool   *datasource.SQLPoolWrapper
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter opens a pool for mc and verifies it with a ping. conn is the
// credential-free identity returned by ParseConnectionString.
// If logger is nil, a no-op logger is used.
func NewAdapter(ctx context.Context, mc *mysqldrv.Config, conn config.ConnectionConfig, cfg *config.Config, logger *zap.Logger) (*Adapter, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := datasource.OpenSQL(ctx, models.DatabaseTypeMySQL, conn, classifyError, logger, func() (*sql.DB, error) {
		connector, err := mysqldrv.NewConnector(mc)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(connector), nil
	})
	if err != nil {
		return nil, err
	}

	return &Adapter{
		cfg:    cfg,
		conn:   conn,
		pool:   pool,
		db:     pool.GetDB(),
		logger: logger,
	}, nil
}

// TestConnection verifies the server is reachable and, when the URL names a
// database, that it is the one selected.
func (a *Adapter) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.conn.ConnectTimeout)
	defer cancel()

	if err := a.pool.Ping(ctx); err != nil {
		return datasource.ClassifyConnectError("test connection", fmt.Errorf("ping failed: %w", err), classifyError)
	}

	var current sql.NullString
	if err := a.db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&current); err != nil {
		return datasource.ClassifyConnectError("test connection", fmt.Errorf("test query failed: %w", err), classifyError)
	}
	if a.conn.Database != "" && !strings.EqualFold(current.String, a.conn.Database) {
		return datasource.ClassifyConnectError("test connection",
			fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.conn.Database, current.String), classifyError)
	}
	return nil
}

func (a *Adapter) DatabaseType() models.DatabaseType {
	return models.DatabaseTypeMySQL
}

func (a *Adapter) SupportsFeature(f datasource.Feature) bool {
	return Features.Has(f)
}

// ConnectionConfig returns the connection settings without credentials.
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

// Close releases the pool.
func (a *Adapter) Close() error {
	return a.pool.Close()
}

// scope restricts an information_schema query on column to the connected
// database, or to every user schema when the URL names none.
func (a *Adapter) scope(column string) (string, []any) {
	if a.conn.Database != "" {
		return column + " = ?", []any{a.conn.Database}
	}
	if a.cfg.Collection.IncludeSystemTables {
		return "1 = 1", nil
	}
	return column + " NOT IN ('" + strings.Join(systemSchemas, "', '") + "')", nil
}

// Ensure Adapter implements datasource.Adapter at compile time.
var _ datasource.Adapter = (*Adapter)(nil)
