package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// Features supported by the PostgreSQL adapter.
var Features = datasource.FeatureSet{
	datasource.FeatureSchemaCollection,
	datasource.FeatureDataSampling,
	datasource.FeatureConnectionPooling,
	datasource.FeatureQueryTimeout,
	datasource.FeatureReadOnlyMode,
}

// Adapter provides PostgreSQL connectivity.
type Adapter struct {
	cfg    *config.Config
	conn   config.ConnectionConfig
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewAdapter opens a pool for pc and verifies it with a ping. conn is the
// credential-free identity returned by ParseConnectionString.
// If logger is nil, a no-op logger is used.
func NewAdapter(ctx context.Context, pc *pgxpool.Config, conn config.ConnectionConfig, cfg *config.Config, logger *zap.Logger) (*Adapter, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	wrapper, err := datasource.Connect(ctx, conn, classifyError, logger, func(ctx context.Context) (*datasource.PostgresPoolWrapper, error) {
		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return datasource.NewPostgresPoolWrapper(pool), nil
	})
	if err != nil {
		return nil, err
	}

	return &Adapter{
		cfg:    cfg,
		conn:   conn,
		pool:   wrapper.GetPool(),
		logger: logger,
	}, nil
}

// TestConnection verifies the database is reachable with valid credentials.
// It checks:
// 1. Server connectivity (ping)
// 2. Catalog access (simple query)
// 3. Correct database name (to prevent connecting to a default database)
func (a *Adapter) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.conn.ConnectTimeout)
	defer cancel()

	if err := a.pool.Ping(ctx); err != nil {
		return datasource.ClassifyConnectError("test connection", fmt.Errorf("ping failed: %w", err), classifyError)
	}

	var currentDB string
	if err := a.pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return datasource.ClassifyConnectError("test connection", fmt.Errorf("test query failed: %w", err), classifyError)
	}

	// PostgreSQL database names are case-sensitive; compare loosely to catch
	// configuration mistakes rather than quoting differences.
	if a.conn.Database != "" && !strings.EqualFold(currentDB, a.conn.Database) {
		return datasource.ClassifyConnectError("test connection",
			fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.conn.Database, currentDB), classifyError)
	}
	return nil
}

func (a *Adapter) DatabaseType() models.DatabaseType {
	return models.DatabaseTypePostgreSQL
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
	datasource.LogPoolStats(a.logger, datasource.NewPostgresPoolWrapper(a.pool), "sampling")
	return samples, err
}

// Close releases the pool.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// Ensure Adapter implements datasource.Adapter at compile time.
var _ datasource.Adapter = (*Adapter)(nil)
