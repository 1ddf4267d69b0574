package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssqldrv "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/azuread"
	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// Features supported by the SQL Server adapter.
var Features = datasource.FeatureSet{
	datasource.FeatureSchemaCollection,
	datasource.FeatureDataSampling,
	datasource.FeatureConnectionPooling,
	datasource.FeatureQueryTimeout,
	datasource.FeatureReadOnlyMode,
}

// Adapter provides SQL Server connectivity. SQL authentication uses the
// user and password from the URL; a fedauth parameter switches to Azure AD
// authentication (service principal, managed identity, ...).
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
func NewAdapter(ctx context.Context, mc *Config, conn config.ConnectionConfig, cfg *config.Config, logger *zap.Logger) (*Adapter, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := datasource.OpenSQL(ctx, models.DatabaseTypeSQLServer, conn, classifyError, logger, func() (*sql.DB, error) {
		var (
			connector *mssqldrv.Connector
			err       error
		)
		if mc.FedAuth != "" {
			connector, err = azuread.NewConnector(mc.dsn)
		} else {
			connector, err = mssqldrv.NewConnector(mc.dsn)
		}
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(connector), nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Opened SQL Server pool",
		zap.String("database", conn.Redacted()),
		zap.Bool("azure_ad", mc.FedAuth != ""))

	return &Adapter{
		cfg:    cfg,
		conn:   conn,
		pool:   pool,
		db:     pool.GetDB(),
		logger: logger,
	}, nil
}

// TestConnection verifies the server is reachable and that the login landed
// in the requested database rather than its default one.
func (a *Adapter) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.conn.ConnectTimeout)
	defer cancel()

	if err := a.pool.Ping(ctx); err != nil {
		return datasource.ClassifyConnectError("test connection", fmt.Errorf("ping failed: %w", err), classifyError)
	}

	var current string
	if err := a.db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&current); err != nil {
		return datasource.ClassifyConnectError("test connection", fmt.Errorf("test query failed: %w", err), classifyError)
	}
	if a.conn.Database != "" && !strings.EqualFold(current, a.conn.Database) {
		return datasource.ClassifyConnectError("test connection",
			fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.conn.Database, current), classifyError)
	}
	return nil
}

func (a *Adapter) DatabaseType() models.DatabaseType {
	return models.DatabaseTypeSQLServer
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

// Ensure Adapter implements datasource.Adapter at compile time.
var _ datasource.Adapter = (*Adapter)(nil)
