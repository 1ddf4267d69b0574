package mongodb

import (
	"context"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// Features supported by the MongoDB adapter.
var Features = datasource.FeatureSet{
	datasource.FeatureSchemaCollection,
	datasource.FeatureDataSampling,
	datasource.FeatureMultiDatabase,
	datasource.FeatureConnectionPooling,
	datasource.FeatureQueryTimeout,
	datasource.FeatureReadOnlyMode,
}

// systemDatabases are skipped unless system tables are requested.
var systemDatabases = []string{"admin", "local", "config"}

// Adapter provides MongoDB connectivity.
type Adapter struct {
	cfg    *config.Config
	conn   config.ConnectionConfig
	pool   *datasource.MongoClientWrapper
	client *mongo.Client
	logger *zap.Logger
}

// NewAdapter connects with opts and verifies the deployment with a ping.
// conn is the credential-free identity returned by ParseConnectionString.
// If logger is nil, a no-op logger is used.
func NewAdapter(ctx context.Context, opts *options.ClientOptions, conn config.ConnectionConfig, cfg *config.Config, logger *zap.Logger) (*Adapter, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := datasource.Connect(ctx, conn, classifyError, logger, func(ctx context.Context) (*datasource.MongoClientWrapper, error) {
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, err
		}
		wrapper := datasource.NewMongoClientWrapper(client, conn.MaxConnections)
		if err := wrapper.Ping(ctx); err != nil {
			_ = wrapper.Close()
			return nil, err
		}
		return wrapper, nil
	})
	if err != nil {
		return nil, err
	}

	return &Adapter{
		cfg:    cfg,
		conn:   conn,
		pool:   pool,
		client: pool.GetClient(),
		logger: logger,
	}, nil
}

// TestConnection pings the deployment and, when the URI names a database,
// runs a command against it.
func (a *Adapter) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.conn.ConnectTimeout)
	defer cancel()

	if err := a.pool.Ping(ctx); err != nil {
		return datasource.ClassifyConnectError("test connection", fmt.Errorf("ping failed: %w", err), classifyError)
	}
	if a.conn.Database == "" {
		return nil
	}
	if err := a.client.Database(a.conn.Database).RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return datasource.ClassifyConnectError("test connection", fmt.Errorf("test command failed: %w", err), classifyError)
	}
	return nil
}

func (a *Adapter) DatabaseType() models.DatabaseType {
	return models.DatabaseTypeMongoDB
}

func (a *Adapter) SupportsFeature(f datasource.Feature) bool {
	return Features.Has(f)
}

// ConnectionConfig returns the connection settings without credentials.
func (a *Adapter) ConnectionConfig() config.ConnectionConfig {
	return a.conn
}

// SampleTables samples every collection in schema using sampling settings cfg.
func (a *Adapter) SampleTables(ctx context.Context, schema *models.DatabaseSchema, cfg config.SamplingConfig) ([]models.TableSample, error) {
	src := &sampleSource{adapter: a, hints: cfg.TimestampColumnHints}
	samples, err := datasource.SampleAll(ctx, src, schema, cfg, a.cfg.Collection.MaxConcurrentQueries, classifyError, a.logger)
	datasource.LogPoolStats(a.logger, a.pool, "sampling")
	return samples, err
}

// Close disconnects the client.
func (a *Adapter) Close() error {
	return a.pool.Close()
}

// databases lists the databases to survey: the one named in the URI, or
// every database the user may read.
func (a *Adapter) databases(ctx context.Context) ([]string, error) {
	if a.conn.Database != "" {
		return []string{a.conn.Database}, nil
	}
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	names, err := a.client.ListDatabaseNames(ctx, bson.D{}, options.ListDatabases().SetAuthorizedDatabases(true))
	if err != nil {
		return nil, err
	}
	if a.cfg.Collection.IncludeSystemTables {
		return names, nil
	}
	return slices.DeleteFunc(names, func(name string) bool {
		return slices.Contains(systemDatabases, name)
	}), nil
}

// Ensure Adapter implements datasource.Adapter at compile time.
var _ datasource.Adapter = (*Adapter)(nil)
