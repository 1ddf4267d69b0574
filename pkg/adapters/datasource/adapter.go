package datasource

import (
	"context"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// Feature is an optional adapter capability.
type Feature string

const (
	FeatureSchemaCollection  Feature = "schema_collection"
	FeatureDataSampling      Feature = "data_sampling"
	FeatureMultiDatabase     Feature = "multi_database"
	FeatureConnectionPooling Feature = "connection_pooling"
	FeatureQueryTimeout      Feature = "query_timeout"
	FeatureReadOnlyMode      Feature = "read_only_mode"
)

// FeatureSet is the static set of features an engine supports.
type FeatureSet []Feature

// Has reports whether f is in the set.
func (s FeatureSet) Has(f Feature) bool {
	for _, x := range s {
		if x == f {
			return true
		}
	}
	return false
}

// ConnectionTester tests database connectivity.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials
	// and that the account can read the catalog.
	TestConnection(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// Adapter is implemented by every engine.
type Adapter interface {
	ConnectionTester

	// CollectSchema reads the catalog into an engine-independent schema.
	// Objects that cannot be read for lack of privileges are skipped with a
	// warning on the result.
	CollectSchema(ctx context.Context) (*models.DatabaseSchema, error)

	// DatabaseType identifies the engine.
	DatabaseType() models.DatabaseType

	// SupportsFeature is pure and never touches the network.
	SupportsFeature(f Feature) bool

	// ConnectionConfig returns the connection settings without credentials.
	ConnectionConfig() config.ConnectionConfig

	// SampleTables samples every table of schema. Tables that fail are
	// recorded as warnings on schema.
	SampleTables(ctx context.Context, schema *models.DatabaseSchema, cfg config.SamplingConfig) ([]models.TableSample, error)
}

// OrderingDetector picks a deterministic row order for one table.
type OrderingDetector interface {
	DetectOrderingStrategy(ctx context.Context, schemaName, tableName string) (models.OrderingStrategy, error)
}

// SampleSource is the engine side of the sampling executor.
type SampleSource interface {
	OrderingDetector

	// FetchSample runs one sample query. Values are already normalized.
	FetchSample(ctx context.Context, table *models.Table, ordering models.OrderingStrategy, strategy models.SamplingStrategy) (*SampleRows, error)

	// EstimateRowCount returns the engine's row estimate, or nil when unknown.
	EstimateRowCount(ctx context.Context, table *models.Table) (*int64, error)
}

// SampleRows is the normalized result of a sample query. Unsupported lists
// columns that held at least one value with no JSON form.
type SampleRows struct {
	Rows        []map[string]any
	Unsupported []string
}
