package datasource

import (
	"context"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// UnsupportedAdapter stands in for an engine that is not compiled into the
// binary. Every operation fails with apperrors.ErrUnsupportedFeature.
type UnsupportedAdapter struct {
	dbType models.DatabaseType
	conn   config.ConnectionConfig
}

// NewUnsupportedAdapter returns the placeholder adapter for dbType.
func NewUnsupportedAdapter(dbType models.DatabaseType, conn config.ConnectionConfig) *UnsupportedAdapter {
	return &UnsupportedAdapter{dbType: dbType, conn: conn}
}

// buildTags maps each engine to the build tag that compiles its adapter in.
var buildTags = map[models.DatabaseType]string{
	models.DatabaseTypePostgreSQL: "postgres",
	models.DatabaseTypeMySQL:      "mysql",
	models.DatabaseTypeSQLite:     "sqlite",
	models.DatabaseTypeSQLServer:  "mssql",
	models.DatabaseTypeMongoDB:    "mongodb",
}

func (a *UnsupportedAdapter) err(op string) error {
	tag, ok := buildTags[a.dbType]
	if !ok {
		return apperrors.Newf(apperrors.ErrUnsupportedFeature, op,
			"%s support is not compiled into this build (build with -tags all_adapters)", a.dbType.DisplayName())
	}
	return apperrors.Newf(apperrors.ErrUnsupportedFeature, op,
		"%s support is not compiled into this build (build with -tags %s or all_adapters)",
		a.dbType.DisplayName(), tag)
}

func (a *UnsupportedAdapter) TestConnection(context.Context) error {
	return a.err("test connection")
}

func (a *UnsupportedAdapter) CollectSchema(context.Context) (*models.DatabaseSchema, error) {
	return nil, a.err("collect schema")
}

func (a *UnsupportedAdapter) SampleTables(context.Context, *models.DatabaseSchema, config.SamplingConfig) ([]models.TableSample, error) {
	return nil, a.err("sample tables")
}

func (a *UnsupportedAdapter) DatabaseType() models.DatabaseType { return a.dbType }

func (a *UnsupportedAdapter) SupportsFeature(Feature) bool { return false }

func (a *UnsupportedAdapter) ConnectionConfig() config.ConnectionConfig { return a.conn }

func (a *UnsupportedAdapter) Close() error { return nil }

var _ Adapter = (*UnsupportedAdapter)(nil)
