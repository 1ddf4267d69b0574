package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	mssqldrv "github.com/microsoft/go-mssqldb"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
	sqlutil "github.com/EvilBit-Labs/dbsurveyor/pkg/sql"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/typemap"
)

// defaultSchema is used when a table reference names none.
const defaultSchema = "dbo"

// sampleSource adapts the Adapter to datasource.SampleSource.
type sampleSource struct {
	adapter *Adapter
	hints   []string
}

// DetectOrderingStrategy picks how to order schemaName.tableName for
// sampling. An empty schemaName means dbo.
func (a *Adapter) DetectOrderingStrategy(ctx context.Context, schemaName, tableName string) (models.OrderingStrategy, error) {
	src := &sampleSource{adapter: a, hints: a.cfg.Sampling.TimestampColumnHints}
	return src.DetectOrderingStrategy(ctx, schemaName, tableName)
}

func (s *sampleSource) DetectOrderingStrategy(ctx context.Context, schemaName, tableName string) (models.OrderingStrategy, error) {
	const op = "detect ordering"
	a := s.adapter
	if schemaName == "" {
		schemaName = defaultSchema
	}
	args := []any{sql.Named("schema", schemaName), sql.Named("table", tableName)}

	var kind string
	err := a.db.QueryRowContext(ctx, `
		SET NOCOUNT ON;
		SELECT RTRIM(o.type) FROM sys.objects o
		WHERE o.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
			AND o.type IN ('U', 'V')`, args...).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OrderingStrategy{}, apperrors.Newf(apperrors.ErrInvalidParameters, op, "table %s not found", tableName)
	}
	if err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError(op, err, classifyError)
	}

	var candidates datasource.OrderingCandidates
	err = a.each(ctx, `
		SET NOCOUNT ON;
		SELECT c.name, TYPE_NAME(c.system_type_id), c.is_identity
		FROM sys.columns c
		WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
		ORDER BY c.column_id`, args, func(rows *sql.Rows) error {
		var (
			name, typeName string
			identity       bool
		)
		if err := rows.Scan(&name, &typeName, &identity); err != nil {
			return err
		}
		candidates.Columns = append(candidates.Columns, datasource.ColumnCandidate{
			Name:            name,
			DataType:        typemap.SQLServer(typeName, nil, nil, nil),
			IsAutoIncrement: identity,
		})
		return nil
	})
	if err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError(op, err, classifyError)
	}

	err = a.each(ctx, `
		SET NOCOUNT ON;
		SELECT c.name
		FROM sys.indexes i
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		WHERE i.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
			AND i.is_primary_key = 1 AND ic.key_ordinal > 0
		ORDER BY ic.key_ordinal`, args, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		candidates.PrimaryKey = append(candidates.PrimaryKey, name)
		return nil
	})
	if err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError(op, err, classifyError)
	}

	// Views have no physical row locator.
	if kind == "U" {
		candidates.RowIDColumn = sqlutil.SQLServer.RowIDColumn()
	}
	return datasource.SelectOrderingStrategy(candidates, s.hints), nil
}

func (s *sampleSource) FetchSample(ctx context.Context, table *models.Table, ordering models.OrderingStrategy, strategy models.SamplingStrategy) (*datasource.SampleRows, error) {
	return datasource.FetchSQLSampleWith(ctx, s.adapter.db, sqlutil.SQLServer, table, ordering, strategy, convertValue)
}

// convertValue fixes the byte order of uniqueidentifier values, which the
// driver returns in SQL Server's mixed-endian wire layout.
func convertValue(v any, hint models.UnifiedDataType) any {
	b, ok := v.([]byte)
	if !ok || hint.Kind != models.KindUUID || len(b) != 16 {
		return v
	}
	var id mssqldrv.UniqueIdentifier
	if err := id.Scan(b); err != nil {
		return v
	}
	return strings.ToLower(id.String())
}

// EstimateRowCount sums sys.partitions for the heap or clustered index.
// Views have no partitions and report nil.
func (s *sampleSource) EstimateRowCount(ctx context.Context, table *models.Table) (*int64, error) {
	schemaName := table.Schema
	if schemaName == "" {
		schemaName = defaultSchema
	}
	var n sql.NullInt64
	err := s.adapter.db.QueryRowContext(ctx, `
		SET NOCOUNT ON;
		SELECT SUM(p.rows) FROM sys.partitions p
		WHERE p.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
			AND p.index_id IN (0, 1)`,
		sql.Named("schema", schemaName), sql.Named("table", table.Name)).Scan(&n)
	if err != nil {
		return nil, datasource.ClassifyQueryError("estimate row count", err, classifyError)
	}
	if !n.Valid {
		return nil, nil
	}
	return &n.Int64, nil
}

var _ datasource.SampleSource = (*sampleSource)(nil)
