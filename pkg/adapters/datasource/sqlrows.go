package datasource

import (
	"context"
	"database/sql"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/jsonutil"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
	sqlutil "github.com/EvilBit-Labs/dbsurveyor/pkg/sql"
)

// ValueConverter rewrites a scanned driver value before normalization.
// hint is the column's unified type, zero when unknown.
type ValueConverter func(v any, hint models.UnifiedDataType) any

// CollectSQLRows drains rows into normalized maps. hints gives each column's
// unified type so that drivers returning raw bytes are decoded correctly;
// columns without a hint are normalized from the value alone. The caller
// closes rows.
func CollectSQLRows(rows *sql.Rows, hints map[string]models.UnifiedDataType) (*SampleRows, error) {
	return collectSQLRows(rows, hints, nil)
}

func collectSQLRows(rows *sql.Rows, hints map[string]models.UnifiedDataType, convert ValueConverter) (*SampleRows, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	// A zero type means "no hint".
	types := make([]models.UnifiedDataType, len(columns))
	for i, c := range columns {
		types[i] = hints[c]
	}

	result := &SampleRows{Rows: []map[string]any{}}
	flagged := make(map[string]bool)
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		if convert != nil {
			for i := range values {
				if values[i] != nil {
					values[i] = convert(values[i], types[i])
				}
			}
		}
		row, unsupported := jsonutil.NormalizeRow(columns, values, types)
		for _, c := range unsupported {
			if !flagged[c] {
				flagged[c] = true
				result.Unsupported = append(result.Unsupported, c)
			}
		}
		result.Rows = append(result.Rows, row)
		clear(values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ColumnHints maps a table's column names to their unified types.
func ColumnHints(t *models.Table) map[string]models.UnifiedDataType {
	hints := make(map[string]models.UnifiedDataType, len(t.Columns))
	for _, c := range t.Columns {
		hints[c.Name] = c.DataType
	}
	return hints
}

// FetchSQLSample builds the sample statement for a database/sql engine and
// collects its rows. Tables whose names fail identifier screening are
// rejected with apperrors.ErrInvalidParameters.
func FetchSQLSample(ctx context.Context, db *sql.DB, dialect sqlutil.Dialect, table *models.Table, ordering models.OrderingStrategy, strategy models.SamplingStrategy) (*SampleRows, error) {
	return FetchSQLSampleWith(ctx, db, dialect, table, ordering, strategy, nil)
}

// FetchSQLSampleWith is FetchSQLSample with a driver-specific value
// conversion applied to every non-nil value.
func FetchSQLSampleWith(ctx context.Context, db *sql.DB, dialect sqlutil.Dialect, table *models.Table, ordering models.OrderingStrategy, strategy models.SamplingStrategy, convert ValueConverter) (*SampleRows, error) {
	query, err := sqlutil.BuildSampleQuery(dialect, sqlutil.SampleQuery{
		Schema:   table.Schema,
		Table:    table.Name,
		Ordering: ordering,
		Strategy: strategy,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "build sample query", err)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSQLRows(rows, ColumnHints(table), convert)
}
