package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/jsonutil"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
	sqlutil "github.com/EvilBit-Labs/dbsurveyor/pkg/sql"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/typemap"
)

// sampleSource adapts the Adapter to datasource.SampleSource.
type sampleSource struct {
	adapter *Adapter
	hints   []string
}

// DetectOrderingStrategy picks how to order schemaName.tableName for sampling.
func (a *Adapter) DetectOrderingStrategy(ctx context.Context, schemaName, tableName string) (models.OrderingStrategy, error) {
	src := &sampleSource{adapter: a, hints: a.cfg.Sampling.TimestampColumnHints}
	return src.DetectOrderingStrategy(ctx, schemaName, tableName)
}

func (s *sampleSource) DetectOrderingStrategy(ctx context.Context, schemaName, tableName string) (models.OrderingStrategy, error) {
	const op = "detect ordering"
	if schemaName == "" {
		schemaName = "public"
	}

	var relkind string
	err := s.adapter.pool.QueryRow(ctx, `
		SELECT c.relkind::text
		FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2`, schemaName, tableName).Scan(&relkind)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.OrderingStrategy{}, apperrors.Newf(apperrors.ErrInvalidParameters, op, "table %s.%s not found", schemaName, tableName)
	}
	if err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError(op, err, classifyError)
	}

	var candidates datasource.OrderingCandidates
	err = s.adapter.pool.QueryRow(ctx, `
		SELECT ARRAY(
			SELECT a.attname::text
			FROM pg_constraint con
			JOIN pg_class c ON c.oid = con.conrelid
			JOIN pg_namespace n ON n.oid = c.relnamespace
			CROSS JOIN LATERAL unnest(con.conkey) WITH ORDINALITY k(attnum, ord)
			JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
			WHERE con.contype = 'p' AND n.nspname = $1 AND c.relname = $2
			ORDER BY k.ord)`, schemaName, tableName).Scan(&candidates.PrimaryKey)
	if err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError(op, err, classifyError)
	}

	rows, err := s.adapter.pool.Query(ctx, `
		SELECT a.attname, format_type(a.atttypid, a.atttypmod),
			a.attidentity <> '' OR COALESCE(pg_get_expr(d.adbin, d.adrelid), '') LIKE 'nextval(%'
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
		WHERE n.nspname = $1 AND c.relname = $2 AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`, schemaName, tableName)
	if err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError(op, err, classifyError)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name, typ string
			auto      bool
		)
		if err := rows.Scan(&name, &typ, &auto); err != nil {
			return models.OrderingStrategy{}, datasource.ClassifyQueryError(op, err, classifyError)
		}
		candidates.Columns = append(candidates.Columns, datasource.ColumnCandidate{
			Name:            name,
			DataType:        typemap.Postgres(typ, nil, nil, nil),
			IsAutoIncrement: auto,
		})
	}
	if err := rows.Err(); err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError(op, err, classifyError)
	}

	// Only heap relations have a ctid.
	if strings.ContainsAny(relkind, "rm") {
		candidates.RowIDColumn = sqlutil.Postgres.RowIDColumn()
	}
	return datasource.SelectOrderingStrategy(candidates, s.hints), nil
}

// FetchSample runs the sample query and normalizes pgx's decoded values.
func (s *sampleSource) FetchSample(ctx context.Context, table *models.Table, ordering models.OrderingStrategy, strategy models.SamplingStrategy) (*datasource.SampleRows, error) {
	query, err := sqlutil.BuildSampleQuery(sqlutil.Postgres, sqlutil.SampleQuery{
		Schema:   table.Schema,
		Table:    table.Name,
		Ordering: ordering,
		Strategy: strategy,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "build sample query", err)
	}

	rows, err := s.adapter.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}
	known := datasource.ColumnHints(table)
	hints := make([]models.UnifiedDataType, len(columns))
	for i, c := range columns {
		hints[i] = known[c]
	}

	result := &datasource.SampleRows{Rows: []map[string]any{}}
	flagged := make(map[string]bool)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row, unsupported := jsonutil.NormalizeRow(columns, values, hints)
		for _, c := range unsupported {
			if !flagged[c] {
				flagged[c] = true
				result.Unsupported = append(result.Unsupported, c)
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// EstimateRowCount reads the planner estimate; nil when the table has never
// been analyzed.
func (s *sampleSource) EstimateRowCount(ctx context.Context, table *models.Table) (*int64, error) {
	schemaName := table.Schema
	if schemaName == "" {
		schemaName = "public"
	}
	var n int64
	err := s.adapter.pool.QueryRow(ctx, `
		SELECT c.reltuples::bigint
		FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2`, schemaName, table.Name).Scan(&n)
	if err != nil {
		return nil, datasource.ClassifyQueryError("estimate row count", err, classifyError)
	}
	if n < 0 {
		return nil, nil
	}
	return &n, nil
}

var _ datasource.SampleSource = (*sampleSource)(nil)
