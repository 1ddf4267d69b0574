package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
	sqlutil "github.com/EvilBit-Labs/dbsurveyor/pkg/sql"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/typemap"
)

// sampleSource adapts the Adapter to datasource.SampleSource.
type sampleSource struct {
	adapter *Adapter
	hints   []string
}

// DetectOrderingStrategy picks how to order schemaName.tableName for
// sampling. An empty schemaName means the connected database.
func (a *Adapter) DetectOrderingStrategy(ctx context.Context, schemaName, tableName string) (models.OrderingStrategy, error) {
	src := &sampleSource{adapter: a, hints: a.cfg.Sampling.TimestampColumnHints}
	return src.DetectOrderingStrategy(ctx, schemaName, tableName)
}

func (s *sampleSource) DetectOrderingStrategy(ctx context.Context, schemaName, tableName string) (models.OrderingStrategy, error) {
	const op = "detect ordering"
	a := s.adapter
	if schemaName == "" {
		schemaName = a.conn.Database
	}

	var found int
	err := a.db.QueryRowContext(ctx, `
		SELECT 1 FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?`,
		schemaName, tableName).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OrderingStrategy{}, apperrors.Newf(apperrors.ErrInvalidParameters, op, "table %s not found", tableName)
	}
	if err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError(op, err, classifyError)
	}

	var candidates datasource.OrderingCandidates
	err = a.each(ctx, `
		SELECT COLUMN_NAME, COLUMN_TYPE, COALESCE(EXTRA, '')
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, []any{schemaName, tableName}, func(rows *sql.Rows) error {
		var name, typ, extra string
		if err := rows.Scan(&name, &typ, &extra); err != nil {
			return err
		}
		candidates.Columns = append(candidates.Columns, datasource.ColumnCandidate{
			Name:            name,
			DataType:        typemap.MySQL(typ, nil, nil, nil),
			IsAutoIncrement: strings.Contains(strings.ToLower(extra), "auto_increment"),
		})
		return nil
	})
	if err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError(op, err, classifyError)
	}

	err = a.each(ctx, `
		SELECT COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
			AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION`, []any{schemaName, tableName}, func(rows *sql.Rows) error {
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

	// InnoDB exposes no row locator.
	return datasource.SelectOrderingStrategy(candidates, s.hints), nil
}

func (s *sampleSource) FetchSample(ctx context.Context, table *models.Table, ordering models.OrderingStrategy, strategy models.SamplingStrategy) (*datasource.SampleRows, error) {
	return datasource.FetchSQLSample(ctx, s.adapter.db, sqlutil.MySQL, table, ordering, strategy)
}

// EstimateRowCount reads TABLE_ROWS, the storage engine's estimate.
func (s *sampleSource) EstimateRowCount(ctx context.Context, table *models.Table) (*int64, error) {
	var n sql.NullInt64
	err := s.adapter.db.QueryRowContext(ctx, `
		SELECT TABLE_ROWS FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?`,
		table.Schema, table.Name).Scan(&n)
	if err != nil {
		return nil, datasource.ClassifyQueryError("estimate row count", err, classifyError)
	}
	if !n.Valid {
		return nil, nil
	}
	return &n.Int64, nil
}

var _ datasource.SampleSource = (*sampleSource)(nil)
