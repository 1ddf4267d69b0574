package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
	sqlutil "github.com/EvilBit-Labs/dbsurveyor/pkg/sql"
)

// sampleSource adapts the Adapter to datasource.SampleSource.
type sampleSource struct {
	adapter *Adapter
	hints   []string
}

// DetectOrderingStrategy picks how to order tableName for sampling. SQLite has
// a single namespace, so schemaName is ignored.
func (a *Adapter) DetectOrderingStrategy(ctx context.Context, schemaName, tableName string) (models.OrderingStrategy, error) {
	src := &sampleSource{adapter: a, hints: a.cfg.Sampling.TimestampColumnHints}
	return src.DetectOrderingStrategy(ctx, schemaName, tableName)
}

func (s *sampleSource) DetectOrderingStrategy(ctx context.Context, _, tableName string) (models.OrderingStrategy, error) {
	a := s.adapter

	var createSQL string
	err := a.db.QueryRowContext(ctx,
		"SELECT COALESCE(sql, '') FROM sqlite_master WHERE type = 'table' AND name = ?", tableName).Scan(&createSQL)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OrderingStrategy{}, apperrors.Newf(apperrors.ErrInvalidParameters, "detect ordering", "table %s not found", tableName)
	}
	if err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError("detect ordering", err, classifyError)
	}

	var pk []pkPart
	columns, err := a.loadColumns(ctx, tableName, &pk)
	if err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError("detect ordering", err, classifyError)
	}
	table := &models.Table{Name: tableName, Columns: columns}
	if len(pk) > 0 {
		sort.Slice(pk, func(i, j int) bool { return pk[i].seq < pk[j].seq })
		table.PrimaryKey = &models.PrimaryKey{}
		for _, p := range pk {
			table.PrimaryKey.Columns = append(table.PrimaryKey.Columns, p.column)
		}
		markRowIDAlias(table, createSQL)
	}

	candidates := datasource.CandidatesFromTable(table)
	if !withoutRowIDPattern.MatchString(createSQL) {
		candidates.RowIDColumn = sqlutil.SQLite.RowIDColumn()
	}
	return datasource.SelectOrderingStrategy(candidates, s.hints), nil
}

func (s *sampleSource) FetchSample(ctx context.Context, table *models.Table, ordering models.OrderingStrategy, strategy models.SamplingStrategy) (*datasource.SampleRows, error) {
	return datasource.FetchSQLSample(ctx, s.adapter.db, sqlutil.SQLite, table, ordering, strategy)
}

// EstimateRowCount counts rows exactly; SQLite keeps no row statistics
// unless ANALYZE has run.
func (s *sampleSource) EstimateRowCount(ctx context.Context, table *models.Table) (*int64, error) {
	query, err := sqlutil.BuildCountQuery(sqlutil.SQLite, "", table.Name)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "count rows", err)
	}
	var n int64
	if err := s.adapter.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return nil, datasource.ClassifyQueryError("count rows", err, classifyError)
	}
	return &n, nil
}

var _ datasource.SampleSource = (*sampleSource)(nil)
