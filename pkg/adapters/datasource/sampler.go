package datasource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/logging"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// Sampler runs the sampling procedure for one table at a time against a
// SampleSource. It is safe for concurrent use.
type Sampler struct {
	cfg      config.SamplingConfig
	detector *SensitivityDetector
	logger   *zap.Logger
	classify apperrors.Classifier
	timeNow  func() time.Time
}

// NewSampler validates cfg and compiles its sensitive patterns.
// classifier maps engine errors onto apperrors kinds and may be nil.
func NewSampler(cfg config.SamplingConfig, classifier apperrors.Classifier, logger *zap.Logger) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "sample", err)
	}
	detector, err := NewSensitivityDetector(cfg.SensitivePatterns)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "sample", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{
		cfg:      cfg,
		detector: detector,
		logger:   logger,
		classify: classifier,
		timeNow:  time.Now,
	}, nil
}

// SampleTable samples one table: throttle, pick an ordering, fetch at most
// SampleSize rows under the query timeout, then attach warnings for
// unordered tables, unrepresentable values and sensitive column names.
func (s *Sampler) SampleTable(ctx context.Context, src SampleSource, table *models.Table) (*models.TableSample, error) {
	op := "sample " + table.QualifiedName()

	if d := s.cfg.Throttle(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, apperrors.Wrap(apperrors.ErrQueryFailed, op, ctx.Err())
		case <-timer.C:
		}
	}

	detectCtx, cancel := s.queryContext(ctx)
	ordering, err := src.DetectOrderingStrategy(detectCtx, table.Schema, table.Name)
	cancel()
	if err != nil {
		return nil, ClassifyQueryError(op, err, s.classify)
	}

	sample := &models.TableSample{
		TableName:  table.Name,
		SchemaName: table.Schema,
		Ordering:   ordering,
	}
	if ordering.IsOrdered() {
		sample.Strategy = models.MostRecent(s.cfg.SampleSize)
	} else {
		sample.Strategy = models.Random(s.cfg.SampleSize)
		sample.Warnings = append(sample.Warnings, fmt.Sprintf(
			"no reliable ordering found for %s; using random sampling, results are not reproducible", table.QualifiedName()))
	}

	fetchCtx, cancel := s.queryContext(ctx)
	result, err := src.FetchSample(fetchCtx, table, ordering, sample.Strategy)
	cancel()
	if err != nil {
		return nil, ClassifyQueryError(op, err, s.classify)
	}

	rows := result.Rows
	if len(rows) > s.cfg.SampleSize {
		rows = rows[:s.cfg.SampleSize]
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	sample.Rows = rows
	sample.SampleSize = len(rows)

	for _, col := range result.Unsupported {
		sample.Warnings = append(sample.Warnings, fmt.Sprintf(
			"column %s.%s has values that cannot be represented; they were replaced with null", table.Name, col))
	}
	sample.Warnings = append(sample.Warnings, s.detector.Warnings(table.Name, sampleColumns(table, rows))...)

	countCtx, cancel := s.queryContext(ctx)
	total, err := src.EstimateRowCount(countCtx, table)
	cancel()
	if err != nil {
		s.logger.Debug("Row count estimate unavailable",
			zap.String("table", table.QualifiedName()),
			logging.ErrorField(err))
	} else {
		sample.TotalRows = total
	}

	sample.CollectedAt = s.timeNow().UTC()
	return sample, nil
}

// queryContext bounds a single source call by the per-query timeout.
func (s *Sampler) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.QueryTimeout())
}

// sampleColumns lists the table's declared columns followed by any extra
// keys seen in the rows (schemaless sources), each once.
func sampleColumns(table *models.Table, rows []map[string]any) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, c := range table.Columns {
		if !seen[c.Name] {
			seen[c.Name] = true
			cols = append(cols, c.Name)
		}
	}
	var extra []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

// SampleAll samples every table of schema with at most maxConcurrent queries
// in flight. A table that fails is recorded as a warning on schema and the
// remaining tables are still sampled; samples are returned in table order.
func SampleAll(ctx context.Context, src SampleSource, schema *models.DatabaseSchema, cfg config.SamplingConfig, maxConcurrent int, classifier apperrors.Classifier, logger *zap.Logger) ([]models.TableSample, error) {
	sampler, err := NewSampler(cfg, classifier, logger)
	if err != nil {
		return nil, err
	}
	if maxConcurrent < config.MinConcurrentQueries {
		maxConcurrent = config.MinConcurrentQueries
	}

	results := make([]*models.TableSample, len(schema.Tables))
	failures := make([]error, len(schema.Tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i := range schema.Tables {
		table := &schema.Tables[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			sample, err := sampler.SampleTable(gctx, src, table)
			if err != nil {
				// Cancellation of the whole run aborts; anything else is per table.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures[i] = err
				return nil
			}
			results[i] = sample
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.Classify("sample tables", err, nil, apperrors.ErrQueryFailed, apperrors.ErrQueryFailed)
	}

	samples := make([]models.TableSample, 0, len(results))
	for i, r := range results {
		if failures[i] != nil {
			schema.AddWarning("sampling %s failed: %s", schema.Tables[i].QualifiedName(), failures[i].Error())
			if errors.Is(failures[i], apperrors.ErrInsufficientPrivileges) {
				sampler.logger.Warn("Skipping table without read privilege", zap.String("table", schema.Tables[i].QualifiedName()))
			} else {
				sampler.logger.Warn("Table sampling failed",
					zap.String("table", schema.Tables[i].QualifiedName()),
					logging.ErrorField(failures[i]))
			}
			continue
		}
		if r != nil {
			samples = append(samples, *r)
		}
	}
	return samples, nil
}
