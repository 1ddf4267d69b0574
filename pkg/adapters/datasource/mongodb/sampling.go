package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/jsonutil"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/typemap"
)

// sampleSource adapts the Adapter to datasource.SampleSource.
type sampleSource struct {
	adapter *Adapter
	hints   []string
}

// DetectOrderingStrategy picks how to order database.collection for
// sampling. An empty database means the one named in the URI.
func (a *Adapter) DetectOrderingStrategy(ctx context.Context, database, collection string) (models.OrderingStrategy, error) {
	src := &sampleSource{adapter: a, hints: a.cfg.Sampling.TimestampColumnHints}
	return src.DetectOrderingStrategy(ctx, database, collection)
}

// DetectOrderingStrategy inspects one document: a recognizable date field
// orders by time, anything else falls back to _id, whose ObjectIDs grow
// with insertion time.
func (s *sampleSource) DetectOrderingStrategy(ctx context.Context, database, collection string) (models.OrderingStrategy, error) {
	const op = "detect ordering"
	coll, err := s.collection(database, collection)
	if err != nil {
		return models.OrderingStrategy{}, apperrors.Wrap(apperrors.ErrInvalidParameters, op, err)
	}

	names, err := coll.Database().ListCollectionNames(ctx, bson.D{{Key: "name", Value: collection}})
	if err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError(op, err, classifyError)
	}
	if len(names) == 0 {
		return models.OrderingStrategy{}, apperrors.Newf(apperrors.ErrInvalidParameters, op, "collection %s not found", collection)
	}

	var doc bson.D
	err = coll.FindOne(ctx, bson.D{}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.PrimaryKeyOrdering(idField), nil
	}
	if err != nil {
		return models.OrderingStrategy{}, datasource.ClassifyQueryError(op, err, classifyError)
	}

	var candidates datasource.OrderingCandidates
	for _, e := range doc {
		if e.Key == idField {
			continue
		}
		candidates.Columns = append(candidates.Columns, datasource.ColumnCandidate{
			Name:     e.Key,
			DataType: typemap.BSONValue(e.Value),
		})
	}
	if ordering := datasource.SelectOrderingStrategy(candidates, s.hints); ordering.Kind == models.OrderingTimestamp {
		return ordering, nil
	}
	return models.PrimaryKeyOrdering(idField), nil
}

// FetchSample uses $sample for random sampling and sort+limit otherwise.
func (s *sampleSource) FetchSample(ctx context.Context, table *models.Table, ordering models.OrderingStrategy, strategy models.SamplingStrategy) (*datasource.SampleRows, error) {
	coll, err := s.collection(table.Schema, table.Name)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "fetch sample", err)
	}

	var cursor *mongo.Cursor
	if strategy.Kind == models.SamplingRandom {
		pipeline := mongo.Pipeline{{{Key: "$sample", Value: bson.D{{Key: "size", Value: strategy.Limit}}}}}
		cursor, err = coll.Aggregate(ctx, pipeline)
	} else {
		opts := options.Find().SetLimit(int64(strategy.Limit))
		if sort := sortDocument(ordering); len(sort) > 0 {
			opts.SetSort(sort)
		}
		cursor, err = coll.Find(ctx, bson.D{}, opts)
	}
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	result := &datasource.SampleRows{Rows: []map[string]any{}}
	flagged := make(map[string]bool)
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(doc))
		for _, e := range doc {
			v, ok := jsonutil.Normalize(e.Value)
			row[e.Key] = v
			if !ok && !flagged[e.Key] {
				flagged[e.Key] = true
				result.Unsupported = append(result.Unsupported, e.Key)
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// EstimateRowCount reads the collection metadata count.
func (s *sampleSource) EstimateRowCount(ctx context.Context, table *models.Table) (*int64, error) {
	coll, err := s.collection(table.Schema, table.Name)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "estimate row count", err)
	}
	n, err := coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return nil, datasource.ClassifyQueryError("estimate row count", err, classifyError)
	}
	return &n, nil
}

func (s *sampleSource) collection(database, name string) (*mongo.Collection, error) {
	if database == "" {
		database = s.adapter.conn.Database
	}
	if database == "" {
		return nil, errors.New("no database given for collection " + name)
	}
	return s.adapter.client.Database(database).Collection(name), nil
}

// sortDocument turns an ordering into a find sort specification.
func sortDocument(ordering models.OrderingStrategy) bson.D {
	columns, dir := ordering.OrderColumns()
	value := 1
	if dir == models.Descending {
		value = -1
	}
	sort := make(bson.D, 0, len(columns))
	for _, c := range columns {
		sort = append(sort, bson.E{Key: c, Value: value})
	}
	return sort
}

var _ datasource.SampleSource = (*sampleSource)(nil)
