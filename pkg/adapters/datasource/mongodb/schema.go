package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// CollectorVersion is stamped into collected schemas; main overrides it at build time.
var CollectorVersion = "dev"

// CollectSchema infers a table per collection from up to
// MaxInferenceDocuments documents and reads collection indexes. Views are
// listed with their pipelines.
func (a *Adapter) CollectSchema(ctx context.Context) (*models.DatabaseSchema, error) {
	started := time.Now()

	info := models.DatabaseInfo{
		Name:         a.conn.Database,
		DatabaseType: models.DatabaseTypeMongoDB,
		Encoding:     "UTF-8",
	}
	version, err := a.serverVersion(ctx)
	if err != nil {
		return nil, datasource.ClassifyQueryError("read server version", err, classifyError)
	}
	info.Version = version
	for _, sys := range systemDatabases {
		if a.conn.Database == sys {
			info.IsSystemDatabase = true
		}
	}
	schema := models.NewDatabaseSchema(info, CollectorVersion)

	databases, err := a.databases(ctx)
	if err != nil {
		return nil, datasource.ClassifyQueryError("list databases", err, classifyError)
	}

	var size int64
	for _, name := range databases {
		if err := a.collectDatabase(ctx, schema, name); err != nil {
			return nil, datasource.ClassifyQueryError("collect database "+name, err, classifyError)
		}
		if n, err := a.databaseSize(ctx, name); err != nil {
			a.optional(schema, "size of "+name, err)
		} else {
			size += n
		}
	}
	schema.DatabaseInfo.SizeBytes = &size

	a.logger.Debug("Collected MongoDB schema",
		zap.String("database", a.conn.Redacted()),
		zap.Int("databases", len(databases)),
		zap.Int("collections", len(schema.Tables)),
		zap.Int("warnings", len(schema.CollectionMetadata.Warnings)))

	schema.Finish(started)
	return schema, nil
}

// optional records a failure of a non-essential read. Missing privileges
// downgrade the access level; anything else is only a warning.
func (a *Adapter) optional(schema *models.DatabaseSchema, what string, err error) {
	classified := datasource.ClassifyQueryError("collect "+what, err, classifyError)
	if errors.Is(classified, apperrors.ErrInsufficientPrivileges) {
		schema.DatabaseInfo.AccessLevel = models.AccessLevelLimited
	}
	schema.AddWarning("could not collect %s: %s", what, classified.Error())
	a.logger.Warn("Partial schema collection", zap.String("object", what), zap.String("error", classified.Error()))
}

// queryCtx bounds one server round trip, or one collection's inference
// scan, by the configured query timeout.
func (a *Adapter) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.conn.QueryTimeout)
}

func (a *Adapter) serverVersion(ctx context.Context) (string, error) {
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	var build struct {
		Version string `bson:"version"`
	}
	err := a.client.Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&build)
	return build.Version, err
}

func (a *Adapter) databaseSize(ctx context.Context, name string) (int64, error) {
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	var stats struct {
		DataSize  float64 `bson:"dataSize"`
		IndexSize float64 `bson:"indexSize"`
	}
	err := a.client.Database(name).RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}}).Decode(&stats)
	return int64(stats.DataSize + stats.IndexSize), err
}

// collectDatabase adds the collections and views of one database.
func (a *Adapter) collectDatabase(ctx context.Context, schema *models.DatabaseSchema, name string) error {
	db := a.client.Database(name)
	listCtx, cancel := a.queryCtx(ctx)
	specs, err := db.ListCollectionSpecifications(listCtx, bson.D{})
	cancel()
	if err != nil {
		return err
	}

	coll := a.cfg.Collection
	for _, spec := range specs {
		if strings.HasPrefix(spec.Name, "system.") && !coll.IncludeSystemTables {
			continue
		}

		if spec.Type == "view" {
			if !coll.IncludeViews {
				continue
			}
			view, err := a.inferView(ctx, db, spec)
			if err != nil {
				a.optional(schema, "view "+name+"."+spec.Name, err)
				continue
			}
			schema.Views = append(schema.Views, view)
			continue
		}

		inferred, err := a.infer(ctx, db.Collection(spec.Name))
		if err != nil {
			a.optional(schema, "collection "+name+"."+spec.Name, err)
			continue
		}
		table := inferred.ToTable()
		for _, w := range inferred.Warnings {
			schema.AddWarning("%s", w)
		}

		countCtx, cancel := a.queryCtx(ctx)
		if n, err := db.Collection(spec.Name).EstimatedDocumentCount(countCtx); err == nil {
			table.RowCount = &n
		}
		cancel()
		if coll.IncludeConstraints {
			if validator := spec.Options.Lookup("validator"); validator.Type == bson.TypeEmbeddedDocument {
				c := models.Constraint{
					Name:        spec.Name + "_validator",
					Table:       spec.Name,
					Schema:      name,
					Type:        models.ConstraintCheck,
					Columns:     []string{},
					CheckClause: validator.String(),
				}
				table.Constraints = append(table.Constraints, c)
				schema.Constraints = append(schema.Constraints, c)
			}
		}
		if coll.IncludeIndexes {
			indexes, err := a.collectIndexes(ctx, db.Collection(spec.Name))
			if err != nil {
				a.optional(schema, "indexes of "+name+"."+spec.Name, err)
			} else {
				table.Indexes = indexes
				schema.Indexes = append(schema.Indexes, indexes...)
			}
		}
		schema.Tables = append(schema.Tables, table)
	}
	return nil
}

// infer reads up to MaxInferenceDocuments documents in natural order.
func (a *Adapter) infer(ctx context.Context, coll *mongo.Collection) (*models.InferredSchema, error) {
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	limit := int64(a.cfg.Collection.MaxInferenceDocuments)
	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	inferrer := NewSchemaInferrer(coll.Database().Name(), coll.Name())
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		if err := inferrer.Observe(doc); err != nil {
			return nil, err
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return inferrer.Finalize()
}

func (a *Adapter) inferView(ctx context.Context, db *mongo.Database, spec *mongo.CollectionSpecification) (models.View, error) {
	view := models.View{
		Name:    spec.Name,
		Schema:  db.Name(),
		Columns: []models.Column{},
	}
	if source, ok := spec.Options.Lookup("viewOn").StringValueOK(); ok {
		view.Definition = fmt.Sprintf("viewOn: %s, pipeline: %s", source, spec.Options.Lookup("pipeline").String())
	}
	inferred, err := a.infer(ctx, db.Collection(spec.Name))
	if err != nil {
		return view, err
	}
	view.Columns = inferred.ToTable().Columns
	return view, nil
}

// collectIndexes converts index specifications. Key values of 1 and -1 give
// the direction; string values ("text", "2dsphere", "hashed") give the type.
func (a *Adapter) collectIndexes(ctx context.Context, coll *mongo.Collection) ([]models.Index, error) {
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	specs, err := coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return nil, err
	}

	indexes := make([]models.Index, 0, len(specs))
	for _, spec := range specs {
		idx := models.Index{
			Name:      spec.Name,
			Table:     coll.Name(),
			Schema:    coll.Database().Name(),
			Columns:   []models.IndexColumn{},
			IsPrimary: spec.Name == "_id_",
			IsUnique:  spec.Name == "_id_" || (spec.Unique != nil && *spec.Unique),
		}
		elems, err := spec.KeysDocument.Elements()
		if err != nil {
			return nil, err
		}
		for _, e := range elems {
			col := models.IndexColumn{Name: e.Key(), Direction: models.Ascending}
			v := e.Value()
			if kind, ok := v.StringValueOK(); ok {
				idx.IndexType = kind
				col.Direction = ""
			} else if n, ok := v.AsInt64OK(); ok && n < 0 {
				col.Direction = models.Descending
			}
			idx.Columns = append(idx.Columns, col)
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}
