package mongodb

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/typemap"
)

// ErrInferrerFinalized is returned by a SchemaInferrer after Finalize.
var ErrInferrerFinalized = errors.New("schema inferrer already finalized")

// MaxInferenceDepth bounds recursion into embedded documents. Documents
// nested deeper are recorded as a single Json field.
const MaxInferenceDepth = 10

// idField is the server-generated document key.
const idField = "_id"

type fieldStats struct {
	types     map[string]int
	count     int
	sawNull   bool
	sample    any
	hasSample bool
}

// SchemaInferrer accumulates field statistics over sampled documents of one
// collection. It is not safe for concurrent use.
type SchemaInferrer struct {
	database   string
	collection string
	fields     map[string]*fieldStats
	order      []string
	documents  int
	finalized  bool
}

// NewSchemaInferrer returns an empty accumulator for database.collection.
func NewSchemaInferrer(database, collection string) *SchemaInferrer {
	return &SchemaInferrer{
		database:   database,
		collection: collection,
		fields:     make(map[string]*fieldStats),
	}
}

// Observe records every field of doc, embedded documents included under
// dot-separated paths.
func (s *SchemaInferrer) Observe(doc bson.D) error {
	if s.finalized {
		return ErrInferrerFinalized
	}
	s.documents++
	s.walk(doc, "", 1)
	return nil
}

// Documents returns the number of documents observed so far.
func (s *SchemaInferrer) Documents() int {
	return s.documents
}

func (s *SchemaInferrer) walk(doc bson.D, prefix string, depth int) {
	for _, e := range doc {
		path := prefix + e.Key
		s.record(path, e.Value)
		if depth >= MaxInferenceDepth {
			continue
		}
		switch nested := e.Value.(type) {
		case bson.D:
			s.walk(nested, path+".", depth+1)
		case bson.M:
			s.walk(sortedDoc(nested), path+".", depth+1)
		}
	}
}

func (s *SchemaInferrer) record(path string, v any) {
	f, ok := s.fields[path]
	if !ok {
		f = &fieldStats{types: make(map[string]int)}
		s.fields[path] = f
		s.order = append(s.order, path)
	}
	f.count++
	name := typemap.BSONTypeName(v)
	f.types[name]++
	if name == typemap.BSONNull || name == typemap.BSONUndefined {
		f.sawNull = true
		return
	}
	f.sample = v
	f.hasSample = true
}

// Finalize resolves every field's type from its last non-null value and
// returns the inferred schema. The accumulator cannot be used afterwards.
func (s *SchemaInferrer) Finalize() (*models.InferredSchema, error) {
	if s.finalized {
		return nil, ErrInferrerFinalized
	}
	s.finalized = true

	out := &models.InferredSchema{
		Collection:        s.collection,
		Database:          s.database,
		DocumentsAnalyzed: s.documents,
		Fields:            make([]models.InferredField, 0, len(s.order)),
		Warnings:          []string{},
	}
	for i, path := range s.order {
		f := s.fields[path]
		field := models.InferredField{
			Name:            path,
			ObservedTypes:   f.types,
			DataType:        models.CustomDataType(typemap.BSONNull),
			OccurrenceCount: f.count,
			IsNullable:      f.count < s.documents || f.sawNull,
			OrdinalPosition: i + 1,
		}
		if f.hasSample {
			field.DataType = typemap.BSONValue(f.sample)
		}
		if path == idField {
			field.IsPrimaryKey = true
			field.IsAutoIncrement = true
			field.IsNullable = false
		}
		if field.HasMixedTypes() {
			out.Warnings = append(out.Warnings, fmt.Sprintf(
				"field %s.%s has mixed types (%s); using %s",
				s.collection, path, strings.Join(nonNullTypes(f.types), ", "), field.DataType))
		}
		out.Fields = append(out.Fields, field)
	}

	s.fields = nil
	s.order = nil
	return out, nil
}

func nonNullTypes(types map[string]int) []string {
	names := make([]string, 0, len(types))
	for name := range types {
		if name != typemap.BSONNull && name != typemap.BSONUndefined {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// sortedDoc orders a map-decoded document by key so that discovery order is
// stable.
func sortedDoc(m bson.M) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: m[k]})
	}
	return doc
}
