package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

func fieldByName(t *testing.T, s *models.InferredSchema, name string) models.InferredField {
	t.Helper()
	for _, f := range s.Fields {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("field %q not inferred", name)
	return models.InferredField{}
}

func TestSchemaInferrer(t *testing.T) {
	inf := NewSchemaInferrer("app", "users")
	docs := []bson.D{
		{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "email", Value: "a@example.com"},
			{Key: "age", Value: int32(31)},
			{Key: "address", Value: bson.D{{Key: "city", Value: "Oslo"}, {Key: "zip", Value: "0150"}}},
			{Key: "tags", Value: bson.A{"a", "b"}},
		},
		{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "email", Value: nil},
			{Key: "age", Value: "unknown"},
			{Key: "created_at", Value: primitive.NewDateTimeFromTime(time.Now())},
			{Key: "tags", Value: bson.A{}},
		},
	}
	for _, d := range docs {
		require.NoError(t, inf.Observe(d))
	}
	assert.Equal(t, 2, inf.Documents())

	s, err := inf.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 2, s.DocumentsAnalyzed)

	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
		assert.Equal(t, i+1, f.OrdinalPosition)
	}
	assert.Equal(t, []string{"_id", "email", "age", "address", "address.city", "address.zip", "tags", "created_at"}, names)

	id := fieldByName(t, s, "_id")
	assert.True(t, id.IsPrimaryKey)
	assert.True(t, id.IsAutoIncrement)
	assert.False(t, id.IsNullable)
	assert.Equal(t, models.StringType(models.IntPtr(24)), id.DataType)

	email := fieldByName(t, s, "email")
	assert.True(t, email.IsNullable, "null observed")
	assert.Equal(t, models.StringType(nil), email.DataType)
	assert.Equal(t, map[string]int{"string": 1, "null": 1}, email.ObservedTypes)

	// The last non-null value decides the type.
	age := fieldByName(t, s, "age")
	assert.Equal(t, models.StringType(nil), age.DataType)
	assert.True(t, age.HasMixedTypes())
	assert.False(t, age.IsNullable)
	require.Len(t, s.Warnings, 1)
	assert.Contains(t, s.Warnings[0], "users.age")
	assert.Contains(t, s.Warnings[0], "int, string")
	assert.NotContains(t, s.Warnings[0], "unknown", "sample values never appear in warnings")

	assert.Equal(t, models.JSONType(), fieldByName(t, s, "address").DataType)
	city := fieldByName(t, s, "address.city")
	assert.Equal(t, 1, city.OccurrenceCount)
	assert.True(t, city.IsNullable, "missing from one document")

	assert.Equal(t, models.ArrayType(models.CustomDataType("unknown")), fieldByName(t, s, "tags").DataType)
	assert.Equal(t, models.DateTimeType(true), fieldByName(t, s, "created_at").DataType)

	table := s.ToTable()
	assert.NoError(t, table.Validate())
}

func TestSchemaInferrer_AllNullField(t *testing.T) {
	inf := NewSchemaInferrer("app", "events")
	require.NoError(t, inf.Observe(bson.D{{Key: "deleted_at", Value: nil}}))
	require.NoError(t, inf.Observe(bson.D{{Key: "deleted_at", Value: primitive.Null{}}}))

	s, err := inf.Finalize()
	require.NoError(t, err)
	f := fieldByName(t, s, "deleted_at")
	assert.Equal(t, models.CustomDataType("null"), f.DataType)
	assert.True(t, f.IsNullable)
	assert.Empty(t, s.Warnings)
}

func TestSchemaInferrer_MaxDepth(t *testing.T) {
	doc := bson.D{{Key: "leaf", Value: int64(1)}}
	for i := 0; i < MaxInferenceDepth+2; i++ {
		doc = bson.D{{Key: "n", Value: doc}}
	}

	inf := NewSchemaInferrer("app", "deep")
	require.NoError(t, inf.Observe(doc))
	s, err := inf.Finalize()
	require.NoError(t, err)

	require.Len(t, s.Fields, MaxInferenceDepth)
	last := s.Fields[len(s.Fields)-1]
	assert.Equal(t, models.JSONType(), last.DataType)
	for _, f := range s.Fields {
		assert.NotContains(t, f.Name, "leaf")
	}
}

func TestSchemaInferrer_Finalized(t *testing.T) {
	inf := NewSchemaInferrer("app", "users")
	_, err := inf.Finalize()
	require.NoError(t, err)

	assert.ErrorIs(t, inf.Observe(bson.D{{Key: "a", Value: 1}}), ErrInferrerFinalized)
	_, err = inf.Finalize()
	assert.ErrorIs(t, err, ErrInferrerFinalized)
}

func TestSchemaInferrer_MapDocument(t *testing.T) {
	inf := NewSchemaInferrer("app", "users")
	require.NoError(t, inf.Observe(bson.D{{Key: "meta", Value: bson.M{"b": true, "a": 1.5}}}))
	s, err := inf.Finalize()
	require.NoError(t, err)

	assert.Equal(t, "meta.a", s.Fields[1].Name)
	assert.Equal(t, models.FloatType(models.IntPtr(53)), s.Fields[1].DataType)
	assert.Equal(t, models.BooleanType(), s.Fields[2].DataType)
}
