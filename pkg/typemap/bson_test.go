package typemap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// decoded round-trips a document through the driver so values have the
// concrete Go types a cursor would hand back.
func decoded(t *testing.T, doc bson.D) map[string]any {
	t.Helper()
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var out bson.D
	require.NoError(t, bson.Unmarshal(raw, &out))
	m := make(map[string]any, len(out))
	for _, e := range out {
		m[e.Key] = e.Value
	}
	return m
}

func TestBSONValue(t *testing.T) {
	uuidBytes := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	doc := decoded(t, bson.D{
		{Key: "_id", Value: primitive.NewObjectID()},
		{Key: "name", Value: "ada"},
		{Key: "age", Value: int32(36)},
		{Key: "views", Value: int64(1 << 40)},
		{Key: "score", Value: 9.5},
		{Key: "active", Value: true},
		{Key: "created_at", Value: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{Key: "token", Value: primitive.Binary{Subtype: 0x04, Data: uuidBytes}},
		{Key: "blob", Value: primitive.Binary{Subtype: 0x80, Data: []byte("x")}},
		{Key: "address", Value: bson.D{{Key: "city", Value: "London"}}},
		{Key: "tags", Value: bson.A{nil, "a", "b"}},
		{Key: "empty", Value: bson.A{}},
		{Key: "nothing", Value: nil},
		{Key: "price", Value: primitive.NewDecimal128(0, 125)},
	})

	tests := map[string]models.UnifiedDataType{
		"_id":        models.StringType(models.IntPtr(24)),
		"name":       models.StringType(nil),
		"age":        models.IntegerType(32, true),
		"views":      models.IntegerType(64, true),
		"score":      models.FloatType(models.IntPtr(53)),
		"active":     models.BooleanType(),
		"created_at": models.DateTimeType(true),
		"token":      models.UUIDType(),
		"blob":       models.BinaryType(nil),
		"address":    models.JSONType(),
		"tags":       models.ArrayType(models.StringType(nil)),
		"empty":      models.ArrayType(models.CustomDataType("unknown")),
		"nothing":    models.CustomDataType("null"),
		"price":      models.FloatType(models.IntPtr(34)),
	}
	for field, want := range tests {
		t.Run(field, func(t *testing.T) {
			assert.Equal(t, want, BSONValue(doc[field]))
		})
	}
}

func TestBSONValue_AllNullArray(t *testing.T) {
	got := BSONValue(primitive.A{nil, primitive.Null{}})
	assert.Equal(t, models.ArrayType(models.CustomDataType("unknown")), got)
}

func TestBSONValue_NestedArray(t *testing.T) {
	got := BSONValue(primitive.A{primitive.A{int32(1)}})
	assert.Equal(t, models.ArrayType(models.ArrayType(models.IntegerType(32, true))), got)
}

func TestBSONTypeName(t *testing.T) {
	tests := []struct {
		v    any
		want string
	}{
		{nil, BSONNull},
		{"s", BSONString},
		{int32(1), BSONInt},
		{int64(1), BSONLong},
		{1.5, BSONDouble},
		{primitive.NewObjectID(), BSONObjectID},
		{primitive.D{}, BSONObject},
		{primitive.A{}, BSONArray},
		{primitive.DateTime(0), BSONDate},
		{primitive.Timestamp{T: 1}, BSONTimestamp},
		{primitive.Regex{Pattern: "a"}, BSONRegex},
		{primitive.MinKey{}, BSONMinKey},
		{struct{}{}, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BSONTypeName(tt.v))
	}
}

func TestBSONValue_UnknownIsCustom(t *testing.T) {
	assert.Equal(t, models.CustomDataType(BSONRegex), BSONValue(primitive.Regex{Pattern: "^a"}))
	assert.Equal(t, models.CustomDataType("unknown"), BSONValue(struct{}{}))
}
