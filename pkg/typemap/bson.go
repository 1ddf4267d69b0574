package typemap

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// BSON type names as used by the $type query operator.
const (
	BSONDouble     = "double"
	BSONString     = "string"
	BSONObject     = "object"
	BSONArray      = "array"
	BSONBinary     = "binData"
	BSONUndefined  = "undefined"
	BSONObjectID   = "objectId"
	BSONBool       = "bool"
	BSONDate       = "date"
	BSONNull       = "null"
	BSONRegex      = "regex"
	BSONDBPointer  = "dbPointer"
	BSONJavaScript = "javascript"
	BSONSymbol     = "symbol"
	BSONInt        = "int"
	BSONTimestamp  = "timestamp"
	BSONLong       = "long"
	BSONDecimal    = "decimal"
	BSONMinKey     = "minKey"
	BSONMaxKey     = "maxKey"
)

const (
	binarySubtypeUUIDOld byte = 0x03
	binarySubtypeUUID    byte = 0x04
)

// BSONTypeName returns the BSON type name of a decoded document value.
// Values outside the BSON type system report their Go kind as "unknown".
func BSONTypeName(v any) string {
	switch v.(type) {
	case nil, primitive.Null:
		return BSONNull
	case float64, float32:
		return BSONDouble
	case string:
		return BSONString
	case primitive.D, primitive.M, map[string]any:
		return BSONObject
	case primitive.A, []any:
		return BSONArray
	case primitive.Binary, []byte:
		return BSONBinary
	case primitive.Undefined:
		return BSONUndefined
	case primitive.ObjectID:
		return BSONObjectID
	case bool:
		return BSONBool
	case primitive.DateTime, time.Time:
		return BSONDate
	case primitive.Regex:
		return BSONRegex
	case primitive.DBPointer:
		return BSONDBPointer
	case primitive.JavaScript, primitive.CodeWithScope:
		return BSONJavaScript
	case primitive.Symbol:
		return BSONSymbol
	case int32, int16, int8:
		return BSONInt
	case primitive.Timestamp:
		return BSONTimestamp
	case int64, int:
		return BSONLong
	case primitive.Decimal128:
		return BSONDecimal
	case primitive.MinKey:
		return BSONMinKey
	case primitive.MaxKey:
		return BSONMaxKey
	default:
		return "unknown"
	}
}

// BSONValue maps a decoded document value to a unified type. Embedded
// documents become Json; arrays take the type of their first non-null element.
func BSONValue(v any) models.UnifiedDataType {
	switch val := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return models.CustomDataType(BSONNull)
	case primitive.ObjectID:
		return models.StringType(models.IntPtr(24))
	case string:
		return models.StringType(nil)
	case int32, int16, int8:
		return models.IntegerType(32, true)
	case int64, int:
		return models.IntegerType(64, true)
	case float64:
		return models.FloatType(models.IntPtr(53))
	case float32:
		return models.FloatType(models.IntPtr(24))
	case primitive.Decimal128:
		return models.FloatType(models.IntPtr(34))
	case bool:
		return models.BooleanType()
	case primitive.DateTime, time.Time, primitive.Timestamp:
		return models.DateTimeType(true)
	case primitive.Binary:
		if (val.Subtype == binarySubtypeUUID || val.Subtype == binarySubtypeUUIDOld) && len(val.Data) == 16 {
			return models.UUIDType()
		}
		return models.BinaryType(nil)
	case []byte:
		return models.BinaryType(nil)
	case primitive.D, primitive.M, map[string]any:
		return models.JSONType()
	case primitive.A:
		return arrayOf([]any(val))
	case []any:
		return arrayOf(val)
	default:
		return models.CustomDataType(BSONTypeName(v))
	}
}

func arrayOf(items []any) models.UnifiedDataType {
	for _, item := range items {
		switch item.(type) {
		case nil, primitive.Null, primitive.Undefined:
			continue
		}
		return models.ArrayType(BSONValue(item))
	}
	return models.ArrayType(models.CustomDataType("unknown"))
}
