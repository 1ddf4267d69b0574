package typemap

import (
	"strings"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// Postgres maps a PostgreSQL type. nativeType may be the information_schema
// data_type, the pg_type udt_name ("int4", "_text") or a formatted type
// ("character varying(64)[]").
func Postgres(nativeType string, length, precision, scale *int) models.UnifiedDataType {
	d := ParseDeclaration(nativeType)

	// udt names of array types carry a leading underscore.
	if d.ArrayDepth == 0 && strings.HasPrefix(d.Base, "_") && len(d.Base) > 1 {
		elemName := strings.TrimSpace(nativeType)[1:]
		return models.ArrayType(Postgres(elemName, length, precision, scale))
	}
	if d.ArrayDepth > 0 {
		elem := postgresScalar(nativeType, d, length, precision, scale)
		return wrapArray(elem, d.ArrayDepth)
	}
	if d.Base == "array" {
		// information_schema reports ARRAY without the element type.
		return custom(nativeType)
	}
	return postgresScalar(nativeType, d, length, precision, scale)
}

func postgresScalar(nativeType string, d Declaration, length, precision, scale *int) models.UnifiedDataType {
	switch d.Base {
	case "smallint", "int2", "smallserial", "serial2":
		return models.IntegerType(16, true)
	case "integer", "int", "int4", "serial", "serial4":
		return models.IntegerType(32, true)
	case "bigint", "int8", "bigserial", "serial8":
		return models.IntegerType(64, true)
	case "oid", "xid", "cid", "regclass", "regproc", "regtype":
		return models.IntegerType(32, false)

	case "numeric", "decimal":
		return decimalType(pick(precision, d.Param(0)), pick(scale, d.Param(1)))
	case "real", "float4":
		return models.FloatType(models.IntPtr(24))
	case "double precision", "float8":
		return models.FloatType(models.IntPtr(53))
	case "float":
		if p := pick(precision, d.Param(0)); p != nil {
			if *p <= 24 {
				return models.FloatType(models.IntPtr(24))
			}
			return models.FloatType(models.IntPtr(53))
		}
		return models.FloatType(models.IntPtr(53))

	case "boolean", "bool":
		return models.BooleanType()
	case "bit":
		// bit without a length is bit(1).
		return bitType(pick(length, d.Param(0)))
	case "bit varying", "varbit":
		return models.BinaryType(nil)

	case "character varying", "varchar", "character", "char", "bpchar":
		return models.StringType(positive(pick(length, d.Param(0))))
	case "\"char\"":
		return models.StringType(models.IntPtr(1))
	case "text", "citext":
		return models.StringType(nil)
	case "name":
		return models.StringType(models.IntPtr(63))

	case "timestamp", "timestamp without time zone":
		return models.DateTimeType(false)
	case "timestamptz", "timestamp with time zone":
		return models.DateTimeType(true)
	case "date":
		return models.DateType()
	case "time", "time without time zone":
		return models.TimeType(false)
	case "timetz", "time with time zone":
		return models.TimeType(true)

	case "bytea":
		return models.BinaryType(nil)
	case "uuid":
		return models.UUIDType()
	case "json", "jsonb":
		return models.JSONType()
	}
	// interval, money, inet, cidr, macaddr, geometry, enums, domains, ...
	return custom(strings.TrimRight(strings.TrimSpace(nativeType), "[]"))
}
