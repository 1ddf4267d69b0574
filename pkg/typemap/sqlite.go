package typemap

import (
	"strings"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// SQLite maps a declared SQLite column type. Declared types are free text,
// so well-known names are matched first and SQLite's affinity rules decide
// the rest.
func SQLite(nativeType string, length, precision, scale *int) models.UnifiedDataType {
	d := ParseDeclaration(nativeType)
	signed := !d.Unsigned

	switch d.Base {
	case "":
		// No declared type means BLOB affinity.
		return models.BinaryType(nil)
	case "tinyint":
		if w := pick(length, d.Param(0)); w != nil && *w == 1 {
			return models.BooleanType()
		}
		return models.IntegerType(8, signed)
	case "smallint", "int2":
		return models.IntegerType(16, signed)
	case "int", "integer", "mediumint":
		return models.IntegerType(32, signed)
	case "bigint", "int8", "big int":
		return models.IntegerType(64, signed)
	case "unsigned big int":
		return models.IntegerType(64, false)
	case "bool", "boolean", "bit":
		return models.BooleanType()

	case "numeric", "decimal":
		return decimalType(pick(precision, d.Param(0)), pick(scale, d.Param(1)))
	case "real", "float", "double", "double precision":
		return models.FloatType(models.IntPtr(53))

	case "varchar", "char", "character", "nchar", "nvarchar", "varying character", "native character":
		return models.StringType(positive(pick(length, d.Param(0))))
	case "text", "clob", "string":
		return models.StringType(nil)

	case "blob":
		return models.BinaryType(nil)
	case "date":
		return models.DateType()
	case "datetime", "timestamp":
		return models.DateTimeType(false)
	case "timestamptz":
		return models.DateTimeType(true)
	case "time":
		return models.TimeType(false)
	case "json", "jsonb":
		return models.JSONType()
	case "uuid", "guid":
		return models.UUIDType()
	}

	upper := strings.ToUpper(d.Base)
	switch {
	case strings.Contains(upper, "INT"):
		return models.IntegerType(64, signed)
	case strings.Contains(upper, "CHAR"), strings.Contains(upper, "CLOB"), strings.Contains(upper, "TEXT"):
		return models.StringType(positive(pick(length, d.Param(0))))
	case strings.Contains(upper, "BLOB"):
		return models.BinaryType(nil)
	case strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOA"), strings.Contains(upper, "DOUB"):
		return models.FloatType(models.IntPtr(53))
	}
	return custom(nativeType)
}
