package typemap

import (
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// MySQL maps a MySQL or MariaDB type. Pass information_schema COLUMN_TYPE
// ("tinyint(1)", "int(10) unsigned") rather than DATA_TYPE so that display
// width and signedness survive.
func MySQL(nativeType string, length, precision, scale *int) models.UnifiedDataType {
	d := ParseDeclaration(nativeType)
	signed := !d.Unsigned

	switch d.Base {
	case "tinyint", "int1":
		// Only an explicit display width of 1 marks a boolean flag.
		if w := pick(length, d.Param(0)); w != nil && *w == 1 {
			return models.BooleanType()
		}
		return models.IntegerType(8, signed)
	case "bool", "boolean":
		return models.BooleanType()
	case "smallint", "int2":
		return models.IntegerType(16, signed)
	case "mediumint", "int3", "middleint":
		return models.IntegerType(24, signed)
	case "int", "integer", "int4":
		return models.IntegerType(32, signed)
	case "bigint", "int8":
		return models.IntegerType(64, signed)
	case "serial":
		return models.IntegerType(64, false)
	case "bit":
		return bitType(pick(length, d.Param(0)))

	case "decimal", "numeric", "dec", "fixed":
		p, s := pick(precision, d.Param(0)), pick(scale, d.Param(1))
		if p == nil && s == nil {
			// DECIMAL alone is DECIMAL(10,0).
			p, s = models.IntPtr(10), models.IntPtr(0)
		}
		if s == nil {
			s = models.IntPtr(0)
		}
		return decimalType(p, s)
	case "float", "float4":
		if p := d.Param(0); p != nil && len(d.Params) == 1 && *p > 24 {
			return models.FloatType(models.IntPtr(53))
		}
		return models.FloatType(models.IntPtr(24))
	case "double", "double precision", "real", "float8":
		return models.FloatType(models.IntPtr(53))

	case "char", "varchar", "character", "character varying", "nchar", "nvarchar", "national char", "national varchar":
		return models.StringType(positive(pick(length, d.Param(0))))
	case "tinytext":
		return models.StringType(models.IntPtr(255))
	case "text":
		return models.StringType(models.IntPtr(65535))
	case "mediumtext":
		return models.StringType(models.IntPtr(16777215))
	case "longtext", "long varchar", "long":
		return models.StringType(nil)

	case "binary", "varbinary":
		return models.BinaryType(positive(pick(length, d.Param(0))))
	case "tinyblob":
		return models.BinaryType(models.IntPtr(255))
	case "blob":
		return models.BinaryType(models.IntPtr(65535))
	case "mediumblob":
		return models.BinaryType(models.IntPtr(16777215))
	case "longblob", "long varbinary":
		return models.BinaryType(nil)

	case "date":
		return models.DateType()
	case "datetime":
		return models.DateTimeType(false)
	case "timestamp":
		// TIMESTAMP is stored as UTC and converted to the session zone.
		return models.DateTimeType(true)
	case "time":
		return models.TimeType(false)
	case "year":
		return models.IntegerType(16, false)

	case "json":
		return models.JSONType()
	case "uuid":
		// MariaDB 10.7+
		return models.UUIDType()
	}
	// enum, set, geometry, point, polygon, vector, ...
	return custom(nativeType)
}
