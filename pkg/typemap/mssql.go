package typemap

import (
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// SQLServer maps a SQL Server system type name (sys.types.name). For the
// n-prefixed character types length is in characters; -1 means MAX.
func SQLServer(nativeType string, length, precision, scale *int) models.UnifiedDataType {
	d := ParseDeclaration(nativeType)
	maxLen := func() *int {
		if d.IsMax() {
			return nil
		}
		return positive(pick(length, d.Param(0)))
	}

	switch d.Base {
	case "bit":
		return models.BooleanType()
	case "tinyint":
		return models.IntegerType(8, false)
	case "smallint":
		return models.IntegerType(16, true)
	case "int":
		return models.IntegerType(32, true)
	case "bigint":
		return models.IntegerType(64, true)

	case "decimal", "numeric":
		return decimalType(pick(precision, d.Param(0)), pick(scale, d.Param(1)))
	case "money":
		return models.FloatType(models.IntPtr(19))
	case "smallmoney":
		return models.FloatType(models.IntPtr(10))
	case "real":
		return models.FloatType(models.IntPtr(24))
	case "float":
		// float(n): 1-24 is stored as real, 25-53 as double.
		if p := pick(precision, d.Param(0)); p != nil && *p <= 24 {
			return models.FloatType(models.IntPtr(24))
		}
		return models.FloatType(models.IntPtr(53))

	case "char", "varchar", "nchar", "nvarchar":
		return models.StringType(maxLen())
	case "text", "ntext":
		return models.StringType(nil)
	case "sysname":
		return models.StringType(models.IntPtr(128))

	case "binary", "varbinary":
		return models.BinaryType(maxLen())
	case "image":
		return models.BinaryType(nil)
	case "timestamp", "rowversion":
		return models.BinaryType(models.IntPtr(8))

	case "date":
		return models.DateType()
	case "datetime", "datetime2", "smalldatetime":
		return models.DateTimeType(false)
	case "datetimeoffset":
		return models.DateTimeType(true)
	case "time":
		return models.TimeType(false)

	case "uniqueidentifier":
		return models.UUIDType()
	case "json":
		return models.JSONType()
	}
	// xml, sql_variant, hierarchyid, geometry, geography, alias types
	return custom(nativeType)
}
