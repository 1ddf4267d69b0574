package typemap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

type mapCase struct {
	native    string
	length    *int
	precision *int
	scale     *int
	want      models.UnifiedDataType
}

var (
	p = models.IntPtr
)

func runCases(t *testing.T, mapper MapperFunc, cases []mapCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.native, func(t *testing.T) {
			got := mapper(tc.native, tc.length, tc.precision, tc.scale)
			assert.Equal(t, tc.want, got)
			// Mapping is pure.
			assert.Equal(t, got, mapper(tc.native, tc.length, tc.precision, tc.scale))
		})
	}
}

func TestParseDeclaration(t *testing.T) {
	tests := []struct {
		in   string
		want Declaration
	}{
		{"DECIMAL(10,2) UNSIGNED", Declaration{Base: "decimal", Params: []string{"10", "2"}, Unsigned: true}},
		{"character varying(64)[]", Declaration{Base: "character varying", Params: []string{"64"}, ArrayDepth: 1}},
		{"integer[][]", Declaration{Base: "integer", ArrayDepth: 2}},
		{"int ARRAY", Declaration{Base: "int", ArrayDepth: 1}},
		{"timestamp(3) with time zone", Declaration{Base: "timestamp with time zone", Params: []string{"3"}}},
		{"int(10) unsigned zerofill", Declaration{Base: "int", Params: []string{"10"}, Unsigned: true, Zerofill: true}},
		{"enum('a,b','c')", Declaration{Base: "enum", Params: []string{"'a,b'", "'c'"}}},
		{"  ", Declaration{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDeclaration(tt.in))
		})
	}
}

func TestDeclaration_Param(t *testing.T) {
	d := ParseDeclaration("nvarchar(max)")
	assert.True(t, d.IsMax())
	assert.Nil(t, d.Param(0))
	assert.Nil(t, d.Param(3))
	assert.Equal(t, p(12), ParseDeclaration("numeric(12, 4)").Param(0))
}

func TestDecimalRule(t *testing.T) {
	tests := []struct {
		name             string
		precision, scale *int
		want             models.UnifiedDataType
	}{
		{"precision 4 scale 0", p(4), p(0), models.IntegerType(16, true)},
		{"precision 5 scale 0", p(5), p(0), models.IntegerType(32, true)},
		{"precision 9 scale 0", p(9), p(0), models.IntegerType(32, true)},
		{"precision 10 scale 0", p(10), p(0), models.IntegerType(64, true)},
		{"no precision scale 0", nil, p(0), models.IntegerType(64, true)},
		{"scale 2", p(10), p(2), models.FloatType(p(10))},
		{"no scale", p(10), nil, models.FloatType(p(10))},
		{"unconstrained", nil, nil, models.FloatType(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decimalType(tt.precision, tt.scale))
		})
	}
}

func TestPostgres(t *testing.T) {
	runCases(t, Postgres, []mapCase{
		{native: "integer", want: models.IntegerType(32, true)},
		{native: "int4", want: models.IntegerType(32, true)},
		{native: "smallint", want: models.IntegerType(16, true)},
		{native: "bigserial", want: models.IntegerType(64, true)},
		{native: "numeric", precision: p(4), scale: p(0), want: models.IntegerType(16, true)},
		{native: "numeric(12,2)", want: models.FloatType(p(12))},
		{native: "numeric", want: models.FloatType(nil)},
		{native: "double precision", want: models.FloatType(p(53))},
		{native: "real", want: models.FloatType(p(24))},
		{native: "boolean", want: models.BooleanType()},
		{native: "bit", want: models.BooleanType()},
		{native: "bit", length: p(1), want: models.BooleanType()},
		{native: "bit", length: p(16), want: models.BinaryType(p(2))},
		{native: "character varying", length: p(255), want: models.StringType(p(255))},
		{native: "varchar(64)", want: models.StringType(p(64))},
		{native: "text", want: models.StringType(nil)},
		{native: "timestamp with time zone", want: models.DateTimeType(true)},
		{native: "timestamp(6) without time zone", want: models.DateTimeType(false)},
		{native: "timetz", want: models.TimeType(true)},
		{native: "date", want: models.DateType()},
		{native: "uuid", want: models.UUIDType()},
		{native: "jsonb", want: models.JSONType()},
		{native: "bytea", want: models.BinaryType(nil)},
		{native: "_int4", want: models.ArrayType(models.IntegerType(32, true))},
		{native: "_text", want: models.ArrayType(models.StringType(nil))},
		{native: "integer[]", want: models.ArrayType(models.IntegerType(32, true))},
		{native: "text[][]", want: models.ArrayType(models.ArrayType(models.StringType(nil)))},
		{native: "mood[]", want: models.ArrayType(models.CustomDataType("mood"))},
		{native: "ARRAY", want: models.CustomDataType("ARRAY")},
		{native: "inet", want: models.CustomDataType("inet")},
		{native: "geometry", want: models.CustomDataType("geometry")},
		{native: "", want: models.CustomDataType("unknown")},
	})
}

func TestMySQL(t *testing.T) {
	runCases(t, MySQL, []mapCase{
		{native: "tinyint", want: models.IntegerType(8, true)},
		{native: "tinyint(1)", want: models.BooleanType()},
		{native: "tinyint", length: p(1), want: models.BooleanType()},
		{native: "tinyint(4)", want: models.IntegerType(8, true)},
		{native: "tinyint(3) unsigned", want: models.IntegerType(8, false)},
		{native: "int(10) unsigned", want: models.IntegerType(32, false)},
		{native: "int", want: models.IntegerType(32, true)},
		{native: "bigint unsigned", want: models.IntegerType(64, false)},
		{native: "mediumint", want: models.IntegerType(24, true)},
		{native: "bit(1)", want: models.BooleanType()},
		{native: "decimal(4,0)", want: models.IntegerType(16, true)},
		{native: "decimal(10,2)", want: models.FloatType(p(10))},
		{native: "decimal", want: models.IntegerType(64, true)},
		{native: "float", want: models.FloatType(p(24))},
		{native: "double", want: models.FloatType(p(53))},
		{native: "varchar(255)", want: models.StringType(p(255))},
		{native: "varchar", length: p(100), want: models.StringType(p(100))},
		{native: "text", want: models.StringType(p(65535))},
		{native: "longtext", want: models.StringType(nil)},
		{native: "varbinary(16)", want: models.BinaryType(p(16))},
		{native: "datetime(6)", want: models.DateTimeType(false)},
		{native: "timestamp", want: models.DateTimeType(true)},
		{native: "year", want: models.IntegerType(16, false)},
		{native: "json", want: models.JSONType()},
		{native: "enum('a','b')", want: models.CustomDataType("enum('a','b')")},
		{native: "point", want: models.CustomDataType("point")},
	})
}

func TestSQLite(t *testing.T) {
	runCases(t, SQLite, []mapCase{
		{native: "INTEGER", want: models.IntegerType(32, true)},
		{native: "int", want: models.IntegerType(32, true)},
		{native: "BIGINT", want: models.IntegerType(64, true)},
		{native: "UNSIGNED BIG INT", want: models.IntegerType(64, false)},
		{native: "TINYINT", want: models.IntegerType(8, true)},
		{native: "TINYINT(1)", want: models.BooleanType()},
		{native: "VARCHAR(255)", want: models.StringType(p(255))},
		{native: "TEXT", want: models.StringType(nil)},
		{native: "REAL", want: models.FloatType(p(53))},
		{native: "NUMERIC(4,0)", want: models.IntegerType(16, true)},
		{native: "DECIMAL(10,5)", want: models.FloatType(p(10))},
		{native: "BOOLEAN", want: models.BooleanType()},
		{native: "DATETIME", want: models.DateTimeType(false)},
		{native: "DATE", want: models.DateType()},
		{native: "BLOB", want: models.BinaryType(nil)},
		{native: "", want: models.BinaryType(nil)},
		{native: "JSON", want: models.JSONType()},
		{native: "SMALLINTEGER", want: models.IntegerType(64, true)},
		{native: "VARYING CHARACTER(12)", want: models.StringType(p(12))},
		{native: "MEDIUMTEXT", want: models.StringType(nil)},
		{native: "DOUBLE PRECISION", want: models.FloatType(p(53))},
		{native: "GEOMETRY", want: models.CustomDataType("GEOMETRY")},
	})
}

func TestSQLServer(t *testing.T) {
	runCases(t, SQLServer, []mapCase{
		{native: "bit", want: models.BooleanType()},
		{native: "tinyint", want: models.IntegerType(8, false)},
		{native: "int", want: models.IntegerType(32, true)},
		{native: "bigint", want: models.IntegerType(64, true)},
		{native: "decimal", precision: p(3), scale: p(0), want: models.IntegerType(16, true)},
		{native: "numeric", precision: p(18), scale: p(4), want: models.FloatType(p(18))},
		{native: "money", want: models.FloatType(p(19))},
		{native: "float", precision: p(53), want: models.FloatType(p(53))},
		{native: "real", want: models.FloatType(p(24))},
		{native: "nvarchar", length: p(50), want: models.StringType(p(50))},
		{native: "nvarchar", length: p(-1), want: models.StringType(nil)},
		{native: "varchar(max)", want: models.StringType(nil)},
		{native: "varbinary", length: p(16), want: models.BinaryType(p(16))},
		{native: "rowversion", want: models.BinaryType(p(8))},
		{native: "datetime2", want: models.DateTimeType(false)},
		{native: "datetimeoffset", want: models.DateTimeType(true)},
		{native: "date", want: models.DateType()},
		{native: "time", want: models.TimeType(false)},
		{native: "uniqueidentifier", want: models.UUIDType()},
		{native: "xml", want: models.CustomDataType("xml")},
		{native: "geography", want: models.CustomDataType("geography")},
	})
}

func TestMappersNeverPanicOnGarbage(t *testing.T) {
	inputs := []string{"(", ")", "[]", "int(", "decimal(,)", "varchar(abc)", "\x00", "_", "ARRAY ARRAY", "enum('unterminated"}
	for _, mapper := range []MapperFunc{Postgres, MySQL, SQLite, SQLServer} {
		for _, in := range inputs {
			assert.NotPanics(t, func() {
				got := mapper(in, nil, nil, nil)
				assert.NotEmpty(t, got.Kind)
			}, "input %q", in)
		}
	}
}
