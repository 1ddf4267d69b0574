package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

func col(name string, dt models.UnifiedDataType) ColumnCandidate {
	return ColumnCandidate{Name: name, DataType: dt}
}

func TestSelectOrderingStrategy(t *testing.T) {
	ts := models.DateTimeType(true)
	text := models.StringType(nil)

	tests := []struct {
		name  string
		c     OrderingCandidates
		hints []string
		want  models.OrderingStrategy
	}{
		{
			name: "primary key wins over everything",
			c: OrderingCandidates{
				PrimaryKey:  []string{"tenant_id", "id"},
				Columns:     []ColumnCandidate{col("created_at", ts), {Name: "seq", IsAutoIncrement: true}},
				RowIDColumn: "ctid",
			},
			want: models.PrimaryKeyOrdering("tenant_id", "id"),
		},
		{
			name: "exact timestamp name",
			c:    OrderingCandidates{Columns: []ColumnCandidate{col("name", text), col("updated_at", ts), col("created_at", ts)}},
			want: models.TimestampOrdering("created_at", models.Descending),
		},
		{
			name: "exact match ignores case",
			c:    OrderingCandidates{Columns: []ColumnCandidate{col("CreatedAt", ts)}},
			want: models.TimestampOrdering("CreatedAt", models.Descending),
		},
		{
			name:  "hint before built-in names",
			c:     OrderingCandidates{Columns: []ColumnCandidate{col("created_at", ts), col("event_time", ts)}},
			hints: []string{"event_time"},
			want:  models.TimestampOrdering("event_time", models.Descending),
		},
		{
			name: "name match requires a temporal type",
			c:    OrderingCandidates{Columns: []ColumnCandidate{col("created_at", text)}, RowIDColumn: "rowid"},
			want: models.SystemRowIDOrdering("rowid"),
		},
		{
			name: "partial match",
			c:    OrderingCandidates{Columns: []ColumnCandidate{col("row_inserted_on", models.DateType())}},
			want: models.TimestampOrdering("row_inserted_on", models.Descending),
		},
		{
			name: "auto increment",
			c:    OrderingCandidates{Columns: []ColumnCandidate{col("label", text), {Name: "seq", DataType: models.IntegerType(64, true), IsAutoIncrement: true}}},
			want: models.AutoIncrementOrdering("seq"),
		},
		{
			name: "row id",
			c:    OrderingCandidates{Columns: []ColumnCandidate{col("label", text)}, RowIDColumn: "%%physloc%%"},
			want: models.SystemRowIDOrdering("%%physloc%%"),
		},
		{
			name: "unordered",
			c:    OrderingCandidates{Columns: []ColumnCandidate{col("label", text)}},
			want: models.Unordered(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectOrderingStrategy(tt.c, tt.hints))
		})
	}
}

func TestCandidatesFromTable(t *testing.T) {
	table := &models.Table{
		Name:       "users",
		PrimaryKey: &models.PrimaryKey{Name: "users_pkey", Columns: []string{"id"}},
		Columns: []models.Column{
			{Name: "id", DataType: models.IntegerType(32, true), IsAutoIncrement: true},
			{Name: "created_at", DataType: models.DateTimeType(false)},
		},
	}
	c := CandidatesFromTable(table)
	assert.Equal(t, []string{"id"}, c.PrimaryKey)
	assert.Len(t, c.Columns, 2)
	assert.True(t, c.Columns[0].IsAutoIncrement)
	assert.Empty(t, c.RowIDColumn)
}
