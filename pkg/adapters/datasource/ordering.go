package datasource

import (
	"strings"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// TimestampColumnNames are the exact column names treated as creation or
// modification timestamps, in priority order.
var TimestampColumnNames = []string{
	"created_at", "updated_at", "modified_at", "inserted_at", "timestamp",
	"created", "updated", "creation_date", "created_date", "create_time",
	"update_time", "last_modified", "date_created", "date_modified",
	"createdAt", "updatedAt",
}

// partialTimestampNames are substrings accepted when no exact name matches.
var partialTimestampNames = []string{"created", "inserted", "timestamp"}

// ColumnCandidate is what ordering detection needs to know about a column.
type ColumnCandidate struct {
	Name            string
	DataType        models.UnifiedDataType
	IsAutoIncrement bool
}

// OrderingCandidates is the catalog information an engine reads for one table.
type OrderingCandidates struct {
	PrimaryKey  []string // declared order
	Columns     []ColumnCandidate
	RowIDColumn string // engine row locator, "" when the table has none
}

// CandidatesFromTable builds candidates from a collected table.
func CandidatesFromTable(t *models.Table) OrderingCandidates {
	var c OrderingCandidates
	if t.PrimaryKey != nil {
		c.PrimaryKey = append(c.PrimaryKey, t.PrimaryKey.Columns...)
	}
	for _, col := range t.Columns {
		c.Columns = append(c.Columns, ColumnCandidate{
			Name:            col.Name,
			DataType:        col.DataType,
			IsAutoIncrement: col.IsAutoIncrement,
		})
	}
	return c
}

// SelectOrderingStrategy applies the ordering priority: primary key, exact
// timestamp name (hints first), partial timestamp name, auto-increment
// column, engine row id, unordered. Timestamp candidates must have a date or
// date-time type. Name matching ignores case.
func SelectOrderingStrategy(c OrderingCandidates, hints []string) models.OrderingStrategy {
	if len(c.PrimaryKey) > 0 {
		return models.PrimaryKeyOrdering(c.PrimaryKey...)
	}

	temporal := make([]ColumnCandidate, 0, len(c.Columns))
	for _, col := range c.Columns {
		if col.DataType.IsTemporal() {
			temporal = append(temporal, col)
		}
	}

	names := make([]string, 0, len(hints)+len(TimestampColumnNames))
	names = append(names, hints...)
	names = append(names, TimestampColumnNames...)
	for _, want := range names {
		for _, col := range temporal {
			if strings.EqualFold(col.Name, want) {
				return models.TimestampOrdering(col.Name, models.Descending)
			}
		}
	}

	for _, col := range temporal {
		lower := strings.ToLower(col.Name)
		for _, part := range partialTimestampNames {
			if strings.Contains(lower, part) {
				return models.TimestampOrdering(col.Name, models.Descending)
			}
		}
	}

	for _, col := range c.Columns {
		if col.IsAutoIncrement {
			return models.AutoIncrementOrdering(col.Name)
		}
	}

	if c.RowIDColumn != "" {
		return models.SystemRowIDOrdering(c.RowIDColumn)
	}
	return models.Unordered()
}
