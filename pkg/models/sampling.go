package models

import (
	"fmt"
	"strings"
	"time"
)

// OrderingKind identifies an OrderingStrategy variant.
type OrderingKind string

const (
	OrderingPrimaryKey    OrderingKind = "primary_key"
	OrderingTimestamp     OrderingKind = "timestamp"
	OrderingAutoIncrement OrderingKind = "auto_increment"
	OrderingSystemRowID   OrderingKind = "system_row_id"
	OrderingUnordered     OrderingKind = "unordered"
)

// OrderingStrategy describes how rows of a table can be deterministically
// ordered for sampling. Columns is set for PrimaryKey; Column for the
// single-column variants; Direction for Timestamp.
type OrderingStrategy struct {
	Kind      OrderingKind  `json:"kind"`
	Columns   []string      `json:"columns,omitempty"`
	Column    string        `json:"column,omitempty"`
	Direction SortDirection `json:"direction,omitempty"`
}

func PrimaryKeyOrdering(columns ...string) OrderingStrategy {
	return OrderingStrategy{Kind: OrderingPrimaryKey, Columns: append([]string(nil), columns...)}
}

// TimestampOrdering orders by a date/time column. Detection always uses Descending
// so the newest rows come first.
func TimestampOrdering(column string, direction SortDirection) OrderingStrategy {
	return OrderingStrategy{Kind: OrderingTimestamp, Column: column, Direction: direction}
}

func AutoIncrementOrdering(column string) OrderingStrategy {
	return OrderingStrategy{Kind: OrderingAutoIncrement, Column: column}
}

func SystemRowIDOrdering(column string) OrderingStrategy {
	return OrderingStrategy{Kind: OrderingSystemRowID, Column: column}
}

func Unordered() OrderingStrategy {
	return OrderingStrategy{Kind: OrderingUnordered}
}

// IsOrdered reports whether the strategy yields a reproducible order.
func (o OrderingStrategy) IsOrdered() bool {
	return o.Kind != OrderingUnordered && o.Kind != ""
}

// OrderColumns returns the columns to sort by with their direction, newest
// first. Key and row-id orderings sort descending as well so that "most recent"
// holds for monotonically assigned values.
func (o OrderingStrategy) OrderColumns() ([]string, SortDirection) {
	switch o.Kind {
	case OrderingPrimaryKey:
		return o.Columns, Descending
	case OrderingTimestamp:
		dir := o.Direction
		if dir == "" {
			dir = Descending
		}
		return []string{o.Column}, dir
	case OrderingAutoIncrement, OrderingSystemRowID:
		return []string{o.Column}, Descending
	default:
		return nil, ""
	}
}

func (o OrderingStrategy) String() string {
	switch o.Kind {
	case OrderingPrimaryKey:
		return "primary key (" + strings.Join(o.Columns, ", ") + ")"
	case OrderingTimestamp:
		return fmt.Sprintf("timestamp %s %s", o.Column, o.Direction)
	case OrderingAutoIncrement:
		return "auto increment " + o.Column
	case OrderingSystemRowID:
		return "system row id " + o.Column
	default:
		return "unordered"
	}
}

// SamplingKind identifies a SamplingStrategy variant.
type SamplingKind string

const (
	SamplingMostRecent SamplingKind = "most_recent"
	SamplingRandom     SamplingKind = "random"
)

// SamplingStrategy is the fetch mode used for a sample.
type SamplingStrategy struct {
	Kind  SamplingKind `json:"kind"`
	Limit int          `json:"limit"`
}

func MostRecent(limit int) SamplingStrategy {
	return SamplingStrategy{Kind: SamplingMostRecent, Limit: limit}
}

func Random(limit int) SamplingStrategy {
	return SamplingStrategy{Kind: SamplingRandom, Limit: limit}
}

// TableSample holds the rows sampled from one table or collection.
// Rows is the only place sampled values appear.
type TableSample struct {
	TableName   string           `json:"table_name"`
	SchemaName  string           `json:"schema_name,omitempty"`
	Rows        []map[string]any `json:"rows"`
	SampleSize  int              `json:"sample_size"`
	TotalRows   *int64           `json:"total_rows,omitempty"`
	Strategy    SamplingStrategy `json:"sampling_strategy"`
	Ordering    OrderingStrategy `json:"ordering"`
	CollectedAt time.Time        `json:"collected_at"`
	Warnings    []string         `json:"warnings"`
}

// QualifiedName returns "schema.table", or just the table name without a schema.
func (s *TableSample) QualifiedName() string {
	if s.SchemaName == "" {
		return s.TableName
	}
	return s.SchemaName + "." + s.TableName
}
