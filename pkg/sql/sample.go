package sql

import (
	"fmt"
	"strings"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// SampleQuery describes the rows to fetch from one table.
type SampleQuery struct {
	Schema   string
	Table    string
	Columns  []string // empty selects every column
	Ordering models.OrderingStrategy
	Strategy models.SamplingStrategy
}

// BuildSampleQuery renders the SELECT for a sample. MostRecent orders by the
// ordering columns (descending for keys and row ids); Random orders by the
// dialect's random function. The result has already passed EnsureReadOnly.
func BuildSampleQuery(d Dialect, q SampleQuery) (string, error) {
	if q.Strategy.Limit <= 0 {
		return "", fmt.Errorf("sample limit must be positive, got %d", q.Strategy.Limit)
	}
	names := append([]string{q.Table}, q.Columns...)
	if q.Schema != "" {
		names = append(names, q.Schema)
	}
	for _, name := range names {
		if err := CheckIdentifier(name); err != nil {
			return "", err
		}
	}

	selectList := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted[i] = d.QuoteIdentifier(c)
		}
		selectList = strings.Join(quoted, ", ")
	}

	orderBy, err := d.orderBy(q.Ordering, q.Strategy)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if d == SQLServer {
		fmt.Fprintf(&b, "TOP (%d) ", q.Strategy.Limit)
	}
	b.WriteString(selectList)
	b.WriteString(" FROM ")
	b.WriteString(d.QualifiedName(q.Schema, q.Table))
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	if d != SQLServer {
		fmt.Fprintf(&b, " LIMIT %d", q.Strategy.Limit)
	}

	return EnsureReadOnly(b.String())
}

func (d Dialect) orderBy(ordering models.OrderingStrategy, strategy models.SamplingStrategy) (string, error) {
	if strategy.Kind == models.SamplingRandom || !ordering.IsOrdered() {
		return d.RandomFunction(), nil
	}
	columns, dir := ordering.OrderColumns()
	terms := make([]string, 0, len(columns))
	for _, c := range columns {
		if ordering.Kind != models.OrderingSystemRowID {
			if err := CheckIdentifier(c); err != nil {
				return "", err
			}
		}
		terms = append(terms, d.orderTerm(c)+" "+string(dir))
	}
	return strings.Join(terms, ", "), nil
}

// BuildCountQuery renders an exact row count for engines without a cheap estimate.
func BuildCountQuery(d Dialect, schema, table string) (string, error) {
	if err := CheckIdentifier(table); err != nil {
		return "", err
	}
	return EnsureReadOnly("SELECT COUNT(*) FROM " + d.QualifiedName(schema, table))
}
