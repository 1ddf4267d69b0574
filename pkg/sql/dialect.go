// Package sql builds the read-only statements the collectors send to
// relational engines: identifier quoting, random ordering, row limits and a
// guard that rejects anything that is not a single SELECT.
package sql

import (
	"fmt"
	"strings"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// Dialect is the SQL flavour of a relational engine.
type Dialect string

const (
	Postgres  Dialect = "postgresql"
	MySQL     Dialect = "mysql"
	SQLite    Dialect = "sqlite"
	SQLServer Dialect = "sqlserver"
)

// DialectFor returns the dialect for a relational database type.
func DialectFor(dbType models.DatabaseType) (Dialect, error) {
	switch dbType {
	case models.DatabaseTypePostgreSQL:
		return Postgres, nil
	case models.DatabaseTypeMySQL:
		return MySQL, nil
	case models.DatabaseTypeSQLite:
		return SQLite, nil
	case models.DatabaseTypeSQLServer:
		return SQLServer, nil
	}
	return "", fmt.Errorf("no SQL dialect for database type %q", dbType)
}

// QuoteIdentifier quotes a single identifier, doubling any embedded closing quote.
func (d Dialect) QuoteIdentifier(name string) string {
	switch d {
	case MySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case SQLServer:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// QualifiedName quotes schema.table, or just table when schema is empty.
func (d Dialect) QualifiedName(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// RandomFunction is the expression used to order rows randomly.
func (d Dialect) RandomFunction() string {
	switch d {
	case MySQL:
		return "RAND()"
	case SQLServer:
		return "NEWID()"
	default:
		return "RANDOM()"
	}
}

// RowIDColumn is the engine's physical row locator, or "" when there is none.
func (d Dialect) RowIDColumn() string {
	switch d {
	case Postgres:
		return "ctid"
	case SQLite:
		return "rowid"
	case SQLServer:
		return "%%physloc%%"
	}
	return ""
}

// orderTerm renders a column for ORDER BY. Row locators are pseudo-columns
// and are emitted bare; SQL Server's %%physloc%% cannot be bracketed at all.
func (d Dialect) orderTerm(column string) string {
	if rowID := d.RowIDColumn(); rowID != "" && strings.EqualFold(column, rowID) {
		return rowID
	}
	return d.QuoteIdentifier(column)
}
