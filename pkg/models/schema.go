package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DatabaseType identifies the engine an adapter talks to.
type DatabaseType string

const (
	DatabaseTypePostgreSQL DatabaseType = "postgresql"
	DatabaseTypeMySQL      DatabaseType = "mysql"
	DatabaseTypeSQLite     DatabaseType = "sqlite"
	DatabaseTypeMongoDB    DatabaseType = "mongodb"
	DatabaseTypeSQLServer  DatabaseType = "sqlserver"
)

// DisplayName returns the human-readable engine name.
func (t DatabaseType) DisplayName() string {
	switch t {
	case DatabaseTypePostgreSQL:
		return "PostgreSQL"
	case DatabaseTypeMySQL:
		return "MySQL"
	case DatabaseTypeSQLite:
		return "SQLite"
	case DatabaseTypeMongoDB:
		return "MongoDB"
	case DatabaseTypeSQLServer:
		return "Microsoft SQL Server"
	default:
		return string(t)
	}
}

// DatabaseSchema is the root aggregate produced by one collection run.
// It is built by a single adapter call and must not be mutated once returned.
type DatabaseSchema struct {
	DatabaseInfo       DatabaseInfo       `json:"database_info"`
	Tables             []Table            `json:"tables"`
	Views              []View             `json:"views"`
	Indexes            []Index            `json:"indexes"`
	Constraints        []Constraint       `json:"constraints"`
	Procedures         []Routine          `json:"procedures"`
	Functions          []Routine          `json:"functions"`
	Triggers           []Trigger          `json:"triggers"`
	CustomTypes        []CustomType       `json:"custom_types"`
	Samples            []TableSample      `json:"samples,omitempty"`
	CollectionMetadata CollectionMetadata `json:"collection_metadata"`
}

// DatabaseInfo describes the database itself.
type DatabaseInfo struct {
	Name             string       `json:"name"`
	DatabaseType     DatabaseType `json:"database_type"`
	Version          string       `json:"version,omitempty"`
	SizeBytes        *int64       `json:"size_bytes,omitempty"`
	Encoding         string       `json:"encoding,omitempty"`
	Collation        string       `json:"collation,omitempty"`
	Owner            string       `json:"owner,omitempty"`
	IsSystemDatabase bool         `json:"is_system_database"`
	AccessLevel      AccessLevel  `json:"access_level"`
	CollectionStatus string       `json:"collection_status"`
}

// AccessLevel records how much of the catalog the collector could read.
type AccessLevel string

const (
	AccessLevelFull    AccessLevel = "full"
	AccessLevelLimited AccessLevel = "limited"
	AccessLevelNone    AccessLevel = "none"
)

// CollectionMetadata records when and how the schema was collected.
type CollectionMetadata struct {
	CollectionID         uuid.UUID `json:"collection_id"`
	CollectedAt          time.Time `json:"collected_at"`
	CollectionDurationMS int64     `json:"collection_duration_ms"`
	CollectorVersion     string    `json:"collector_version"`
	Warnings             []string  `json:"warnings"`
}

// NewDatabaseSchema returns an empty schema for a run starting now.
func NewDatabaseSchema(info DatabaseInfo, collectorVersion string) *DatabaseSchema {
	if info.AccessLevel == "" {
		info.AccessLevel = AccessLevelFull
	}
	if info.CollectionStatus == "" {
		info.CollectionStatus = "success"
	}
	return &DatabaseSchema{
		DatabaseInfo: info,
		Tables:       []Table{},
		Views:        []View{},
		Indexes:      []Index{},
		Constraints:  []Constraint{},
		Procedures:   []Routine{},
		Functions:    []Routine{},
		Triggers:     []Trigger{},
		CustomTypes:  []CustomType{},
		CollectionMetadata: CollectionMetadata{
			CollectionID:     uuid.New(),
			CollectedAt:      time.Now().UTC(),
			CollectorVersion: collectorVersion,
			Warnings:         []string{},
		},
	}
}

// AddWarning appends a collection warning.
func (s *DatabaseSchema) AddWarning(format string, args ...any) {
	s.CollectionMetadata.Warnings = append(s.CollectionMetadata.Warnings, fmt.Sprintf(format, args...))
}

// Finish stamps the collection duration.
func (s *DatabaseSchema) Finish(started time.Time) {
	s.CollectionMetadata.CollectionDurationMS = time.Since(started).Milliseconds()
}

// FindTable returns the table with the given schema and name, or nil.
// An empty schema matches any namespace.
func (s *DatabaseSchema) FindTable(schemaName, tableName string) *Table {
	for i := range s.Tables {
		t := &s.Tables[i]
		if t.Name != tableName {
			continue
		}
		if schemaName == "" || t.Schema == schemaName {
			return t
		}
	}
	return nil
}

// Table describes a table or collection.
type Table struct {
	Name        string       `json:"name"`
	Schema      string       `json:"schema,omitempty"`
	Columns     []Column     `json:"columns"`
	PrimaryKey  *PrimaryKey  `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	Indexes     []Index      `json:"indexes"`
	Constraints []Constraint `json:"constraints"`
	Comment     string       `json:"comment,omitempty"`
	RowCount    *int64       `json:"row_count,omitempty"`
}

// QualifiedName returns "schema.name", or just the name without a schema.
func (t *Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// NormalizeOrdinals renumbers columns 1..n in their current order.
func (t *Table) NormalizeOrdinals() {
	for i := range t.Columns {
		t.Columns[i].OrdinalPosition = i + 1
	}
}

// Validate checks that column ordinal positions are contiguous from 1.
func (t *Table) Validate() error {
	for i, c := range t.Columns {
		if c.OrdinalPosition != i+1 {
			return fmt.Errorf("table %s: column %q has ordinal %d, expected %d", t.QualifiedName(), c.Name, c.OrdinalPosition, i+1)
		}
	}
	return nil
}

// Column describes one column of a table or view.
type Column struct {
	Name            string          `json:"name"`
	DataType        UnifiedDataType `json:"data_type"`
	IsNullable      bool            `json:"is_nullable"`
	IsPrimaryKey    bool            `json:"is_primary_key"`
	IsAutoIncrement bool            `json:"is_auto_increment"`
	DefaultValue    *string         `json:"default_value,omitempty"`
	Comment         string          `json:"comment,omitempty"`
	OrdinalPosition int             `json:"ordinal_position"`
}

// PrimaryKey is a table's primary key.
type PrimaryKey struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns"`
}

// ReferentialAction is an ON DELETE / ON UPDATE behavior.
type ReferentialAction string

const (
	ActionNoAction   ReferentialAction = "NO ACTION"
	ActionRestrict   ReferentialAction = "RESTRICT"
	ActionCascade    ReferentialAction = "CASCADE"
	ActionSetNull    ReferentialAction = "SET NULL"
	ActionSetDefault ReferentialAction = "SET DEFAULT"
)

// ParseReferentialAction normalizes catalog spellings ("SET_NULL", "cascade", "a", ...).
// Unknown values are returned as NO ACTION.
func ParseReferentialAction(s string) ReferentialAction {
	switch normalizeAction(s) {
	case "CASCADE", "C":
		return ActionCascade
	case "SET NULL", "N":
		return ActionSetNull
	case "SET DEFAULT", "D":
		return ActionSetDefault
	case "RESTRICT", "R":
		return ActionRestrict
	default:
		return ActionNoAction
	}
}

// ForeignKey is a foreign key constraint on a table.
type ForeignKey struct {
	Name              string            `json:"name,omitempty"`
	Columns           []string          `json:"columns"`
	ReferencedSchema  string            `json:"referenced_schema,omitempty"`
	ReferencedTable   string            `json:"referenced_table"`
	ReferencedColumns []string          `json:"referenced_columns"`
	OnDelete          ReferentialAction `json:"on_delete,omitempty"`
	OnUpdate          ReferentialAction `json:"on_update,omitempty"`
}

// SortDirection is an index column or ordering direction.
type SortDirection string

const (
	Ascending  SortDirection = "ASC"
	Descending SortDirection = "DESC"
)

// Index describes an index.
type Index struct {
	Name      string        `json:"name"`
	Table     string        `json:"table"`
	Schema    string        `json:"schema,omitempty"`
	Columns   []IndexColumn `json:"columns"`
	IsUnique  bool          `json:"is_unique"`
	IsPrimary bool          `json:"is_primary"`
	IndexType string        `json:"index_type,omitempty"`
}

// IndexColumn is one key part of an index.
type IndexColumn struct {
	Name      string        `json:"name"`
	Direction SortDirection `json:"direction,omitempty"`
}

// ConstraintType classifies a table constraint.
type ConstraintType string

const (
	ConstraintPrimaryKey ConstraintType = "PRIMARY KEY"
	ConstraintForeignKey ConstraintType = "FOREIGN KEY"
	ConstraintUnique     ConstraintType = "UNIQUE"
	ConstraintCheck      ConstraintType = "CHECK"
	ConstraintNotNull    ConstraintType = "NOT NULL"
	ConstraintExclude    ConstraintType = "EXCLUDE"
)

// Constraint describes a table constraint.
type Constraint struct {
	Name        string         `json:"name"`
	Table       string         `json:"table"`
	Schema      string         `json:"schema,omitempty"`
	Type        ConstraintType `json:"constraint_type"`
	Columns     []string       `json:"columns"`
	CheckClause string         `json:"check_clause,omitempty"`
}

// View describes a view and its output columns.
type View struct {
	Name       string   `json:"name"`
	Schema     string   `json:"schema,omitempty"`
	Definition string   `json:"definition,omitempty"`
	Columns    []Column `json:"columns"`
	Comment    string   `json:"comment,omitempty"`
}

// Routine describes a stored procedure or function.
type Routine struct {
	Name       string      `json:"name"`
	Schema     string      `json:"schema,omitempty"`
	Language   string      `json:"language,omitempty"`
	ReturnType string      `json:"return_type,omitempty"`
	Parameters []Parameter `json:"parameters"`
	Definition string      `json:"definition,omitempty"`
	Comment    string      `json:"comment,omitempty"`
}

// Parameter is a routine argument.
type Parameter struct {
	Name      string `json:"name"`
	DataType  string `json:"data_type"`
	Direction string `json:"direction"`
}

// Trigger describes a table trigger.
type Trigger struct {
	Name       string `json:"name"`
	Table      string `json:"table"`
	Schema     string `json:"schema,omitempty"`
	Event      string `json:"event"`
	Timing     string `json:"timing"`
	Definition string `json:"definition,omitempty"`
}

// CustomType describes a user-defined type (enum, domain, composite, ...).
type CustomType struct {
	Name       string   `json:"name"`
	Schema     string   `json:"schema,omitempty"`
	Category   string   `json:"category"`
	Values     []string `json:"values,omitempty"`
	Definition string   `json:"definition,omitempty"`
}

func normalizeAction(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "_", " ")
}
