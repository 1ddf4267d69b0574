package mysql

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/logging"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/typemap"
)

// CollectorVersion is stamped into collected schemas; main overrides it at build time.
var CollectorVersion = "dev"

// CollectSchema reads information_schema for the connected database, or for
// every user schema when the connection string names no database.
func (a *Adapter) CollectSchema(ctx context.Context) (*models.DatabaseSchema, error) {
	started := time.Now()

	info, err := a.databaseInfo(ctx)
	if err != nil {
		return nil, datasource.ClassifyQueryError("read database info", err, classifyError)
	}
	schema := models.NewDatabaseSchema(info, CollectorVersion)
	if size, err := a.databaseSize(ctx); err != nil {
		a.optional(schema, "database size", err)
	} else {
		schema.DatabaseInfo.SizeBytes = &size
	}

	coll := a.cfg.Collection
	tables, views, err := a.collectRelations(ctx, schema)
	if err != nil {
		return nil, datasource.ClassifyQueryError("query tables", err, classifyError)
	}
	if err := a.collectColumns(ctx, schema, tables, views); err != nil {
		return nil, datasource.ClassifyQueryError("query columns", err, classifyError)
	}
	if err := a.collectKeys(ctx, schema, tables); err != nil {
		return nil, datasource.ClassifyQueryError("query constraints", err, classifyError)
	}
	if coll.IncludeConstraints {
		// CHECK_CONSTRAINTS only exists from MySQL 8.0.16.
		if err := a.collectChecks(ctx, schema, tables); err != nil {
			a.optional(schema, "check constraints", err)
		}
	}
	if coll.IncludeIndexes {
		if err := a.collectIndexes(ctx, schema, tables); err != nil {
			return nil, datasource.ClassifyQueryError("query indexes", err, classifyError)
		}
	}
	if coll.IncludeProcedures || coll.IncludeFunctions {
		if err := a.collectRoutines(ctx, schema); err != nil {
			a.optional(schema, "routines", err)
		}
	}
	if coll.IncludeTriggers {
		if err := a.collectTriggers(ctx, schema); err != nil {
			a.optional(schema, "triggers", err)
		}
	}

	for i := range schema.Tables {
		schema.Tables[i].NormalizeOrdinals()
	}
	for i := range schema.Views {
		for j := range schema.Views[i].Columns {
			schema.Views[i].Columns[j].OrdinalPosition = j + 1
		}
	}

	a.logger.Debug("Collected MySQL schema",
		zap.String("database", a.conn.Redacted()),
		zap.Int("tables", len(schema.Tables)),
		zap.Int("views", len(schema.Views)),
		zap.Int("warnings", len(schema.CollectionMetadata.Warnings)))

	schema.Finish(started)
	return schema, nil
}

// optional records a failure of a non-essential catalog read. Missing
// privileges downgrade the access level; anything else is only a warning.
func (a *Adapter) optional(schema *models.DatabaseSchema, what string, err error) {
	classified := datasource.ClassifyQueryError("collect "+what, err, classifyError)
	if errors.Is(classified, apperrors.ErrInsufficientPrivileges) {
		schema.DatabaseInfo.AccessLevel = models.AccessLevelLimited
	}
	schema.AddWarning("could not collect %s: %s", what, classified.Error())
	a.logger.Warn("Partial schema collection", zap.String("object", what), zap.String("error", classified.Error()))
}

// queryCtx bounds one catalog query by the configured query timeout.
func (a *Adapter) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.conn.QueryTimeout)
}

// each runs query and calls scan once per row.
func (a *Adapter) each(ctx context.Context, query string, args []any, scan func(*sql.Rows) error) error {
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		a.logger.Debug("Catalog query failed",
			zap.String("query", logging.SanitizeQuery(query)),
			logging.ErrorField(err))
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (a *Adapter) databaseInfo(ctx context.Context) (models.DatabaseInfo, error) {
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	info := models.DatabaseInfo{DatabaseType: models.DatabaseTypeMySQL}
	var name sql.NullString
	err := a.db.QueryRowContext(ctx,
		"SELECT DATABASE(), VERSION(), @@character_set_database, @@collation_database").
		Scan(&name, &info.Version, &info.Encoding, &info.Collation)
	if err != nil {
		return info, err
	}
	info.Name = name.String
	info.IsSystemDatabase = slices.Contains(systemSchemas, strings.ToLower(info.Name))
	return info, nil
}

func (a *Adapter) databaseSize(ctx context.Context) (int64, error) {
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	where, args := a.scope("TABLE_SCHEMA")
	var size int64
	err := a.db.QueryRowContext(ctx, `
		SELECT CAST(COALESCE(SUM(DATA_LENGTH + INDEX_LENGTH), 0) AS SIGNED)
		FROM information_schema.TABLES
		WHERE `+where, args...).Scan(&size)
	return size, err
}

// collectRelations adds tables and views and returns their positions keyed
// by schema.name.
func (a *Adapter) collectRelations(ctx context.Context, schema *models.DatabaseSchema) (map[string]int, map[string]int, error) {
	where, args := a.scope("t.TABLE_SCHEMA")
	tables := make(map[string]int)
	views := make(map[string]int)
	includeViews := a.cfg.Collection.IncludeViews

	err := a.each(ctx, `
		SELECT t.TABLE_SCHEMA, t.TABLE_NAME, t.TABLE_TYPE, t.TABLE_ROWS,
			COALESCE(t.TABLE_COMMENT, ''), COALESCE(v.VIEW_DEFINITION, '')
		FROM information_schema.TABLES t
		LEFT JOIN information_schema.VIEWS v
			ON v.TABLE_SCHEMA = t.TABLE_SCHEMA AND v.TABLE_NAME = t.TABLE_NAME
		WHERE `+where+`
		ORDER BY t.TABLE_SCHEMA, t.TABLE_NAME`, args, func(rows *sql.Rows) error {
		var (
			schemaName, name, kind, comment, definition string
			tableRows                                   sql.NullInt64
		)
		if err := rows.Scan(&schemaName, &name, &kind, &tableRows, &comment, &definition); err != nil {
			return err
		}
		key := schemaName + "." + name
		if kind == "VIEW" || kind == "SYSTEM VIEW" {
			if !includeViews {
				return nil
			}
			views[key] = len(schema.Views)
			schema.Views = append(schema.Views, models.View{
				Name:       name,
				Schema:     schemaName,
				Definition: definition,
				Columns:    []models.Column{},
			})
			return nil
		}

		t := models.Table{
			Name:        name,
			Schema:      schemaName,
			Columns:     []models.Column{},
			ForeignKeys: []models.ForeignKey{},
			Indexes:     []models.Index{},
			Constraints: []models.Constraint{},
			Comment:     comment,
		}
		// TABLE_ROWS is an InnoDB estimate and NULL for some engines.
		if tableRows.Valid {
			n := tableRows.Int64
			t.RowCount = &n
		}
		tables[key] = len(schema.Tables)
		schema.Tables = append(schema.Tables, t)
		return nil
	})
	return tables, views, err
}

func (a *Adapter) collectColumns(ctx context.Context, schema *models.DatabaseSchema, tables, views map[string]int) error {
	where, args := a.scope("TABLE_SCHEMA")
	return a.each(ctx, `
		SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE,
			COLUMN_DEFAULT, COALESCE(EXTRA, ''), CHARACTER_MAXIMUM_LENGTH,
			NUMERIC_PRECISION, NUMERIC_SCALE, COALESCE(COLUMN_COMMENT, ''), ORDINAL_POSITION
		FROM information_schema.COLUMNS
		WHERE `+where+`
		ORDER BY TABLE_SCHEMA, TABLE_NAME, ORDINAL_POSITION`, args, func(rows *sql.Rows) error {
		var (
			schemaName, table string
			c                 columnRow
		)
		if err := rows.Scan(&schemaName, &table, &c.name, &c.columnType, &c.nullable,
			&c.defaultValue, &c.extra, &c.length, &c.precision, &c.scale, &c.comment, &c.ordinal); err != nil {
			return err
		}
		key := schemaName + "." + table
		if i, ok := tables[key]; ok {
			schema.Tables[i].Columns = append(schema.Tables[i].Columns, c.column())
		} else if i, ok := views[key]; ok {
			schema.Views[i].Columns = append(schema.Views[i].Columns, c.column())
		}
		return nil
	})
}

type columnRow struct {
	name         string
	columnType   string
	nullable     string
	defaultValue sql.NullString
	extra        string
	length       sql.NullInt64
	precision    sql.NullInt64
	scale        sql.NullInt64
	comment      string
	ordinal      int
}

func (c columnRow) column() models.Column {
	col := models.Column{
		Name:            c.name,
		DataType:        typemap.MySQL(c.columnType, intPtr(c.length), intPtr(c.precision), intPtr(c.scale)),
		IsNullable:      strings.EqualFold(c.nullable, "YES"),
		IsAutoIncrement: strings.Contains(strings.ToLower(c.extra), "auto_increment"),
		Comment:         c.comment,
		OrdinalPosition: c.ordinal,
	}
	if c.defaultValue.Valid {
		v := c.defaultValue.String
		col.DefaultValue = &v
	}
	return col
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// keyPart is one column of a PRIMARY KEY, UNIQUE or FOREIGN KEY constraint.
type keyPart struct {
	schema, table, name, kind string
	column                    string
	refSchema, refTable       string
	refColumn                 string
	onUpdate, onDelete        string
}

// collectKeys reads key constraints. The primary key and foreign keys are
// always attached to their tables; the flat constraint list honours
// IncludeConstraints.
func (a *Adapter) collectKeys(ctx context.Context, schema *models.DatabaseSchema, tables map[string]int) error {
	where, args := a.scope("k.TABLE_SCHEMA")
	var parts []keyPart
	err := a.each(ctx, `
		SELECT k.TABLE_SCHEMA, k.TABLE_NAME, k.CONSTRAINT_NAME, tc.CONSTRAINT_TYPE, k.COLUMN_NAME,
			COALESCE(k.REFERENCED_TABLE_SCHEMA, ''), COALESCE(k.REFERENCED_TABLE_NAME, ''),
			COALESCE(k.REFERENCED_COLUMN_NAME, ''),
			COALESCE(rc.UPDATE_RULE, ''), COALESCE(rc.DELETE_RULE, '')
		FROM information_schema.KEY_COLUMN_USAGE k
		JOIN information_schema.TABLE_CONSTRAINTS tc
			ON tc.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA
			AND tc.TABLE_NAME = k.TABLE_NAME
			AND tc.CONSTRAINT_NAME = k.CONSTRAINT_NAME
		LEFT JOIN information_schema.REFERENTIAL_CONSTRAINTS rc
			ON rc.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA
			AND rc.TABLE_NAME = k.TABLE_NAME
			AND rc.CONSTRAINT_NAME = k.CONSTRAINT_NAME
		WHERE `+where+`
		ORDER BY k.TABLE_SCHEMA, k.TABLE_NAME, k.CONSTRAINT_NAME, k.ORDINAL_POSITION`, args, func(rows *sql.Rows) error {
		var p keyPart
		if err := rows.Scan(&p.schema, &p.table, &p.name, &p.kind, &p.column,
			&p.refSchema, &p.refTable, &p.refColumn, &p.onUpdate, &p.onDelete); err != nil {
			return err
		}
		parts = append(parts, p)
		return nil
	})
	if err != nil {
		return err
	}

	includeList := a.cfg.Collection.IncludeConstraints
	for start := 0; start < len(parts); {
		end := start + 1
		for end < len(parts) && sameConstraint(parts[start], parts[end]) {
			end++
		}
		group := parts[start:end]
		start = end

		first := group[0]
		i, ok := tables[first.schema+"."+first.table]
		if !ok {
			continue
		}
		t := &schema.Tables[i]
		columns := make([]string, len(group))
		for j, p := range group {
			columns[j] = p.column
		}
		c := models.Constraint{Name: first.name, Table: first.table, Schema: first.schema, Columns: columns}

		switch first.kind {
		case "PRIMARY KEY":
			c.Type = models.ConstraintPrimaryKey
			t.PrimaryKey = &models.PrimaryKey{Name: first.name, Columns: columns}
			for j := range t.Columns {
				if slices.Contains(columns, t.Columns[j].Name) {
					t.Columns[j].IsPrimaryKey = true
				}
			}
		case "FOREIGN KEY":
			c.Type = models.ConstraintForeignKey
			refColumns := make([]string, len(group))
			for j, p := range group {
				refColumns[j] = p.refColumn
			}
			t.ForeignKeys = append(t.ForeignKeys, models.ForeignKey{
				Name:              first.name,
				Columns:           columns,
				ReferencedSchema:  first.refSchema,
				ReferencedTable:   first.refTable,
				ReferencedColumns: refColumns,
				OnDelete:          models.ParseReferentialAction(first.onDelete),
				OnUpdate:          models.ParseReferentialAction(first.onUpdate),
			})
		case "UNIQUE":
			c.Type = models.ConstraintUnique
		default:
			continue
		}

		if includeList {
			t.Constraints = append(t.Constraints, c)
			schema.Constraints = append(schema.Constraints, c)
		}
	}
	return nil
}

func sameConstraint(a, b keyPart) bool {
	return a.schema == b.schema && a.table == b.table && a.name == b.name
}

func (a *Adapter) collectChecks(ctx context.Context, schema *models.DatabaseSchema, tables map[string]int) error {
	where, args := a.scope("tc.TABLE_SCHEMA")
	return a.each(ctx, `
		SELECT tc.TABLE_SCHEMA, tc.TABLE_NAME, cc.CONSTRAINT_NAME, cc.CHECK_CLAUSE
		FROM information_schema.TABLE_CONSTRAINTS tc
		JOIN information_schema.CHECK_CONSTRAINTS cc
			ON cc.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA AND cc.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		WHERE tc.CONSTRAINT_TYPE = 'CHECK' AND `+where+`
		ORDER BY tc.TABLE_SCHEMA, tc.TABLE_NAME, cc.CONSTRAINT_NAME`, args, func(rows *sql.Rows) error {
		var schemaName, table, name, clause string
		if err := rows.Scan(&schemaName, &table, &name, &clause); err != nil {
			return err
		}
		i, ok := tables[schemaName+"."+table]
		if !ok {
			return nil
		}
		c := models.Constraint{
			Name:        name,
			Table:       table,
			Schema:      schemaName,
			Type:        models.ConstraintCheck,
			Columns:     []string{},
			CheckClause: clause,
		}
		schema.Tables[i].Constraints = append(schema.Tables[i].Constraints, c)
		schema.Constraints = append(schema.Constraints, c)
		return nil
	})
}

func (a *Adapter) collectIndexes(ctx context.Context, schema *models.DatabaseSchema, tables map[string]int) error {
	where, args := a.scope("s.TABLE_SCHEMA")
	type indexKey struct{ schema, table, name string }
	positions := make(map[indexKey]int)
	var order []indexKey
	var indexes []models.Index

	err := a.each(ctx, `
		SELECT s.TABLE_SCHEMA, s.TABLE_NAME, s.INDEX_NAME, s.NON_UNIQUE,
			COALESCE(s.COLUMN_NAME, ''), COALESCE(s.COLLATION, 'A'), s.INDEX_TYPE
		FROM information_schema.STATISTICS s
		WHERE `+where+`
		ORDER BY s.TABLE_SCHEMA, s.TABLE_NAME, s.INDEX_NAME, s.SEQ_IN_INDEX`, args, func(rows *sql.Rows) error {
		var (
			k                         indexKey
			nonUnique                 int
			column, collation, method string
		)
		if err := rows.Scan(&k.schema, &k.table, &k.name, &nonUnique, &column, &collation, &method); err != nil {
			return err
		}
		if _, ok := tables[k.schema+"."+k.table]; !ok {
			return nil
		}
		pos, ok := positions[k]
		if !ok {
			pos = len(indexes)
			positions[k] = pos
			order = append(order, k)
			indexes = append(indexes, models.Index{
				Name:      k.name,
				Table:     k.table,
				Schema:    k.schema,
				Columns:   []models.IndexColumn{},
				IsUnique:  nonUnique == 0,
				IsPrimary: k.name == "PRIMARY",
				IndexType: strings.ToLower(method),
			})
		}
		if column == "" {
			// Functional key parts (8.0.13+) have no column name.
			column = "<expression>"
		}
		dir := models.Ascending
		if collation == "D" {
			dir = models.Descending
		}
		indexes[pos].Columns = append(indexes[pos].Columns, models.IndexColumn{Name: column, Direction: dir})
		return nil
	})
	if err != nil {
		return err
	}

	for i, k := range order {
		t := &schema.Tables[tables[k.schema+"."+k.table]]
		t.Indexes = append(t.Indexes, indexes[i])
		schema.Indexes = append(schema.Indexes, indexes[i])
	}
	return nil
}
