package mssql

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

// CollectSchema reads the sys catalog views of the connected database.
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
		return nil, datasource.ClassifyQueryError("query key constraints", err, classifyError)
	}
	if err := a.collectForeignKeys(ctx, schema, tables); err != nil {
		return nil, datasource.ClassifyQueryError("query foreign keys", err, classifyError)
	}
	if coll.IncludeConstraints {
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
	if coll.IncludeCustomTypes {
		if err := a.collectCustomTypes(ctx, schema); err != nil {
			a.optional(schema, "custom types", err)
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

	a.logger.Debug("Collected SQL Server schema",
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

// includeShipped is the @shipped argument: 1 lets Microsoft-shipped objects
// through the is_ms_shipped filters.
func (a *Adapter) includeShipped() sql.NamedArg {
	shipped := 0
	if a.cfg.Collection.IncludeSystemTables {
		shipped = 1
	}
	return sql.Named("shipped", shipped)
}

func (a *Adapter) databaseInfo(ctx context.Context) (models.DatabaseInfo, error) {
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	info := models.DatabaseInfo{DatabaseType: models.DatabaseTypeSQLServer}
	var (
		owner sql.NullString
		id    int
	)
	err := a.db.QueryRowContext(ctx, `
		SET NOCOUNT ON;
		SELECT d.name,
			CAST(SERVERPROPERTY('ProductVersion') AS nvarchar(128)),
			COALESCE(d.collation_name, ''),
			SUSER_SNAME(d.owner_sid),
			d.database_id
		FROM sys.databases d
		WHERE d.database_id = DB_ID()`).
		Scan(&info.Name, &info.Version, &info.Collation, &owner, &id)
	if err != nil {
		return info, err
	}
	info.Owner = owner.String
	// master, tempdb, model and msdb.
	info.IsSystemDatabase = id <= 4
	return info, nil
}

func (a *Adapter) databaseSize(ctx context.Context) (int64, error) {
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	var size int64
	err := a.db.QueryRowContext(ctx, `
		SET NOCOUNT ON;
		SELECT COALESCE(SUM(CAST(size AS bigint)), 0) * 8192
		FROM sys.database_files`).Scan(&size)
	return size, err
}

// collectRelations adds tables and views and returns their positions keyed
// by object_id.
func (a *Adapter) collectRelations(ctx context.Context, schema *models.DatabaseSchema) (map[int]int, map[int]int, error) {
	tables := make(map[int]int)
	views := make(map[int]int)
	includeViews := a.cfg.Collection.IncludeViews

	err := a.each(ctx, `
		SET NOCOUNT ON;
		SELECT o.object_id, s.name, o.name, RTRIM(o.type),
			(SELECT SUM(p.rows) FROM sys.partitions p
				WHERE p.object_id = o.object_id AND p.index_id IN (0, 1)),
			COALESCE(CAST(ep.value AS nvarchar(4000)), N''),
			CASE WHEN o.type = 'V' THEN COALESCE(OBJECT_DEFINITION(o.object_id), N'') ELSE N'' END
		FROM sys.objects o
		JOIN sys.schemas s ON s.schema_id = o.schema_id
		LEFT JOIN sys.extended_properties ep
			ON ep.class = 1 AND ep.major_id = o.object_id AND ep.minor_id = 0 AND ep.name = N'MS_Description'
		WHERE o.type IN ('U', 'V') AND (@shipped = 1 OR o.is_ms_shipped = 0)
		ORDER BY s.name, o.name`, []any{a.includeShipped()}, func(rows *sql.Rows) error {
		var (
			id                                          int
			schemaName, name, kind, comment, definition string
			rowCount                                    sql.NullInt64
		)
		if err := rows.Scan(&id, &schemaName, &name, &kind, &rowCount, &comment, &definition); err != nil {
			return err
		}
		if kind == "V" {
			if !includeViews {
				return nil
			}
			views[id] = len(schema.Views)
			schema.Views = append(schema.Views, models.View{
				Name:       name,
				Schema:     schemaName,
				Definition: definition,
				Columns:    []models.Column{},
				Comment:    comment,
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
		if rowCount.Valid {
			n := rowCount.Int64
			t.RowCount = &n
		}
		tables[id] = len(schema.Tables)
		schema.Tables = append(schema.Tables, t)
		return nil
	})
	return tables, views, err
}

// collectColumns reads sys.columns. Alias types are reported by their base
// type; max_length is in bytes, so n-prefixed types are halved.
func (a *Adapter) collectColumns(ctx context.Context, schema *models.DatabaseSchema, tables, views map[int]int) error {
	return a.each(ctx, `
		SET NOCOUNT ON;
		SELECT c.object_id, c.name,
			CASE WHEN tp.is_user_defined = 1 AND tp.is_table_type = 0
				THEN TYPE_NAME(tp.system_type_id) ELSE tp.name END,
			c.max_length, c.precision, c.scale, c.is_nullable, c.is_identity,
			dc.definition, COALESCE(CAST(ep.value AS nvarchar(4000)), N''), c.column_id
		FROM sys.columns c
		JOIN sys.objects o ON o.object_id = c.object_id
		JOIN sys.types tp ON tp.user_type_id = c.user_type_id
		LEFT JOIN sys.default_constraints dc ON dc.object_id = c.default_object_id
		LEFT JOIN sys.extended_properties ep
			ON ep.class = 1 AND ep.major_id = c.object_id AND ep.minor_id = c.column_id AND ep.name = N'MS_Description'
		WHERE o.type IN ('U', 'V') AND (@shipped = 1 OR o.is_ms_shipped = 0)
		ORDER BY c.object_id, c.column_id`, []any{a.includeShipped()}, func(rows *sql.Rows) error {
		var (
			id int
			c  columnRow
		)
		if err := rows.Scan(&id, &c.name, &c.typeName, &c.maxLength, &c.precision, &c.scale,
			&c.nullable, &c.identity, &c.defaultValue, &c.comment, &c.ordinal); err != nil {
			return err
		}
		if i, ok := tables[id]; ok {
			schema.Tables[i].Columns = append(schema.Tables[i].Columns, c.column())
		} else if i, ok := views[id]; ok {
			schema.Views[i].Columns = append(schema.Views[i].Columns, c.column())
		}
		return nil
	})
}

type columnRow struct {
	name         string
	typeName     string
	maxLength    int
	precision    int
	scale        int
	nullable     bool
	identity     bool
	defaultValue sql.NullString
	comment      string
	ordinal      int
}

func (c columnRow) column() models.Column {
	typeName := strings.ToLower(c.typeName)
	var length *int
	switch {
	case c.maxLength == -1:
		// (max)
		typeName += "(max)"
	case typeName == "nchar" || typeName == "nvarchar":
		length = models.IntPtr(c.maxLength / 2)
	case slices.Contains([]string{"char", "varchar", "binary", "varbinary"}, typeName):
		length = models.IntPtr(c.maxLength)
	}

	var precision, scale *int
	if typeName == "decimal" || typeName == "numeric" || typeName == "float" {
		precision = models.IntPtr(c.precision)
		scale = models.IntPtr(c.scale)
	}

	col := models.Column{
		Name:            c.name,
		DataType:        typemap.SQLServer(typeName, length, precision, scale),
		IsNullable:      c.nullable,
		IsAutoIncrement: c.identity,
		Comment:         c.comment,
		OrdinalPosition: c.ordinal,
	}
	if c.defaultValue.Valid {
		v := c.defaultValue.String
		col.DefaultValue = &v
	}
	return col
}

// collectKeys reads PRIMARY KEY and UNIQUE constraints through their
// backing indexes.
func (a *Adapter) collectKeys(ctx context.Context, schema *models.DatabaseSchema, tables map[int]int) error {
	type keyPart struct {
		tableID    int
		name, kind string
		column     string
	}
	var parts []keyPart
	err := a.each(ctx, `
		SET NOCOUNT ON;
		SELECT kc.parent_object_id, kc.name, kc.type, c.name
		FROM sys.key_constraints kc
		JOIN sys.index_columns ic
			ON ic.object_id = kc.parent_object_id AND ic.index_id = kc.unique_index_id
		JOIN sys.columns c
			ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		WHERE ic.key_ordinal > 0
		ORDER BY kc.parent_object_id, kc.name, ic.key_ordinal`, nil, func(rows *sql.Rows) error {
		var p keyPart
		if err := rows.Scan(&p.tableID, &p.name, &p.kind, &p.column); err != nil {
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
		for end < len(parts) && parts[end].tableID == parts[start].tableID && parts[end].name == parts[start].name {
			end++
		}
		group := parts[start:end]
		start = end

		first := group[0]
		i, ok := tables[first.tableID]
		if !ok {
			continue
		}
		t := &schema.Tables[i]
		columns := make([]string, len(group))
		for j, p := range group {
			columns[j] = p.column
		}
		c := models.Constraint{Name: first.name, Table: t.Name, Schema: t.Schema, Columns: columns}

		switch strings.TrimSpace(first.kind) {
		case "PK":
			c.Type = models.ConstraintPrimaryKey
			t.PrimaryKey = &models.PrimaryKey{Name: first.name, Columns: columns}
			for j := range t.Columns {
				if slices.Contains(columns, t.Columns[j].Name) {
					t.Columns[j].IsPrimaryKey = true
				}
			}
		case "UQ":
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

func (a *Adapter) collectForeignKeys(ctx context.Context, schema *models.DatabaseSchema, tables map[int]int) error {
	type fkKey struct {
		tableID int
		name    string
	}
	positions := make(map[fkKey]int)
	var order []fkKey

	err := a.each(ctx, `
		SET NOCOUNT ON;
		SELECT fk.parent_object_id, fk.name, pc.name,
			OBJECT_SCHEMA_NAME(fk.referenced_object_id), OBJECT_NAME(fk.referenced_object_id), rc.name,
			fk.delete_referential_action_desc, fk.update_referential_action_desc
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
		JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
		JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
		ORDER BY fk.parent_object_id, fk.name, fkc.constraint_column_id`, nil, func(rows *sql.Rows) error {
		var (
			k                                   fkKey
			column, refSchema, refTable, refCol string
			onDelete, onUpdate                  string
		)
		if err := rows.Scan(&k.tableID, &k.name, &column, &refSchema, &refTable, &refCol, &onDelete, &onUpdate); err != nil {
			return err
		}
		i, ok := tables[k.tableID]
		if !ok {
			return nil
		}
		t := &schema.Tables[i]
		pos, seen := positions[k]
		if !seen {
			pos = len(t.ForeignKeys)
			positions[k] = pos
			order = append(order, k)
			t.ForeignKeys = append(t.ForeignKeys, models.ForeignKey{
				Name:              k.name,
				Columns:           []string{},
				ReferencedSchema:  refSchema,
				ReferencedTable:   refTable,
				ReferencedColumns: []string{},
				OnDelete:          models.ParseReferentialAction(onDelete),
				OnUpdate:          models.ParseReferentialAction(onUpdate),
			})
		}
		fk := &t.ForeignKeys[pos]
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refCol)
		return nil
	})
	if err != nil || !a.cfg.Collection.IncludeConstraints {
		return err
	}

	for _, k := range order {
		t := &schema.Tables[tables[k.tableID]]
		fk := t.ForeignKeys[positions[k]]
		c := models.Constraint{
			Name:    fk.Name,
			Table:   t.Name,
			Schema:  t.Schema,
			Type:    models.ConstraintForeignKey,
			Columns: fk.Columns,
		}
		t.Constraints = append(t.Constraints, c)
		schema.Constraints = append(schema.Constraints, c)
	}
	return nil
}

func (a *Adapter) collectChecks(ctx context.Context, schema *models.DatabaseSchema, tables map[int]int) error {
	return a.each(ctx, `
		SET NOCOUNT ON;
		SELECT cc.parent_object_id, cc.name, cc.definition, COALESCE(c.name, N'')
		FROM sys.check_constraints cc
		LEFT JOIN sys.columns c
			ON c.object_id = cc.parent_object_id AND c.column_id = cc.parent_column_id
		ORDER BY cc.parent_object_id, cc.name`, nil, func(rows *sql.Rows) error {
		var (
			id                   int
			name, clause, column string
		)
		if err := rows.Scan(&id, &name, &clause, &column); err != nil {
			return err
		}
		i, ok := tables[id]
		if !ok {
			return nil
		}
		t := &schema.Tables[i]
		c := models.Constraint{
			Name:        name,
			Table:       t.Name,
			Schema:      t.Schema,
			Type:        models.ConstraintCheck,
			Columns:     []string{},
			CheckClause: clause,
		}
		// Table-level checks have parent_column_id 0.
		if column != "" {
			c.Columns = []string{column}
		}
		t.Constraints = append(t.Constraints, c)
		schema.Constraints = append(schema.Constraints, c)
		return nil
	})
}

// collectIndexes reads rowstore and columnstore indexes. Heaps (index_id 0)
// and included columns are skipped.
func (a *Adapter) collectIndexes(ctx context.Context, schema *models.DatabaseSchema, tables map[int]int) error {
	type indexKey struct {
		tableID int
		indexID int
	}
	positions := make(map[indexKey]int)
	var (
		order   []indexKey
		indexes []models.Index
	)

	err := a.each(ctx, `
		SET NOCOUNT ON;
		SELECT i.object_id, i.index_id, i.name, i.is_unique, i.is_primary_key,
			LOWER(i.type_desc), c.name, ic.is_descending_key
		FROM sys.indexes i
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		WHERE i.index_id > 0 AND i.is_hypothetical = 0 AND ic.is_included_column = 0
		ORDER BY i.object_id, i.index_id, ic.key_ordinal, ic.index_column_id`, nil, func(rows *sql.Rows) error {
		var (
			k                    indexKey
			name, method, column string
			unique, primary      bool
			descending           bool
		)
		if err := rows.Scan(&k.tableID, &k.indexID, &name, &unique, &primary, &method, &column, &descending); err != nil {
			return err
		}
		i, ok := tables[k.tableID]
		if !ok {
			return nil
		}
		pos, seen := positions[k]
		if !seen {
			t := schema.Tables[i]
			pos = len(indexes)
			positions[k] = pos
			order = append(order, k)
			indexes = append(indexes, models.Index{
				Name:      name,
				Table:     t.Name,
				Schema:    t.Schema,
				Columns:   []models.IndexColumn{},
				IsUnique:  unique,
				IsPrimary: primary,
				IndexType: method,
			})
		}
		dir := models.Ascending
		if descending {
			dir = models.Descending
		}
		indexes[pos].Columns = append(indexes[pos].Columns, models.IndexColumn{Name: column, Direction: dir})
		return nil
	})
	if err != nil {
		return err
	}

	for i, k := range order {
		t := &schema.Tables[tables[k.tableID]]
		t.Indexes = append(t.Indexes, indexes[i])
		schema.Indexes = append(schema.Indexes, indexes[i])
	}
	return nil
}
