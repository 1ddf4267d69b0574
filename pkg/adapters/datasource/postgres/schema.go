package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/typemap"
)

// CollectorVersion is stamped into collected schemas; main overrides it at build time.
var CollectorVersion = "dev"

// schemaFilter limits catalog queries to user schemas unless $1 is true.
const schemaFilter = `($1::bool OR (n.nspname NOT IN ('pg_catalog', 'information_schema')
	AND n.nspname NOT LIKE 'pg\_toast%' AND n.nspname NOT LIKE 'pg\_temp\_%'))`

// notExtensionMember excludes objects installed by extensions.
const notExtensionMember = `NOT EXISTS (SELECT 1 FROM pg_depend dep WHERE dep.objid = %s AND dep.deptype = 'e')`

type relationRow struct {
	Schema     string
	Name       string
	Kind       string
	Tuples     int64
	Comment    string
	Definition string
}

type columnRow struct {
	Schema   string
	Relation string
	Name     string
	Type     string
	NotNull  bool
	Default  *string
	Identity string
	Number   int16
	Comment  string
}

type constraintRow struct {
	Schema     string
	Table      string
	Name       string
	Kind       string
	Columns    []string
	RefSchema  string
	RefTable   string
	RefColumns []string
	OnUpdate   string
	OnDelete   string
	Definition string
}

type indexRow struct {
	Schema     string
	Table      string
	Name       string
	IsUnique   bool
	IsPrimary  bool
	Method     string
	Columns    []string
	Descending []bool
}

// CollectSchema reads the PostgreSQL catalogs of the connected database.
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
	sys := coll.IncludeSystemTables

	relations, err := queryRows[relationRow](ctx, a, `
		SELECT n.nspname, c.relname, c.relkind::text, c.reltuples::bigint,
			COALESCE(obj_description(c.oid, 'pg_class'), ''),
			CASE WHEN c.relkind IN ('v', 'm') THEN COALESCE(pg_get_viewdef(c.oid, true), '') ELSE '' END
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p', 'f', 'v', 'm') AND `+schemaFilter+`
		ORDER BY n.nspname, c.relname`, sys)
	if err != nil {
		return nil, datasource.ClassifyQueryError("query tables", err, classifyError)
	}

	columns, err := queryRows[columnRow](ctx, a, `
		SELECT n.nspname, c.relname, a.attname, format_type(a.atttypid, a.atttypmod),
			a.attnotnull, pg_get_expr(d.adbin, d.adrelid), a.attidentity::text, a.attnum,
			COALESCE(col_description(c.oid, a.attnum), '')
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
		WHERE a.attnum > 0 AND NOT a.attisdropped
			AND c.relkind IN ('r', 'p', 'f', 'v', 'm') AND `+schemaFilter+`
		ORDER BY n.nspname, c.relname, a.attnum`, sys)
	if err != nil {
		return nil, datasource.ClassifyQueryError("query columns", err, classifyError)
	}

	tables := make(map[string]int)
	views := make(map[string]int)
	for _, r := range relations {
		switch r.Kind {
		case "v", "m":
			if !coll.IncludeViews {
				continue
			}
			views[r.Schema+"."+r.Name] = len(schema.Views)
			schema.Views = append(schema.Views, models.View{
				Name:       r.Name,
				Schema:     r.Schema,
				Definition: r.Definition,
				Columns:    []models.Column{},
				Comment:    r.Comment,
			})
		default:
			t := models.Table{
				Name:        r.Name,
				Schema:      r.Schema,
				Columns:     []models.Column{},
				ForeignKeys: []models.ForeignKey{},
				Indexes:     []models.Index{},
				Constraints: []models.Constraint{},
				Comment:     r.Comment,
			}
			// reltuples is -1 for tables that were never vacuumed or analyzed.
			if r.Tuples >= 0 {
				n := r.Tuples
				t.RowCount = &n
			}
			tables[r.Schema+"."+r.Name] = len(schema.Tables)
			schema.Tables = append(schema.Tables, t)
		}
	}

	for _, c := range columns {
		col := models.Column{
			Name:            c.Name,
			DataType:        typemap.Postgres(c.Type, nil, nil, nil),
			IsNullable:      !c.NotNull,
			IsAutoIncrement: c.Identity != "" || (c.Default != nil && strings.HasPrefix(*c.Default, "nextval(")),
			DefaultValue:    c.Default,
			Comment:         c.Comment,
			OrdinalPosition: int(c.Number),
		}
		key := c.Schema + "." + c.Relation
		if i, ok := tables[key]; ok {
			schema.Tables[i].Columns = append(schema.Tables[i].Columns, col)
		} else if i, ok := views[key]; ok {
			schema.Views[i].Columns = append(schema.Views[i].Columns, col)
		}
	}

	if err := a.collectConstraints(ctx, schema, tables); err != nil {
		return nil, err
	}
	if coll.IncludeIndexes {
		if err := a.collectIndexes(ctx, schema, tables); err != nil {
			return nil, err
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

	a.logger.Debug("Collected PostgreSQL schema",
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

// queryRows runs query and scans each row positionally into T.
func queryRows[T any](ctx context.Context, a *Adapter, query string, args ...any) ([]T, error) {
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[T])
}

func (a *Adapter) databaseInfo(ctx context.Context) (models.DatabaseInfo, error) {
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	info := models.DatabaseInfo{DatabaseType: models.DatabaseTypePostgreSQL}
	err := a.pool.QueryRow(ctx, `
		SELECT d.datname, current_setting('server_version'), pg_encoding_to_char(d.encoding),
			d.datcollate, pg_get_userbyid(d.datdba), d.datistemplate
		FROM pg_database d
		WHERE d.datname = current_database()`).
		Scan(&info.Name, &info.Version, &info.Encoding, &info.Collation, &info.Owner, &info.IsSystemDatabase)
	if err != nil {
		return info, err
	}
	info.IsSystemDatabase = info.IsSystemDatabase || info.Name == "postgres"
	return info, nil
}

func (a *Adapter) databaseSize(ctx context.Context) (int64, error) {
	ctx, cancel := a.queryCtx(ctx)
	defer cancel()
	var size int64
	err := a.pool.QueryRow(ctx, "SELECT pg_database_size(current_database())").Scan(&size)
	return size, err
}

func (a *Adapter) collectConstraints(ctx context.Context, schema *models.DatabaseSchema, tables map[string]int) error {
	rows, err := queryRows[constraintRow](ctx, a, `
		SELECT n.nspname, c.relname, con.conname, con.contype::text,
			ARRAY(SELECT a.attname::text FROM unnest(con.conkey) WITH ORDINALITY k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum ORDER BY k.ord),
			COALESCE(fn.nspname::text, ''), COALESCE(fc.relname::text, ''),
			ARRAY(SELECT a.attname::text FROM unnest(con.confkey) WITH ORDINALITY k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum ORDER BY k.ord),
			con.confupdtype::text, con.confdeltype::text,
			pg_get_constraintdef(con.oid, true)
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_class fc ON fc.oid = con.confrelid
		LEFT JOIN pg_namespace fn ON fn.oid = fc.relnamespace
		WHERE con.contype IN ('p', 'f', 'u', 'c', 'x') AND `+schemaFilter+`
		ORDER BY n.nspname, c.relname, con.conname`, a.cfg.Collection.IncludeSystemTables)
	if err != nil {
		return datasource.ClassifyQueryError("query constraints", err, classifyError)
	}

	includeList := a.cfg.Collection.IncludeConstraints
	for _, r := range rows {
		i, ok := tables[r.Schema+"."+r.Table]
		if !ok {
			continue
		}
		t := &schema.Tables[i]
		c := models.Constraint{Name: r.Name, Table: r.Table, Schema: r.Schema, Columns: r.Columns}

		switch r.Kind {
		case "p":
			c.Type = models.ConstraintPrimaryKey
			t.PrimaryKey = &models.PrimaryKey{Name: r.Name, Columns: r.Columns}
			for j := range t.Columns {
				for _, pk := range r.Columns {
					if t.Columns[j].Name == pk {
						t.Columns[j].IsPrimaryKey = true
					}
				}
			}
		case "f":
			c.Type = models.ConstraintForeignKey
			t.ForeignKeys = append(t.ForeignKeys, models.ForeignKey{
				Name:              r.Name,
				Columns:           r.Columns,
				ReferencedSchema:  r.RefSchema,
				ReferencedTable:   r.RefTable,
				ReferencedColumns: r.RefColumns,
				OnDelete:          models.ParseReferentialAction(r.OnDelete),
				OnUpdate:          models.ParseReferentialAction(r.OnUpdate),
			})
		case "u":
			c.Type = models.ConstraintUnique
		case "c":
			c.Type = models.ConstraintCheck
			c.CheckClause = r.Definition
		case "x":
			c.Type = models.ConstraintExclude
			c.CheckClause = r.Definition
		}

		if includeList {
			t.Constraints = append(t.Constraints, c)
			schema.Constraints = append(schema.Constraints, c)
		}
	}
	return nil
}

func (a *Adapter) collectIndexes(ctx context.Context, schema *models.DatabaseSchema, tables map[string]int) error {
	rows, err := queryRows[indexRow](ctx, a, `
		SELECT n.nspname, c.relname, i.relname, ix.indisunique, ix.indisprimary, am.amname::text,
			ARRAY(SELECT pg_get_indexdef(ix.indexrelid, k, true) FROM generate_series(1, ix.indnkeyatts) k ORDER BY k),
			ARRAY(SELECT (ix.indoption[k - 1] & 1) = 1 FROM generate_series(1, ix.indnkeyatts) k ORDER BY k)
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class c ON c.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_am am ON am.oid = i.relam
		WHERE `+schemaFilter+`
		ORDER BY n.nspname, c.relname, i.relname`, a.cfg.Collection.IncludeSystemTables)
	if err != nil {
		return datasource.ClassifyQueryError("query indexes", err, classifyError)
	}

	for _, r := range rows {
		i, ok := tables[r.Schema+"."+r.Table]
		if !ok {
			continue
		}
		idx := models.Index{
			Name:      r.Name,
			Table:     r.Table,
			Schema:    r.Schema,
			Columns:   make([]models.IndexColumn, len(r.Columns)),
			IsUnique:  r.IsUnique,
			IsPrimary: r.IsPrimary,
			IndexType: r.Method,
		}
		for j, name := range r.Columns {
			dir := models.Ascending
			if j < len(r.Descending) && r.Descending[j] {
				dir = models.Descending
			}
			idx.Columns[j] = models.IndexColumn{Name: name, Direction: dir}
		}
		schema.Tables[i].Indexes = append(schema.Tables[i].Indexes, idx)
		schema.Indexes = append(schema.Indexes, idx)
	}
	return nil
}
