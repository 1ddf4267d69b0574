package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/typemap"
)

// CollectorVersion is stamped into collected schemas; main overrides it at build time.
var CollectorVersion = "dev"

var (
	triggerPattern      = regexp.MustCompile(`(?is)\b(BEFORE|AFTER|INSTEAD\s+OF)\s+(INSERT|DELETE|UPDATE)\b`)
	withoutRowIDPattern = regexp.MustCompile(`(?i)\)\s*WITHOUT\s+ROWID\s*;?\s*$`)
	autoincrementRegexp = regexp.MustCompile(`(?i)\bAUTOINCREMENT\b`)
	integerDeclPattern  = regexp.MustCompile(`(?i)(?:^|[\s,(])(?:"([^"]+)"|` + "`([^`]+)`" + `|\[([^\]]+)\]|([A-Za-z_][\w$]*))\s+INTEGER\b`)
)

type masterEntry struct {
	name    string
	objType string
	table   string
	sql     string
}

// CollectSchema reads sqlite_master and the table pragmas.
func (a *Adapter) CollectSchema(ctx context.Context) (*models.DatabaseSchema, error) {
	started := time.Now()

	infoCtx, cancel := a.queryCtx(ctx)
	info, err := a.databaseInfo(infoCtx)
	cancel()
	if err != nil {
		return nil, err
	}
	schema := models.NewDatabaseSchema(info, CollectorVersion)

	masterCtx, cancel := a.queryCtx(ctx)
	entries, err := a.masterEntries(masterCtx)
	cancel()
	if err != nil {
		return nil, err
	}

	coll := a.cfg.Collection
	for _, e := range entries {
		switch e.objType {
		case "table":
			if !coll.IncludeSystemTables && isSystemTable(e.name) {
				continue
			}
			tableCtx, cancel := a.queryCtx(ctx)
			table, err := a.loadTable(tableCtx, e.name, e.sql)
			cancel()
			if err != nil {
				return nil, err
			}
			if !coll.IncludeIndexes {
				table.Indexes = []models.Index{}
			}
			if !coll.IncludeConstraints {
				table.Constraints = []models.Constraint{}
			}
			schema.Tables = append(schema.Tables, *table)
			schema.Indexes = append(schema.Indexes, table.Indexes...)
			schema.Constraints = append(schema.Constraints, table.Constraints...)
		case "view":
			if !coll.IncludeViews {
				continue
			}
			viewCtx, cancel := a.queryCtx(ctx)
			columns, err := a.loadColumns(viewCtx, e.name, nil)
			cancel()
			if err != nil {
				schema.AddWarning("could not read columns of view %s: %s", e.name, datasource.ClassifyQueryError("read view", err, classifyError))
				columns = []models.Column{}
			}
			schema.Views = append(schema.Views, models.View{Name: e.name, Definition: e.sql, Columns: columns})
		case "trigger":
			if !coll.IncludeTriggers {
				continue
			}
			schema.Triggers = append(schema.Triggers, parseTrigger(e))
		}
	}

	a.logger.Debug("Collected SQLite schema",
		zap.String("database", a.conn.Redacted()),
		zap.Int("tables", len(schema.Tables)),
		zap.Int("views", len(schema.Views)))

	schema.Finish(started)
	return schema, nil
}

// queryCtx bounds one catalog read, a single table's pragmas at most, by the
// configured query timeout.
func (a *Adapter) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.conn.QueryTimeout)
}

func isSystemTable(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "sqlite_")
}

func (a *Adapter) databaseInfo(ctx context.Context) (models.DatabaseInfo, error) {
	info := models.DatabaseInfo{
		Name:         a.dsn.Name(),
		DatabaseType: models.DatabaseTypeSQLite,
		AccessLevel:  models.AccessLevelFull,
	}

	if err := a.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&info.Version); err != nil {
		return info, datasource.ClassifyQueryError("read sqlite version", err, classifyError)
	}
	if err := a.db.QueryRowContext(ctx, "PRAGMA encoding").Scan(&info.Encoding); err != nil {
		return info, datasource.ClassifyQueryError("read encoding", err, classifyError)
	}

	var pageCount, pageSize int64
	if err := a.db.QueryRowContext(ctx, "SELECT page_count, page_size FROM pragma_page_count(), pragma_page_size()").Scan(&pageCount, &pageSize); err == nil {
		size := pageCount * pageSize
		info.SizeBytes = &size
	}
	return info, nil
}

func (a *Adapter) masterEntries(ctx context.Context) ([]masterEntry, error) {
	const query = `
		SELECT name, type, tbl_name, COALESCE(sql, '')
		FROM sqlite_master
		WHERE type IN ('table', 'view', 'trigger')
		ORDER BY type, name
	`
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, datasource.ClassifyQueryError("query sqlite_master", err, classifyError)
	}
	defer rows.Close()

	var entries []masterEntry
	for rows.Next() {
		var e masterEntry
		if err := rows.Scan(&e.name, &e.objType, &e.table, &e.sql); err != nil {
			return nil, datasource.ClassifyQueryError("scan sqlite_master", err, classifyError)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, datasource.ClassifyQueryError("iterate sqlite_master", err, classifyError)
	}
	return entries, nil
}

// loadTable reads columns, keys and indexes of one table. createSQL is the
// table's CREATE statement from sqlite_master.
func (a *Adapter) loadTable(ctx context.Context, name, createSQL string) (*models.Table, error) {
	table := &models.Table{
		Name:        name,
		ForeignKeys: []models.ForeignKey{},
		Indexes:     []models.Index{},
		Constraints: []models.Constraint{},
	}

	var pk []pkPart
	columns, err := a.loadColumns(ctx, name, &pk)
	if err != nil {
		return nil, datasource.ClassifyQueryError("read columns of "+name, err, classifyError)
	}
	table.Columns = columns

	if len(pk) > 0 {
		sort.Slice(pk, func(i, j int) bool { return pk[i].seq < pk[j].seq })
		table.PrimaryKey = &models.PrimaryKey{Name: name + "_pk"}
		for _, p := range pk {
			table.PrimaryKey.Columns = append(table.PrimaryKey.Columns, p.column)
		}
		table.Constraints = append(table.Constraints, models.Constraint{
			Name:    table.PrimaryKey.Name,
			Table:   name,
			Type:    models.ConstraintPrimaryKey,
			Columns: table.PrimaryKey.Columns,
		})
		markRowIDAlias(table, createSQL)
	}

	if table.ForeignKeys, err = a.loadForeignKeys(ctx, name); err != nil {
		return nil, datasource.ClassifyQueryError("read foreign keys of "+name, err, classifyError)
	}
	for _, fk := range table.ForeignKeys {
		table.Constraints = append(table.Constraints, models.Constraint{
			Name:    fk.Name,
			Table:   name,
			Type:    models.ConstraintForeignKey,
			Columns: fk.Columns,
		})
	}

	if table.Indexes, err = a.loadIndexes(ctx, name); err != nil {
		return nil, datasource.ClassifyQueryError("read indexes of "+name, err, classifyError)
	}
	for _, idx := range table.Indexes {
		if idx.IsUnique && !idx.IsPrimary {
			cols := make([]string, len(idx.Columns))
			for i, c := range idx.Columns {
				cols[i] = c.Name
			}
			table.Constraints = append(table.Constraints, models.Constraint{
				Name:    idx.Name,
				Table:   name,
				Type:    models.ConstraintUnique,
				Columns: cols,
			})
		}
	}

	table.NormalizeOrdinals()
	return table, nil
}

type pkPart struct {
	seq    int
	column string
}

// loadColumns reads pragma_table_info. When pk is non-nil the primary key
// parts are appended to it.
func (a *Adapter) loadColumns(ctx context.Context, table string, pk *[]pkPart) ([]models.Column, error) {
	const query = `SELECT cid, name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`

	rows, err := a.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := []models.Column{}
	for rows.Next() {
		var (
			cid, notNull, pkSeq int
			name, declType      string
			dflt                sql.NullString
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pkSeq); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col := models.Column{
			Name:            name,
			DataType:        typemap.SQLite(declType, nil, nil, nil),
			IsNullable:      notNull == 0 && pkSeq == 0,
			IsPrimaryKey:    pkSeq > 0,
			OrdinalPosition: cid + 1,
		}
		if dflt.Valid {
			v := dflt.String
			col.DefaultValue = &v
		}
		if pk != nil && pkSeq > 0 {
			*pk = append(*pk, pkPart{seq: pkSeq, column: name})
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// markRowIDAlias flags a single INTEGER PRIMARY KEY column, which aliases the
// rowid and is assigned automatically.
func markRowIDAlias(table *models.Table, createSQL string) {
	if table.PrimaryKey == nil || len(table.PrimaryKey.Columns) != 1 || withoutRowIDPattern.MatchString(createSQL) {
		return
	}
	for i := range table.Columns {
		c := &table.Columns[i]
		if c.Name != table.PrimaryKey.Columns[0] {
			continue
		}
		if isIntegerDecl(createSQL, c.Name) || autoincrementRegexp.MatchString(createSQL) {
			c.IsAutoIncrement = true
		}
	}
}

// isIntegerDecl reports whether column is declared with the exact type name
// INTEGER, the only spelling that makes it a rowid alias.
func isIntegerDecl(createSQL, column string) bool {
	for _, m := range integerDeclPattern.FindAllStringSubmatch(createSQL, -1) {
		for _, name := range m[1:] {
			if name != "" && strings.EqualFold(name, column) {
				return true
			}
		}
	}
	return false
}

func (a *Adapter) loadForeignKeys(ctx context.Context, table string) ([]models.ForeignKey, error) {
	const query = `SELECT id, seq, "table", "from", COALESCE("to", ''), on_update, on_delete FROM pragma_foreign_key_list(?) ORDER BY id, seq`

	rows, err := a.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := []models.ForeignKey{}
	byID := make(map[int]int)
	for rows.Next() {
		var (
			id, seq                          int
			refTable, from, to, upd, onDelete string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &upd, &onDelete); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		i, ok := byID[id]
		if !ok {
			fks = append(fks, models.ForeignKey{
				Name:            fmt.Sprintf("%s_fk_%d", table, id),
				ReferencedTable: refTable,
				OnDelete:        models.ParseReferentialAction(onDelete),
				OnUpdate:        models.ParseReferentialAction(upd),
			})
			i = len(fks) - 1
			byID[id] = i
		}
		fks[i].Columns = append(fks[i].Columns, from)
		fks[i].ReferencedColumns = append(fks[i].ReferencedColumns, to)
	}
	return fks, rows.Err()
}

func (a *Adapter) loadIndexes(ctx context.Context, table string) ([]models.Index, error) {
	const listQuery = `SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY name`

	rows, err := a.db.QueryContext(ctx, listQuery, table)
	if err != nil {
		return nil, err
	}
	var indexes []models.Index
	for rows.Next() {
		var (
			name, origin string
			unique       int
		)
		if err := rows.Scan(&name, &unique, &origin); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan index: %w", err)
		}
		indexes = append(indexes, models.Index{
			Name:      name,
			Table:     table,
			IsUnique:  unique == 1,
			IsPrimary: origin == "pk",
			IndexType: "btree",
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const columnQuery = `SELECT COALESCE(name, ''), "desc" FROM pragma_index_xinfo(?) WHERE key = 1 ORDER BY seqno`
	for i := range indexes {
		cols, err := a.db.QueryContext(ctx, columnQuery, indexes[i].Name)
		if err != nil {
			return nil, err
		}
		indexes[i].Columns = []models.IndexColumn{}
		for cols.Next() {
			var (
				name string
				desc int
			)
			if err := cols.Scan(&name, &desc); err != nil {
				cols.Close()
				return nil, fmt.Errorf("scan index column: %w", err)
			}
			if name == "" {
				name = "<expression>"
			}
			dir := models.Ascending
			if desc == 1 {
				dir = models.Descending
			}
			indexes[i].Columns = append(indexes[i].Columns, models.IndexColumn{Name: name, Direction: dir})
		}
		cols.Close()
		if err := cols.Err(); err != nil {
			return nil, err
		}
	}
	if indexes == nil {
		indexes = []models.Index{}
	}
	return indexes, nil
}

func parseTrigger(e masterEntry) models.Trigger {
	t := models.Trigger{Name: e.name, Table: e.table, Definition: e.sql}
	if m := triggerPattern.FindStringSubmatch(e.sql); m != nil {
		t.Timing = strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
		t.Event = strings.ToUpper(m[2])
	}
	return t
}
