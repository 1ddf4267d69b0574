package mssql

import (
	"context"
	"database/sql"
	"strings"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// collectRoutines reads T-SQL procedures and functions (scalar, inline and
// multi-statement table-valued) with their parameters. A scalar function's
// return value is the parameter with parameter_id 0.
func (a *Adapter) collectRoutines(ctx context.Context, schema *models.DatabaseSchema) error {
	params := make(map[int][]models.Parameter)
	returns := make(map[int]string)

	err := a.each(ctx, `
		SET NOCOUNT ON;
		SELECT p.object_id, p.parameter_id, p.name, TYPE_NAME(p.user_type_id), p.is_output
		FROM sys.parameters p
		JOIN sys.objects o ON o.object_id = p.object_id
		WHERE o.type IN ('P', 'FN', 'IF', 'TF') AND (@shipped = 1 OR o.is_ms_shipped = 0)
		ORDER BY p.object_id, p.parameter_id`, []any{a.includeShipped()}, func(rows *sql.Rows) error {
		var (
			id, position   int
			name, typeName string
			output         bool
		)
		if err := rows.Scan(&id, &position, &name, &typeName, &output); err != nil {
			return err
		}
		if position == 0 {
			returns[id] = typeName
			return nil
		}
		dir := "IN"
		if output {
			dir = "INOUT"
		}
		params[id] = append(params[id], models.Parameter{
			Name:      strings.TrimPrefix(name, "@"),
			DataType:  typeName,
			Direction: dir,
		})
		return nil
	})
	if err != nil {
		return err
	}

	coll := a.cfg.Collection
	return a.each(ctx, `
		SET NOCOUNT ON;
		SELECT o.object_id, s.name, o.name, RTRIM(o.type),
			COALESCE(m.definition, N''), COALESCE(CAST(ep.value AS nvarchar(4000)), N'')
		FROM sys.objects o
		JOIN sys.schemas s ON s.schema_id = o.schema_id
		LEFT JOIN sys.sql_modules m ON m.object_id = o.object_id
		LEFT JOIN sys.extended_properties ep
			ON ep.class = 1 AND ep.major_id = o.object_id AND ep.minor_id = 0 AND ep.name = N'MS_Description'
		WHERE o.type IN ('P', 'FN', 'IF', 'TF') AND (@shipped = 1 OR o.is_ms_shipped = 0)
		ORDER BY s.name, o.name`, []any{a.includeShipped()}, func(rows *sql.Rows) error {
		var (
			id   int
			kind string
			r    models.Routine
		)
		if err := rows.Scan(&id, &r.Schema, &r.Name, &kind, &r.Definition, &r.Comment); err != nil {
			return err
		}
		r.Language = "tsql"
		r.Parameters = params[id]
		if r.Parameters == nil {
			r.Parameters = []models.Parameter{}
		}
		switch kind {
		case "P":
			if coll.IncludeProcedures {
				schema.Procedures = append(schema.Procedures, r)
			}
		case "FN":
			r.ReturnType = returns[id]
			if coll.IncludeFunctions {
				schema.Functions = append(schema.Functions, r)
			}
		default:
			r.ReturnType = "table"
			if coll.IncludeFunctions {
				schema.Functions = append(schema.Functions, r)
			}
		}
		return nil
	})
}

// collectTriggers reads DML triggers on tables and views. One trigger may
// fire on several events; they are joined as "INSERT OR UPDATE".
func (a *Adapter) collectTriggers(ctx context.Context, schema *models.DatabaseSchema) error {
	positions := make(map[int]int)
	return a.each(ctx, `
		SET NOCOUNT ON;
		SELECT tr.object_id, OBJECT_SCHEMA_NAME(tr.parent_id), OBJECT_NAME(tr.parent_id), tr.name,
			tr.is_instead_of_trigger, te.type_desc, COALESCE(OBJECT_DEFINITION(tr.object_id), N'')
		FROM sys.triggers tr
		JOIN sys.trigger_events te ON te.object_id = tr.object_id
		WHERE tr.parent_class = 1 AND (@shipped = 1 OR tr.is_ms_shipped = 0)
		ORDER BY OBJECT_SCHEMA_NAME(tr.parent_id), OBJECT_NAME(tr.parent_id), tr.name, te.type`,
		[]any{a.includeShipped()}, func(rows *sql.Rows) error {
			var (
				id        int
				insteadOf bool
				event     string
				t         models.Trigger
			)
			if err := rows.Scan(&id, &t.Schema, &t.Table, &t.Name, &insteadOf, &event, &t.Definition); err != nil {
				return err
			}
			if pos, ok := positions[id]; ok {
				schema.Triggers[pos].Event += " OR " + event
				return nil
			}
			t.Event = event
			t.Timing = "AFTER"
			if insteadOf {
				t.Timing = "INSTEAD OF"
			}
			positions[id] = len(schema.Triggers)
			schema.Triggers = append(schema.Triggers, t)
			return nil
		})
}

// collectCustomTypes reads alias types and table types.
func (a *Adapter) collectCustomTypes(ctx context.Context, schema *models.DatabaseSchema) error {
	return a.each(ctx, `
		SET NOCOUNT ON;
		SELECT SCHEMA_NAME(t.schema_id), t.name, t.is_table_type, TYPE_NAME(t.system_type_id),
			t.max_length, t.precision, t.scale
		FROM sys.types t
		WHERE t.is_user_defined = 1 AND t.is_assembly_type = 0
		ORDER BY SCHEMA_NAME(t.schema_id), t.name`, nil, func(rows *sql.Rows) error {
		var (
			schemaName, name string
			tableType        bool
			base             sql.NullString
			c                columnRow
		)
		if err := rows.Scan(&schemaName, &name, &tableType, &base, &c.maxLength, &c.precision, &c.scale); err != nil {
			return err
		}
		ct := models.CustomType{Name: name, Schema: schemaName, Category: "table"}
		if !tableType {
			ct.Category = "domain"
			c.typeName = base.String
			ct.Definition = c.column().DataType.String()
		}
		schema.CustomTypes = append(schema.CustomTypes, ct)
		return nil
	})
}
