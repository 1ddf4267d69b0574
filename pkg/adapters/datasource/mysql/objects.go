package mysql

import (
	"context"
	"database/sql"
	"strings"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// collectRoutines reads stored procedures and functions with their
// parameters. Function return values (ORDINAL_POSITION 0) are not parameters.
func (a *Adapter) collectRoutines(ctx context.Context, schema *models.DatabaseSchema) error {
	type routineKey struct{ schema, name string }
	params := make(map[routineKey][]models.Parameter)

	where, args := a.scope("SPECIFIC_SCHEMA")
	err := a.each(ctx, `
		SELECT SPECIFIC_SCHEMA, SPECIFIC_NAME, COALESCE(PARAMETER_NAME, ''),
			COALESCE(PARAMETER_MODE, ''), COALESCE(DTD_IDENTIFIER, '')
		FROM information_schema.PARAMETERS
		WHERE ORDINAL_POSITION > 0 AND `+where+`
		ORDER BY SPECIFIC_SCHEMA, SPECIFIC_NAME, ORDINAL_POSITION`, args, func(rows *sql.Rows) error {
		var (
			k routineKey
			p models.Parameter
		)
		if err := rows.Scan(&k.schema, &k.name, &p.Name, &p.Direction, &p.DataType); err != nil {
			return err
		}
		if p.Direction == "" {
			p.Direction = "IN"
		}
		params[k] = append(params[k], p)
		return nil
	})
	if err != nil {
		return err
	}

	coll := a.cfg.Collection
	where, args = a.scope("ROUTINE_SCHEMA")
	return a.each(ctx, `
		SELECT ROUTINE_SCHEMA, ROUTINE_NAME, SPECIFIC_NAME, ROUTINE_TYPE, ROUTINE_BODY,
			COALESCE(DTD_IDENTIFIER, ''), COALESCE(ROUTINE_DEFINITION, ''), COALESCE(ROUTINE_COMMENT, '')
		FROM information_schema.ROUTINES
		WHERE `+where+`
		ORDER BY ROUTINE_SCHEMA, ROUTINE_NAME`, args, func(rows *sql.Rows) error {
		var (
			r                  models.Routine
			specific, kind, lg string
		)
		if err := rows.Scan(&r.Schema, &r.Name, &specific, &kind, &lg, &r.ReturnType, &r.Definition, &r.Comment); err != nil {
			return err
		}
		r.Language = strings.ToLower(lg)
		r.Parameters = params[routineKey{r.Schema, specific}]
		if r.Parameters == nil {
			r.Parameters = []models.Parameter{}
		}
		switch {
		case kind == "PROCEDURE" && coll.IncludeProcedures:
			schema.Procedures = append(schema.Procedures, r)
		case kind == "FUNCTION" && coll.IncludeFunctions:
			schema.Functions = append(schema.Functions, r)
		}
		return nil
	})
}

// collectTriggers reads row triggers. MySQL triggers fire on exactly one event.
func (a *Adapter) collectTriggers(ctx context.Context, schema *models.DatabaseSchema) error {
	where, args := a.scope("TRIGGER_SCHEMA")
	return a.each(ctx, `
		SELECT TRIGGER_SCHEMA, TRIGGER_NAME, EVENT_OBJECT_TABLE, EVENT_MANIPULATION,
			ACTION_TIMING, ACTION_STATEMENT
		FROM information_schema.TRIGGERS
		WHERE `+where+`
		ORDER BY TRIGGER_SCHEMA, EVENT_OBJECT_TABLE, TRIGGER_NAME`, args, func(rows *sql.Rows) error {
		var t models.Trigger
		if err := rows.Scan(&t.Schema, &t.Name, &t.Table, &t.Event, &t.Timing, &t.Definition); err != nil {
			return err
		}
		schema.Triggers = append(schema.Triggers, t)
		return nil
	})
}
