package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

type routineRow struct {
	Schema     string
	Name       string
	Specific   string
	Language   string
	Kind       string
	ReturnType string
	Definition string
	Comment    string
}

type parameterRow struct {
	Schema   string
	Specific string
	Name     string
	DataType string
	Mode     string
}

type triggerRow struct {
	Schema     string
	Table      string
	Name       string
	Definition string
	Type       int16
}

type customTypeRow struct {
	Schema     string
	Name       string
	Kind       string
	Values     []string
	Definition string
}

// pg_trigger.tgtype bits.
const (
	triggerBefore   = 1 << 1
	triggerInsert   = 1 << 2
	triggerDelete   = 1 << 3
	triggerUpdate   = 1 << 4
	triggerTruncate = 1 << 5
	triggerInstead  = 1 << 6
)

func (a *Adapter) collectRoutines(ctx context.Context, schema *models.DatabaseSchema) error {
	sys := a.cfg.Collection.IncludeSystemTables
	routines, err := queryRows[routineRow](ctx, a, `
		SELECT n.nspname, p.proname, p.proname || '_' || p.oid, l.lanname::text, p.prokind::text,
			COALESCE(pg_get_function_result(p.oid), ''),
			COALESCE(pg_get_functiondef(p.oid), ''),
			COALESCE(obj_description(p.oid, 'pg_proc'), '')
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		JOIN pg_language l ON l.oid = p.prolang
		WHERE p.prokind IN ('f', 'p') AND `+schemaFilter+` AND `+fmt.Sprintf(notExtensionMember, "p.oid")+`
		ORDER BY n.nspname, p.proname, p.oid`, sys)
	if err != nil {
		return err
	}

	params, err := queryRows[parameterRow](ctx, a, `
		SELECT specific_schema::text, specific_name::text, COALESCE(parameter_name::text, ''),
			CASE WHEN data_type IN ('USER-DEFINED', 'ARRAY') THEN udt_name::text ELSE data_type::text END,
			COALESCE(parameter_mode::text, 'IN')
		FROM information_schema.parameters
		ORDER BY specific_schema, specific_name, ordinal_position`)
	if err != nil {
		return err
	}
	bySpecific := make(map[string][]models.Parameter)
	for _, p := range params {
		key := p.Schema + "." + p.Specific
		bySpecific[key] = append(bySpecific[key], models.Parameter{Name: p.Name, DataType: p.DataType, Direction: p.Mode})
	}

	for _, r := range routines {
		routine := models.Routine{
			Name:       r.Name,
			Schema:     r.Schema,
			Language:   r.Language,
			ReturnType: r.ReturnType,
			Parameters: bySpecific[r.Schema+"."+r.Specific],
			Definition: r.Definition,
			Comment:    r.Comment,
		}
		if routine.Parameters == nil {
			routine.Parameters = []models.Parameter{}
		}
		if r.Kind == "p" {
			if a.cfg.Collection.IncludeProcedures {
				schema.Procedures = append(schema.Procedures, routine)
			}
		} else if a.cfg.Collection.IncludeFunctions {
			schema.Functions = append(schema.Functions, routine)
		}
	}
	return nil
}

func (a *Adapter) collectTriggers(ctx context.Context, schema *models.DatabaseSchema) error {
	rows, err := queryRows[triggerRow](ctx, a, `
		SELECT n.nspname, c.relname, t.tgname, pg_get_triggerdef(t.oid, true), t.tgtype
		FROM pg_trigger t
		JOIN pg_class c ON c.oid = t.tgrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE NOT t.tgisinternal AND `+schemaFilter+`
		ORDER BY n.nspname, c.relname, t.tgname`, a.cfg.Collection.IncludeSystemTables)
	if err != nil {
		return err
	}
	for _, r := range rows {
		timing, event := decodeTriggerType(r.Type)
		schema.Triggers = append(schema.Triggers, models.Trigger{
			Name:       r.Name,
			Table:      r.Table,
			Schema:     r.Schema,
			Event:      event,
			Timing:     timing,
			Definition: r.Definition,
		})
	}
	return nil
}

// decodeTriggerType splits pg_trigger.tgtype into timing and events
// ("INSERT OR UPDATE").
func decodeTriggerType(t int16) (timing, event string) {
	switch {
	case t&triggerInstead != 0:
		timing = "INSTEAD OF"
	case t&triggerBefore != 0:
		timing = "BEFORE"
	default:
		timing = "AFTER"
	}
	var events []string
	if t&triggerInsert != 0 {
		events = append(events, "INSERT")
	}
	if t&triggerUpdate != 0 {
		events = append(events, "UPDATE")
	}
	if t&triggerDelete != 0 {
		events = append(events, "DELETE")
	}
	if t&triggerTruncate != 0 {
		events = append(events, "TRUNCATE")
	}
	return timing, strings.Join(events, " OR ")
}

func (a *Adapter) collectCustomTypes(ctx context.Context, schema *models.DatabaseSchema) error {
	rows, err := queryRows[customTypeRow](ctx, a, `
		SELECT n.nspname, t.typname, t.typtype::text,
			CASE WHEN t.typtype = 'e' THEN ARRAY(
				SELECT e.enumlabel::text FROM pg_enum e WHERE e.enumtypid = t.oid ORDER BY e.enumsortorder)
			ELSE ARRAY[]::text[] END,
			COALESCE(CASE t.typtype
				WHEN 'd' THEN format_type(t.typbasetype, t.typtypmod)
				WHEN 'c' THEN (SELECT string_agg(a.attname || ' ' || format_type(a.atttypid, a.atttypmod), ', ' ORDER BY a.attnum)
					FROM pg_attribute a WHERE a.attrelid = t.typrelid AND a.attnum > 0 AND NOT a.attisdropped)
				WHEN 'r' THEN (SELECT format_type(r.rngsubtype, NULL) FROM pg_range r WHERE r.rngtypid = t.oid)
			END, '')
		FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		LEFT JOIN pg_class c ON c.oid = t.typrelid
		WHERE (t.typtype IN ('e', 'd', 'r') OR (t.typtype = 'c' AND c.relkind = 'c'))
			AND `+schemaFilter+` AND `+fmt.Sprintf(notExtensionMember, "t.oid")+`
		ORDER BY n.nspname, t.typname`, a.cfg.Collection.IncludeSystemTables)
	if err != nil {
		return err
	}
	for _, r := range rows {
		ct := models.CustomType{
			Name:       r.Name,
			Schema:     r.Schema,
			Category:   customTypeCategory(r.Kind),
			Definition: r.Definition,
		}
		if len(r.Values) > 0 {
			ct.Values = r.Values
		}
		schema.CustomTypes = append(schema.CustomTypes, ct)
	}
	return nil
}

func customTypeCategory(typtype string) string {
	switch typtype {
	case "e":
		return "enum"
	case "d":
		return "domain"
	case "c":
		return "composite"
	case "r":
		return "range"
	default:
		return typtype
	}
}
