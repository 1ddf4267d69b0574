// Package typemap maps native column types of each supported engine onto
// models.UnifiedDataType. Every function here is pure: the same input always
// yields the same output, and unknown types fall back to a Custom value
// carrying the original name instead of failing.
package typemap

import (
	"strconv"
	"strings"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// MapperFunc is the shape shared by the per-engine mappers. Length, precision
// and scale come from the catalog and take precedence over values parsed out
// of the type declaration itself.
type MapperFunc func(nativeType string, length, precision, scale *int) models.UnifiedDataType

// Declaration is a parsed column type declaration such as
// "DECIMAL(10,2) UNSIGNED" or "character varying(64)[]".
type Declaration struct {
	Base       string   // lower-cased base name without parameters or modifiers, e.g. "character varying"
	Params     []string // raw parameters in parentheses
	Unsigned   bool
	Zerofill   bool
	ArrayDepth int // number of trailing [] or ARRAY suffixes
}

// ParseDeclaration splits a declared type into base name, parameters and
// modifiers. It never fails; garbage in gives a best-effort base name out.
func ParseDeclaration(decl string) Declaration {
	var d Declaration
	s := strings.ToLower(strings.TrimSpace(decl))

	for {
		switch {
		case strings.HasSuffix(s, "[]"):
			s = strings.TrimSpace(strings.TrimSuffix(s, "[]"))
			d.ArrayDepth++
			continue
		case strings.HasSuffix(s, "]") && strings.Contains(s, "["):
			// integer[3]
			s = strings.TrimSpace(s[:strings.LastIndex(s, "[")])
			d.ArrayDepth++
			continue
		case strings.HasSuffix(s, " array"):
			s = strings.TrimSpace(strings.TrimSuffix(s, " array"))
			d.ArrayDepth++
			continue
		}
		break
	}

	var words []string
	for len(s) > 0 {
		open := strings.IndexByte(s, '(')
		if open < 0 {
			words = append(words, strings.Fields(s)...)
			break
		}
		words = append(words, strings.Fields(s[:open])...)
		closeIdx := matchingParen(s, open)
		if closeIdx < 0 {
			d.Params = append(d.Params, splitParams(s[open+1:])...)
			break
		}
		d.Params = append(d.Params, splitParams(s[open+1:closeIdx])...)
		s = s[closeIdx+1:]
	}

	base := words[:0]
	for _, w := range words {
		switch w {
		case "unsigned":
			d.Unsigned = true
		case "signed":
		case "zerofill":
			d.Zerofill = true
			d.Unsigned = true
		default:
			base = append(base, w)
		}
	}
	d.Base = strings.Join(base, " ")
	return d
}

// Param returns the i-th parameter as an integer, or nil when absent or not numeric.
func (d Declaration) Param(i int) *int {
	if i >= len(d.Params) {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(d.Params[i]))
	if err != nil {
		return nil
	}
	return &n
}

// IsMax reports whether the first parameter is the SQL Server MAX length marker.
func (d Declaration) IsMax() bool {
	return len(d.Params) > 0 && strings.TrimSpace(d.Params[0]) == "max"
}

func matchingParen(s string, open int) int {
	depth := 0
	inQuote := false
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

func splitParams(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '\'':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ',' && !inQuote:
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(out, strings.TrimSpace(cur.String()))
}

// decimalType applies the exact-numeric rule: scale 0 becomes an integer wide
// enough for the precision, anything else a float carrying the precision.
func decimalType(precision, scale *int) models.UnifiedDataType {
	if scale != nil && *scale == 0 {
		return models.IntegerType(bitsForDigits(precision), true)
	}
	return models.FloatType(precision)
}

func bitsForDigits(precision *int) int {
	switch {
	case precision == nil:
		return 64
	case *precision <= 4:
		return 16
	case *precision <= 9:
		return 32
	default:
		return 64
	}
}

// pick returns the catalog value when present, otherwise the parsed one.
func pick(catalog, parsed *int) *int {
	if catalog != nil {
		return catalog
	}
	return parsed
}

// positive drops zero and negative lengths, which catalogs use for "unbounded".
func positive(n *int) *int {
	if n == nil || *n <= 0 {
		return nil
	}
	return n
}

func wrapArray(elem models.UnifiedDataType, depth int) models.UnifiedDataType {
	for i := 0; i < depth; i++ {
		elem = models.ArrayType(elem)
	}
	return elem
}

func custom(nativeType string) models.UnifiedDataType {
	name := strings.TrimSpace(nativeType)
	if name == "" {
		name = "unknown"
	}
	return models.CustomDataType(name)
}

func bitType(length *int) models.UnifiedDataType {
	if length == nil || *length <= 1 {
		return models.BooleanType()
	}
	return models.BinaryType(models.IntPtr((*length + 7) / 8))
}
