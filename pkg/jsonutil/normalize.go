// Package jsonutil converts values returned by database drivers into
// JSON-encodable values for sampled rows.
package jsonutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/netip"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

// maxDepth bounds recursion into nested arrays and documents.
const maxDepth = 32

// Normalize converts a driver value to a JSON-encodable value.
// The second result is false when v (or something nested in it) has no JSON
// form; the unsupported part is replaced by nil.
func Normalize(v any) (any, bool) {
	return normalize(v, nil, 0)
}

// NormalizeAs is Normalize with the column's unified type as a hint. The hint
// resolves driver values that are ambiguous on their own, such as []byte
// holding text, a decimal rendered as bytes, or a 16-byte UUID.
func NormalizeAs(v any, hint models.UnifiedDataType) (any, bool) {
	return normalize(v, &hint, 0)
}

// NormalizeRow normalizes every value of a row. unsupported lists the columns
// whose values were replaced by nil, in column order.
func NormalizeRow(columns []string, values []any, hints []models.UnifiedDataType) (row map[string]any, unsupported []string) {
	row = make(map[string]any, len(columns))
	for i, col := range columns {
		var v any
		if i < len(values) {
			v = values[i]
		}
		var out any
		var ok bool
		if i < len(hints) {
			out, ok = NormalizeAs(v, hints[i])
		} else {
			out, ok = Normalize(v)
		}
		row[col] = out
		if !ok {
			unsupported = append(unsupported, col)
		}
	}
	return row, unsupported
}

func normalize(v any, hint *models.UnifiedDataType, depth int) (any, bool) {
	if depth > maxDepth {
		return nil, false
	}

	switch val := v.(type) {
	case nil:
		return nil, true
	case bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return val, true
	case float32:
		return finite(float64(val))
	case float64:
		return finite(val)
	case json.Number:
		return val, true
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(val, &decoded); err != nil {
			return nil, false
		}
		return decoded, true
	case []byte:
		return normalizeBytes(val, hint)
	case time.Time:
		return formatTime(val, hint), true
	case time.Duration:
		return val.String(), true
	case [16]byte:
		return uuid.UUID(val).String(), true
	case uuid.UUID:
		return val.String(), true
	case decimal.Decimal:
		return json.Number(val.String()), true
	case *big.Int:
		if val == nil {
			return nil, true
		}
		return json.Number(val.String()), true

	case pgtype.Numeric:
		return numeric(val)
	case pgtype.Interval:
		if !val.Valid {
			return nil, true
		}
		return formatInterval(val), true
	case pgtype.Time:
		if !val.Valid {
			return nil, true
		}
		return formatTimeOfDay(val.Microseconds), true
	case pgtype.Date:
		if !val.Valid {
			return nil, true
		}
		if val.InfinityModifier != pgtype.Finite {
			return val.InfinityModifier.String(), true
		}
		return val.Time.Format("2006-01-02"), true
	case pgtype.Timestamptz:
		if !val.Valid {
			return nil, true
		}
		if val.InfinityModifier != pgtype.Finite {
			return val.InfinityModifier.String(), true
		}
		return val.Time.UTC().Format(time.RFC3339Nano), true
	case pgtype.Timestamp:
		if !val.Valid {
			return nil, true
		}
		if val.InfinityModifier != pgtype.Finite {
			return val.InfinityModifier.String(), true
		}
		return val.Time.Format("2006-01-02T15:04:05.999999999"), true
	case netip.Prefix:
		return val.String(), true
	case netip.Addr:
		return val.String(), true
	case net.HardwareAddr:
		return val.String(), true
	case *net.IPNet:
		if val == nil {
			return nil, true
		}
		return val.String(), true

	case primitive.ObjectID:
		return val.Hex(), true
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano), true
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC().Format(time.RFC3339), true
	case primitive.Decimal128:
		return json.Number(val.String()), true
	case primitive.Binary:
		if (val.Subtype == 0x04 || val.Subtype == 0x03) && len(val.Data) == 16 {
			u, err := uuid.FromBytes(val.Data)
			if err == nil {
				return u.String(), true
			}
		}
		return base64.StdEncoding.EncodeToString(val.Data), true
	case primitive.Regex:
		return "/" + val.Pattern + "/" + val.Options, true
	case primitive.JavaScript:
		return string(val), true
	case primitive.Symbol:
		return string(val), true
	case primitive.Null, primitive.Undefined:
		return nil, true
	case primitive.D:
		out := make(map[string]any, len(val))
		ok := true
		for _, e := range val {
			nv, nok := normalize(e.Value, nil, depth+1)
			out[e.Key] = nv
			ok = ok && nok
		}
		return out, ok
	case primitive.M:
		return normalizeMap(map[string]any(val), depth)
	case map[string]any:
		return normalizeMap(val, depth)
	case primitive.A:
		return normalizeSlice([]any(val), elementHint(hint), depth)
	case []any:
		return normalizeSlice(val, elementHint(hint), depth)
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func finite(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

func normalizeMap(m map[string]any, depth int) (any, bool) {
	out := make(map[string]any, len(m))
	ok := true
	for k, v := range m {
		nv, nok := normalize(v, nil, depth+1)
		out[k] = nv
		ok = ok && nok
	}
	return out, ok
}

func normalizeSlice(items []any, hint *models.UnifiedDataType, depth int) (any, bool) {
	out := make([]any, len(items))
	ok := true
	for i, item := range items {
		nv, nok := normalize(item, hint, depth+1)
		out[i] = nv
		ok = ok && nok
	}
	return out, ok
}

func elementHint(hint *models.UnifiedDataType) *models.UnifiedDataType {
	if hint == nil || hint.Kind != models.KindArray {
		return nil
	}
	return hint.ElementType
}

func normalizeBytes(b []byte, hint *models.UnifiedDataType) (any, bool) {
	if hint != nil {
		switch hint.Kind {
		case models.KindBinary:
			return base64.StdEncoding.EncodeToString(b), true
		case models.KindUUID:
			if len(b) == 16 {
				return uuid.UUID(b).String(), true
			}
			if u, err := uuid.ParseBytes(b); err == nil {
				return u.String(), true
			}
		case models.KindInteger, models.KindFloat:
			// Text-protocol drivers hand numbers back as their decimal text.
			if d, err := decimal.NewFromString(strings.TrimSpace(string(b))); err == nil {
				return json.Number(d.String()), true
			}
		case models.KindBoolean:
			switch strings.TrimSpace(string(b)) {
			case "1", "true", "TRUE", "t":
				return true, true
			case "0", "false", "FALSE", "f":
				return false, true
			}
			if len(b) == 1 {
				// BIT(1) comes back as a single raw byte.
				return b[0] != 0, true
			}
		case models.KindJSON:
			var decoded any
			if err := json.Unmarshal(b, &decoded); err == nil {
				return decoded, true
			}
		}
	}
	if utf8.Valid(b) {
		return string(b), true
	}
	return base64.StdEncoding.EncodeToString(b), true
}

func formatTime(t time.Time, hint *models.UnifiedDataType) string {
	if hint != nil {
		switch hint.Kind {
		case models.KindDate:
			return t.Format("2006-01-02")
		case models.KindTime:
			return t.Format("15:04:05.999999999")
		case models.KindDateTime:
			if !hint.WithTimezone {
				return t.Format("2006-01-02T15:04:05.999999999")
			}
		}
	}
	return t.Format(time.RFC3339Nano)
}

func numeric(n pgtype.Numeric) (any, bool) {
	if !n.Valid {
		return nil, true
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return nil, false
	}
	if n.Int == nil {
		return json.Number("0"), true
	}
	return json.Number(decimal.NewFromBigInt(n.Int, n.Exp).String()), true
}

func formatInterval(iv pgtype.Interval) string {
	micros := iv.Microseconds
	sign := ""
	if micros < 0 {
		sign = "-"
		micros = -micros
	}
	secs := float64(micros) / 1e6
	return fmt.Sprintf("P%dM%dDT%s%gS", iv.Months, iv.Days, sign, secs)
}

func formatTimeOfDay(micros int64) string {
	d := time.Duration(micros) * time.Microsecond
	return time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(d).Format("15:04:05.999999")
}
