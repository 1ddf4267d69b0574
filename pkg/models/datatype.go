package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DataTypeKind identifies a UnifiedDataType variant.
type DataTypeKind string

const (
	KindString   DataTypeKind = "string"
	KindInteger  DataTypeKind = "integer"
	KindFloat    DataTypeKind = "float"
	KindBoolean  DataTypeKind = "boolean"
	KindDateTime DataTypeKind = "datetime"
	KindDate     DataTypeKind = "date"
	KindTime     DataTypeKind = "time"
	KindBinary   DataTypeKind = "binary"
	KindJSON     DataTypeKind = "json"
	KindUUID     DataTypeKind = "uuid"
	KindArray    DataTypeKind = "array"
	KindCustom   DataTypeKind = "custom"
)

// UnifiedDataType is the engine-independent column type.
// Only the fields belonging to Kind are meaningful:
//   - String, Binary: MaxLength (nil = unbounded)
//   - Integer: Bits, Signed
//   - Float: Precision (nil = engine default)
//   - DateTime, Time: WithTimezone
//   - Array: ElementType
//   - Custom: TypeName
//
// Use the constructor functions rather than building the struct by hand.
type UnifiedDataType struct {
	Kind         DataTypeKind
	MaxLength    *int
	Bits         int
	Signed       bool
	Precision    *int
	WithTimezone bool
	ElementType  *UnifiedDataType
	TypeName     string
}

// StringType returns String{max_length}.
func StringType(maxLength *int) UnifiedDataType {
	return UnifiedDataType{Kind: KindString, MaxLength: maxLength}
}

// IntegerType returns Integer{bits, signed}.
func IntegerType(bits int, signed bool) UnifiedDataType {
	return UnifiedDataType{Kind: KindInteger, Bits: bits, Signed: signed}
}

// FloatType returns Float{precision}.
func FloatType(precision *int) UnifiedDataType {
	return UnifiedDataType{Kind: KindFloat, Precision: precision}
}

// BooleanType returns Boolean.
func BooleanType() UnifiedDataType {
	return UnifiedDataType{Kind: KindBoolean}
}

// DateTimeType returns DateTime{with_timezone}.
func DateTimeType(withTimezone bool) UnifiedDataType {
	return UnifiedDataType{Kind: KindDateTime, WithTimezone: withTimezone}
}

// DateType returns Date.
func DateType() UnifiedDataType {
	return UnifiedDataType{Kind: KindDate}
}

// TimeType returns Time{with_timezone}.
func TimeType(withTimezone bool) UnifiedDataType {
	return UnifiedDataType{Kind: KindTime, WithTimezone: withTimezone}
}

// BinaryType returns Binary{max_length}.
func BinaryType(maxLength *int) UnifiedDataType {
	return UnifiedDataType{Kind: KindBinary, MaxLength: maxLength}
}

// JSONType returns Json.
func JSONType() UnifiedDataType {
	return UnifiedDataType{Kind: KindJSON}
}

// UUIDType returns Uuid.
func UUIDType() UnifiedDataType {
	return UnifiedDataType{Kind: KindUUID}
}

// ArrayType returns Array{element_type}.
func ArrayType(element UnifiedDataType) UnifiedDataType {
	return UnifiedDataType{Kind: KindArray, ElementType: &element}
}

// CustomDataType returns Custom{type_name}, the fallback for engine-specific types.
func CustomDataType(typeName string) UnifiedDataType {
	return UnifiedDataType{Kind: KindCustom, TypeName: typeName}
}

// IntPtr is a convenience for optional lengths and precisions.
func IntPtr(v int) *int {
	return &v
}

// IsTemporal reports whether values of this type carry a date or time component
// usable for ordering.
func (t UnifiedDataType) IsTemporal() bool {
	switch t.Kind {
	case KindDateTime, KindDate:
		return true
	}
	return false
}

// IsCustom reports whether the type fell back to the Custom variant.
func (t UnifiedDataType) IsCustom() bool {
	return t.Kind == KindCustom
}

// String renders the type for humans, e.g. "integer(32, signed)" or "array<string>".
func (t UnifiedDataType) String() string {
	switch t.Kind {
	case KindString, KindBinary:
		if t.MaxLength != nil {
			return fmt.Sprintf("%s(%d)", t.Kind, *t.MaxLength)
		}
		return string(t.Kind)
	case KindInteger:
		sign := "signed"
		if !t.Signed {
			sign = "unsigned"
		}
		return fmt.Sprintf("integer(%d, %s)", t.Bits, sign)
	case KindFloat:
		if t.Precision != nil {
			return fmt.Sprintf("float(%d)", *t.Precision)
		}
		return "float"
	case KindDateTime, KindTime:
		if t.WithTimezone {
			return string(t.Kind) + " with time zone"
		}
		return string(t.Kind)
	case KindArray:
		if t.ElementType == nil {
			return "array<unknown>"
		}
		return "array<" + t.ElementType.String() + ">"
	case KindCustom:
		return "custom(" + t.TypeName + ")"
	case "":
		return "custom(unknown)"
	default:
		return string(t.Kind)
	}
}

// dataTypeJSON is the tagged wire form: {"kind":"integer","bits":32,"signed":true}.
type dataTypeJSON struct {
	Kind         DataTypeKind  `json:"kind"`
	MaxLength    *int          `json:"max_length,omitempty"`
	Bits         *int          `json:"bits,omitempty"`
	Signed       *bool         `json:"signed,omitempty"`
	Precision    *int          `json:"precision,omitempty"`
	WithTimezone *bool         `json:"with_timezone,omitempty"`
	ElementType  *dataTypeJSON `json:"element_type,omitempty"`
	TypeName     string        `json:"type_name,omitempty"`
}

func (t UnifiedDataType) toWire() *dataTypeJSON {
	w := &dataTypeJSON{Kind: t.Kind}
	switch t.Kind {
	case KindString, KindBinary:
		w.MaxLength = t.MaxLength
	case KindInteger:
		bits, signed := t.Bits, t.Signed
		w.Bits, w.Signed = &bits, &signed
	case KindFloat:
		w.Precision = t.Precision
	case KindDateTime, KindTime:
		tz := t.WithTimezone
		w.WithTimezone = &tz
	case KindArray:
		if t.ElementType != nil {
			w.ElementType = t.ElementType.toWire()
		}
	case KindCustom:
		w.TypeName = t.TypeName
	}
	return w
}

func (w *dataTypeJSON) fromWire() UnifiedDataType {
	t := UnifiedDataType{Kind: w.Kind, MaxLength: w.MaxLength, Precision: w.Precision, TypeName: w.TypeName}
	if w.Bits != nil {
		t.Bits = *w.Bits
	}
	if w.Signed != nil {
		t.Signed = *w.Signed
	}
	if w.WithTimezone != nil {
		t.WithTimezone = *w.WithTimezone
	}
	if w.ElementType != nil {
		elem := w.ElementType.fromWire()
		t.ElementType = &elem
	}
	return t
}

// MarshalJSON encodes the variant with only the fields that belong to it.
func (t UnifiedDataType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.toWire())
}

// UnmarshalJSON decodes the tagged form. Unknown kinds become Custom.
func (t *UnifiedDataType) UnmarshalJSON(data []byte) error {
	var w dataTypeJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode data type: %w", err)
	}
	switch w.Kind {
	case KindString, KindInteger, KindFloat, KindBoolean, KindDateTime, KindDate,
		KindTime, KindBinary, KindJSON, KindUUID, KindArray, KindCustom:
		*t = w.fromWire()
	default:
		*t = CustomDataType(strings.TrimSpace(string(w.Kind)))
	}
	return nil
}
