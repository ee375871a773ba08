// Package feature holds the attribute-level view of network features that the
// BOM pipeline aggregates. Geometry never reaches this package; the spatial
// provider flattens it into derived scalars such as length_geo.
package feature

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// LengthField is the attribute injected by the spatial provider holding the
// geodesic length of a feature in US survey feet.
const LengthField = "length_geo"

// Kind discriminates the dynamic type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

// Value is a single attribute value: string, number, bool or null.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
}

// Null is the zero Value.
var Null = Value{}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number returns a numeric Value. NaN and infinities are stored as null.
func Number(n float64) Value {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return Null
	}
	return Value{kind: KindNumber, n: n}
}

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Of converts a Go value decoded from JSON, a database row or a shapefile
// attribute into a Value. Unsupported types become null.
func Of(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case Value:
		return t
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case bool:
		return Bool(t)
	default:
		return Null
	}
}

// Kind reports the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str renders v as text. Null renders as the empty string and whole numbers
// render without a decimal point, so 288 and "288" compare equal as text.
func (v Value) Str() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Float returns the numeric reading of v. Numeric strings are parsed; blank or
// non-numeric strings, bools and null report ok=false.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.n, true
	case KindString:
		s := strings.TrimSpace(v.s)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// MarshalJSON encodes v as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		return json.Marshal(v.n)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any JSON scalar into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = Of(raw)
	return nil
}

// Feature is one attributed record of a network layer.
type Feature struct {
	ID    int64            `json:"id"`
	Attrs map[string]Value `json:"attrs"`
}

// New builds a Feature from loosely typed attributes.
func New(id int64, attrs map[string]any) Feature {
	f := Feature{ID: id, Attrs: make(map[string]Value, len(attrs))}
	for k, v := range attrs {
		f.Attrs[strings.ToLower(k)] = Of(v)
	}
	return f
}

// Get returns the attribute named field (case-insensitive); missing fields
// read as null.
func (f Feature) Get(field string) Value {
	if f.Attrs == nil {
		return Null
	}
	if v, ok := f.Attrs[field]; ok {
		return v
	}
	return f.Attrs[strings.ToLower(field)]
}

// Set assigns an attribute, allocating the map if needed.
func (f *Feature) Set(field string, v Value) {
	if f.Attrs == nil {
		f.Attrs = make(map[string]Value)
	}
	f.Attrs[strings.ToLower(field)] = v
}

// Length returns the geodesic length attribute, treating null or malformed
// values as zero.
func (f Feature) Length() float64 {
	n, _ := f.Get(LengthField).Float()
	return n
}
