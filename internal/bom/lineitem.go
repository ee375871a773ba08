package bom

import (
	"encoding/json"
	"strconv"
)

// NoneText is written when a quantity is undefined for a boundary.
const NoneText = "None"

// Value is a line item quantity: a number, or text when the quantity has no
// numeric meaning for the boundary.
type Value struct {
	num    float64
	text   string
	isText bool
}

// Int returns a whole-number value.
func Int(n int64) Value { return Value{num: float64(n)} }

// Float returns a fractional value.
func Float(f float64) Value { return Value{num: f} }

// Text returns a text value.
func Text(s string) Value { return Value{text: s, isText: true} }

// None is the fallback for undefined quantities.
var None = Text(NoneText)

// IsText reports whether v is a text fallback.
func (v Value) IsText() bool { return v.isText }

// Int64 returns v as a whole number; ok is false for text and fractions.
func (v Value) Int64() (int64, bool) {
	if v.isText || v.num != float64(int64(v.num)) {
		return 0, false
	}
	return int64(v.num), true
}

// Number returns the numeric value; ok is false for text.
func (v Value) Number() (float64, bool) {
	if v.isText {
		return 0, false
	}
	return v.num, true
}

// Any returns int64, float64 or string, whichever fits v.
func (v Value) Any() any {
	if v.isText {
		return v.text
	}
	if n, ok := v.Int64(); ok {
		return n
	}
	return v.num
}

func (v Value) String() string {
	switch t := v.Any().(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
}

// MarshalJSON encodes numbers as JSON numbers and text as strings.
func (v Value) MarshalJSON() ([]byte, error) { return json.Marshal(v.Any()) }

// MarshalYAML encodes v the same way as MarshalJSON.
func (v Value) MarshalYAML() (any, error) { return v.Any(), nil }

// LineItem is one computed quantity and the template cell it fills.
type LineItem struct {
	Name  string `json:"name" yaml:"name"`
	Sheet string `json:"sheet" yaml:"sheet"`
	Cell  string `json:"cell" yaml:"cell"`
	Value Value  `json:"value" yaml:"value"`
}
