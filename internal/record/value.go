package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid (zero) value.
	KindInvalid Kind = iota
	// KindString represents a string value.
	KindString
	// KindNumber represents a numeric value.
	KindNumber
	// KindBool represents a boolean value.
	KindBool
)

// Value is a small typed scalar used for record metadata and filters.
// Keeping the representation explicit avoids the ambiguous type coercion
// that an interface{}-based map invites during predicate matching.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
}

// String creates a string Value.
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Number creates a numeric Value.
func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// Bool creates a boolean Value.
func Boolean(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// Equal reports whether two values have the same kind and payload.
// Values of different kinds are never equal, even when a coercion
// (e.g. "1" vs 1) might look plausible.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindNumber:
		return v.Num == other.Num
	case KindBool:
		return v.Bool == other.Bool
	default:
		return false
	}
}

// MarshalJSON emits the plain scalar, so metadata serializes to an
// ordinary JSON object.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return nil, &ValidationError{Reason: "cannot serialize invalid metadata value"}
	}
}

// UnmarshalJSON sniffs the scalar type from the raw token.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &ValidationError{Reason: "empty metadata value"}
	}

	switch {
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*v = Boolean(data[0] == 't')
		return nil
	case data[0] == '{' || data[0] == '[' || bytes.Equal(data, []byte("null")):
		return &ValidationError{Reason: fmt.Sprintf("unsupported metadata value %s: only string, number and boolean are allowed", data)}
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return &ValidationError{Reason: fmt.Sprintf("unsupported metadata value %s", data)}
		}
		*v = Number(n)
		return nil
	}
}

// Metadata is the structured key/value map attached to a record.
// Insertion order is irrelevant and the map may be empty.
type Metadata map[string]Value

// Equal reports key/value equality with another metadata map.
func (m Metadata) Equal(other Metadata) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Filter is a conjunctive equality constraint over metadata keys.
type Filter map[string]Value

// Matches reports whether the metadata satisfies the filter. A nil or
// empty filter matches everything. A key missing from the metadata, or
// present with a different kind or payload, fails the whole filter.
func (f Filter) Matches(m Metadata) bool {
	for k, want := range f {
		got, ok := m[k]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}
