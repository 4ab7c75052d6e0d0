// Package paramvalue implements the tagged-variant value type used for
// component parameter maps and ComponentContext variable bags.
package paramvalue

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the concrete type carried by a Value.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindJSON   Kind = "json"
	KindList   Kind = "list"
)

// Value is a heterogeneous parameter value that remembers its own kind so
// callers can coerce it against a declared schema type at dispatch time
// instead of guessing from the Go type alone.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	json interface{}
	list []Value
}

// String wraps a plain string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool wraps a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// JSON wraps an arbitrary decoded JSON value (object, array, scalar, or nil).
func JSON(v interface{}) Value { return Value{kind: KindJSON, json: v} }

// List wraps an ordered sequence of values.
func List(vs []Value) Value { return Value{kind: KindList, list: vs} }

// Kind reports the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v is the zero Value (no kind set).
func (v Value) IsZero() bool { return v.kind == "" }

// AsString coerces the value to a string regardless of its underlying kind.
func (v Value) AsString() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindJSON:
		b, err := json.Marshal(v.json)
		if err != nil {
			return ""
		}
		return string(b)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.AsString()
		}
		b, _ := json.Marshal(parts)
		return string(b)
	default:
		return ""
	}
}

// AsNumber coerces the value to a float64, parsing strings when necessary.
func (v Value) AsNumber() (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindString:
		n, err := strconv.ParseFloat(v.str, 64)
		if err != nil {
			return 0, fmt.Errorf("paramvalue: cannot parse %q as number: %w", v.str, err)
		}
		return n, nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("paramvalue: cannot coerce %s to number", v.kind)
	}
}

// AsBool coerces the value to a bool, parsing strings with strconv.ParseBool
// ("1", "t", "T", "true", "TRUE", "True" and the matching false forms) when
// necessary.
func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindString:
		b, err := strconv.ParseBool(v.str)
		if err != nil {
			return false, fmt.Errorf("paramvalue: cannot parse %q as bool: %w", v.str, err)
		}
		return b, nil
	case KindNumber:
		return v.num != 0, nil
	default:
		return false, fmt.Errorf("paramvalue: cannot coerce %s to bool", v.kind)
	}
}

// AsJSON returns the underlying decoded JSON value (for KindJSON), or a
// best-effort projection of any other kind into a plain Go value.
func (v Value) AsJSON() interface{} {
	switch v.kind {
	case KindJSON:
		return v.json
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, item := range v.list {
			out[i] = item.AsJSON()
		}
		return out
	default:
		return nil
	}
}

// AsList returns the underlying list, or a single-element list wrapping any
// other kind.
func (v Value) AsList() []Value {
	if v.kind == KindList {
		return v.list
	}
	if v.IsZero() {
		return nil
	}
	return []Value{v}
}

// Coerce converts v into a new Value tagged with the requested kind,
// following the declared parameter schema type at dispatch time.
func Coerce(v Value, target Kind) (Value, error) {
	switch target {
	case KindString:
		return String(v.AsString()), nil
	case KindNumber:
		n, err := v.AsNumber()
		if err != nil {
			return Value{}, err
		}
		return Number(n), nil
	case KindBool:
		b, err := v.AsBool()
		if err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case KindJSON:
		return JSON(v.AsJSON()), nil
	case KindList:
		return List(v.AsList()), nil
	default:
		return Value{}, fmt.Errorf("paramvalue: unknown target kind %q", target)
	}
}

// FromRaw wraps a plain Go value (as produced by encoding/json or a
// map[string]string parameter map) into a Value, inferring its kind.
func FromRaw(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Value{}
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case []interface{}:
		vs := make([]Value, len(t))
		for i, item := range t {
			vs[i] = FromRaw(item)
		}
		return List(vs)
	default:
		return JSON(t)
	}
}

// MarshalJSON implements json.Marshaler, round-tripping through AsJSON so
// parameter maps serialize the way a plain map[string]interface{} would.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.AsJSON())
}

// UnmarshalJSON implements json.Unmarshaler, inferring the kind from the
// decoded Go type.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromRaw(raw)
	return nil
}

// Map is a parameter map keyed by declared parameter name.
type Map map[string]Value

// StringOr returns the named parameter as a string, or def if absent.
func (m Map) StringOr(name, def string) string {
	v, ok := m[name]
	if !ok || v.IsZero() {
		return def
	}
	return v.AsString()
}

// NumberOr returns the named parameter as a float64, or def if absent or
// unparsable.
func (m Map) NumberOr(name string, def float64) float64 {
	v, ok := m[name]
	if !ok {
		return def
	}
	n, err := v.AsNumber()
	if err != nil {
		return def
	}
	return n
}

// BoolOr returns the named parameter as a bool, or def if absent or
// unparsable.
func (m Map) BoolOr(name string, def bool) bool {
	v, ok := m[name]
	if !ok {
		return def
	}
	b, err := v.AsBool()
	if err != nil {
		return def
	}
	return b
}
