// Package docval implements the dynamic, untyped document value model used
// at the ingestion boundary, before a field's declared schema type narrows
// it to a concrete Go type.
package docval

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind tags the dynamic shape of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a tagged sum type standing in for the untyped JSON values that
// arrive in an ingestion batch. Only one of the typed fields is meaningful,
// selected by Kind.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Array []Value
}

// Null is the zero Value representing JSON null / an absent field.
var Null = Value{Kind: KindNull}

func FromBool(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func FromInt(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func FromFloat(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func FromString(s string) Value { return Value{Kind: KindString, Str: s} }
func FromArray(vs []Value) Value { return Value{Kind: KindArray, Array: vs} }

// IsNull reports whether v represents JSON null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// UnmarshalJSON decodes a raw JSON scalar or array into a Value. Objects
// are rejected: the document model only supports scalar and array fields.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	val, err := fromInterface(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// MarshalJSON encodes a Value back into the equivalent JSON scalar or array.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindString:
		return json.Marshal(v.Str)
	case KindArray:
		return json.Marshal(v.Array)
	default:
		return []byte("null"), nil
	}
}

func fromInterface(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null, nil
	case bool:
		return FromBool(t), nil
	case float64:
		if t == float64(int64(t)) {
			return FromInt(int64(t)), nil
		}
		return FromFloat(t), nil
	case string:
		return FromString(t), nil
	case []interface{}:
		out := make([]Value, 0, len(t))
		for _, el := range t {
			v, err := fromInterface(el)
			if err != nil {
				return Null, err
			}
			out = append(out, v)
		}
		return FromArray(out), nil
	default:
		return Null, fmt.Errorf("docval: unsupported JSON value of type %T", raw)
	}
}

// Interface converts v back into a plain Go value (nil, bool, int64,
// float64, string, or []interface{}), for JSON re-encoding at the
// projection boundary.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindArray:
		out := make([]interface{}, len(v.Array))
		for i, el := range v.Array {
			out[i] = el.Interface()
		}
		return out
	default:
		return nil
	}
}

// AsFloat32Vector converts an array Value of numeric elements into a
// float32 slice, the representation used by the vector subsystem. Mixed
// int/float elements are accepted and each converted independently; any
// non-numeric element is an error.
func (v Value) AsFloat32Vector() ([]float32, error) {
	if v.Kind != KindArray {
		return nil, fmt.Errorf("docval: expected array for vector field, got %s", v.Kind)
	}
	out := make([]float32, len(v.Array))
	for i, el := range v.Array {
		switch el.Kind {
		case KindInt:
			out[i] = float32(el.Int)
		case KindFloat:
			out[i] = float32(el.Float)
		default:
			return nil, fmt.Errorf("docval: vector element %d is %s, not numeric", i, el.Kind)
		}
	}
	return out, nil
}

// AsStringArray converts an array Value of string elements into []string.
func (v Value) AsStringArray() ([]string, error) {
	if v.Kind != KindArray {
		return nil, fmt.Errorf("docval: expected array, got %s", v.Kind)
	}
	out := make([]string, len(v.Array))
	for i, el := range v.Array {
		if el.Kind != KindString {
			return nil, fmt.Errorf("docval: array element %d is %s, not string", i, el.Kind)
		}
		out[i] = el.Str
	}
	return out, nil
}

// Document is an ingestion-time document: a field name to dynamic Value
// map. It keeps no key order; SortedFieldNames gives a deterministic one.
type Document map[string]Value

// SortedFieldNames returns the document's field names in sorted order, for
// deterministic iteration (e.g. when building _raw).
func (d Document) SortedFieldNames() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
