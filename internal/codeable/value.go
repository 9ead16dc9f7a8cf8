// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package codeable converts the nested, loosely shaped coded values found in FHIR
// documents (codings, extensions, tags, identifier type/value pairs) into flat
// key to scalar records suitable for tabular analysis.
//
// Input values are modelled as an explicit tagged variant (Value) decoded from JSON
// with object key order preserved, so the produced column names and their order are
// reproducible between runs.
package codeable

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
)

// Kind tags the shape held by a Value.
type Kind uint8

const (
	// Null is an absent value (JSON null or NaN).
	Null Kind = iota
	// Scalar is a string, number or boolean.
	Scalar
	// List is an ordered sequence of values.
	List
	// Mapping is an ordered string-keyed object.
	Mapping
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Scalar:
		return "scalar"
	case List:
		return "list"
	case Mapping:
		return "mapping"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is an immutable JSON-like value. The zero Value is Null.
type Value struct {
	kind   Kind
	scalar any
	items  []Value
	keys   []string
	fields map[string]Value
}

// Field is one key/value pair of a mapping.
type Field struct {
	Key   string
	Value Value
}

// NullValue returns the Null value.
func NullValue() Value { return Value{} }

// ScalarValue wraps a scalar. nil and NaN become Null.
func ScalarValue(x any) Value {
	switch v := x.(type) {
	case nil:
		return Value{}
	case float64:
		if math.IsNaN(v) {
			return Value{}
		}
	case float32:
		if math.IsNaN(float64(v)) {
			return Value{}
		}
	}
	return Value{kind: Scalar, scalar: x}
}

// ListValue builds a list from items.
func ListValue(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: List, items: out}
}

// MappingValue builds a mapping from fields in order. A repeated key keeps its first
// position and takes the last value.
func MappingValue(fields ...Field) Value {
	v := Value{kind: Mapping, fields: make(map[string]Value, len(fields))}
	for _, f := range fields {
		v.set(f.Key, f.Value)
	}
	return v
}

func (v *Value) set(key string, val Value) {
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = val
}

// Kind returns the shape tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == Null }

// Scalar returns the wrapped scalar, or nil for non-scalars.
func (v Value) Scalar() any { return v.scalar }

// Items returns the list elements. The slice must not be modified.
func (v Value) Items() []Value { return v.items }

// Keys returns mapping keys in insertion order. The slice must not be modified.
func (v Value) Keys() []string { return v.keys }

// Len returns the number of list items or mapping fields.
func (v Value) Len() int {
	switch v.kind {
	case List:
		return len(v.items)
	case Mapping:
		return len(v.keys)
	}
	return 0
}

// Get returns a mapping field.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Mapping {
		return Value{}, false
	}
	f, ok := v.fields[key]
	return f, ok
}

// Has reports whether a mapping contains key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Without returns a copy of the mapping minus keys. Non-mappings are returned as is.
func (v Value) Without(keys ...string) Value {
	if v.kind != Mapping {
		return v
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	out := Value{kind: Mapping, fields: make(map[string]Value, len(v.keys))}
	for _, k := range v.keys {
		if _, skip := drop[k]; skip {
			continue
		}
		out.set(k, v.fields[k])
	}
	return out
}

// Merge returns the union of two mappings. Keys of other override v's values but keep
// v's position; new keys are appended in other's order.
func (v Value) Merge(other Value) Value {
	out := Value{kind: Mapping, fields: make(map[string]Value, v.Len()+other.Len())}
	for _, k := range v.keys {
		out.set(k, v.fields[k])
	}
	for _, k := range other.keys {
		out.set(k, other.fields[k])
	}
	return out
}

// Interface converts v into plain Go values (map[string]any, []any, scalars).
func (v Value) Interface() any {
	switch v.kind {
	case Scalar:
		return v.scalar
	case List:
		out := make([]any, len(v.items))
		for i, it := range v.items {
			out[i] = it.Interface()
		}
		return out
	case Mapping:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.fields[k].Interface()
		}
		return out
	}
	return nil
}

// FromAny converts plain Go values into a Value. Map keys are sorted since Go maps
// carry no order; use Decode to keep document order.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Value{}
	case Value:
		return t
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = FromAny(it)
		}
		return Value{kind: List, items: items}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := Value{kind: Mapping, fields: make(map[string]Value, len(t))}
		for _, k := range keys {
			out.set(k, FromAny(t[k]))
		}
		return out
	}
	return ScalarValue(x)
}

// Decode parses JSON into a Value preserving object key order. Numbers are kept as
// json.Number.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("codeable: trailing data after JSON value")
	}
	return v, nil
}

// MustDecode is Decode that panics on error. Intended for fixtures.
func MustDecode(s string) Value {
	v, err := Decode([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			list := Value{kind: List}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				list.items = append(list.items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return list, nil
		case '{':
			obj := Value{kind: Mapping, fields: map[string]Value{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("codeable: unexpected object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				obj.set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return obj, nil
		}
		return Value{}, fmt.Errorf("codeable: unexpected delimiter %v", t)
	case nil:
		return Value{}, nil
	default:
		return ScalarValue(t), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	out, err := Decode(data)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// MarshalJSON implements json.Marshaler, writing mapping keys in order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Scalar:
		b, err := json.Marshal(v.scalar)
		if err != nil {
			return err
		}
		buf.Write(b)
	case List:
		buf.WriteByte('[')
		for i, it := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Mapping:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.fields[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}
