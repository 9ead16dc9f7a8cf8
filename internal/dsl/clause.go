// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Clause is one node of the boolean filter tree held in where.query.
// Implementations are Term, Terms, Bool and Raw.
type Clause interface {
	json.Marshaler
	clone() Clause
}

// Term is an exact match: {"term": {Field: Value}}.
type Term struct {
	Field string
	Value any
}

// Terms is a set membership match: {"terms": {Field: [Values...]}}.
type Terms struct {
	Field  string
	Values []any
}

// Bool is {"bool": {"should": [...], "minimum_should_match": n, ...}}. Keys other than
// should and an integer minimum_should_match are kept verbatim in Extra.
type Bool struct {
	Should             []Clause
	MinimumShouldMatch *int
	Extra              map[string]json.RawMessage
}

// Raw is any clause kind not modelled above, kept byte for byte.
type Raw json.RawMessage

func (c Term) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]map[string]any{"term": {c.Field: c.Value}})
}

func (c Terms) MarshalJSON() ([]byte, error) {
	values := c.Values
	if values == nil {
		values = []any{}
	}
	return json.Marshal(map[string]map[string][]any{"terms": {c.Field: values}})
}

func (c Bool) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"bool":{`)
	n := 0
	field := func(key string, raw []byte) {
		if n > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(key)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(raw)
		n++
	}

	if c.Should != nil {
		should, err := json.Marshal(c.Should)
		if err != nil {
			return nil, err
		}
		field("should", should)
	}
	if c.MinimumShouldMatch != nil {
		field("minimum_should_match", []byte(fmt.Sprint(*c.MinimumShouldMatch)))
	}
	for _, k := range sortedKeys(c.Extra) {
		field(k, c.Extra[k])
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

func (c Raw) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("null"), nil
	}
	return []byte(c), nil
}

func (c Term) clone() Clause {
	return Term{Field: c.Field, Value: cloneAny(c.Value)}
}

func (c Terms) clone() Clause {
	values := make([]any, len(c.Values))
	for i, v := range c.Values {
		values[i] = cloneAny(v)
	}
	return Terms{Field: c.Field, Values: values}
}

func (c Bool) clone() Clause {
	out := Bool{Extra: cloneRawMap(c.Extra)}
	if c.Should != nil {
		out.Should = make([]Clause, len(c.Should))
		for i, s := range c.Should {
			out.Should[i] = s.clone()
		}
	}
	if c.MinimumShouldMatch != nil {
		m := *c.MinimumShouldMatch
		out.MinimumShouldMatch = &m
	}
	return out
}

func (c Raw) clone() Clause {
	return Raw(bytes.Clone(c))
}

// ParseClause classifies a JSON clause by its single top-level key. Anything that is
// not a well-formed term, terms or bool clause is returned as Raw.
func ParseClause(data []byte) (Clause, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse clause: %w", err)
	}
	raw := Raw(bytes.Clone(data))
	if len(top) != 1 {
		return raw, nil
	}

	switch {
	case top["term"] != nil:
		var inner map[string]any
		if err := unmarshalNumber(top["term"], &inner); err != nil || len(inner) != 1 {
			return raw, nil
		}
		for field, value := range inner {
			return Term{Field: field, Value: value}, nil
		}
	case top["terms"] != nil:
		var inner map[string]any
		if err := unmarshalNumber(top["terms"], &inner); err != nil || len(inner) != 1 {
			return raw, nil
		}
		for field, value := range inner {
			values, ok := value.([]any)
			if !ok {
				return raw, nil
			}
			return Terms{Field: field, Values: values}, nil
		}
	case top["bool"] != nil:
		return parseBool(top["bool"], raw)
	}
	return raw, nil
}

func parseBool(data json.RawMessage, raw Raw) (Clause, error) {
	var inner map[string]json.RawMessage
	if err := json.Unmarshal(data, &inner); err != nil {
		return raw, nil
	}
	var b Bool
	for key, value := range inner {
		switch key {
		case "should":
			var items []json.RawMessage
			if err := json.Unmarshal(value, &items); err != nil {
				return raw, nil
			}
			b.Should = make([]Clause, 0, len(items))
			for _, item := range items {
				c, err := ParseClause(item)
				if err != nil {
					return nil, err
				}
				b.Should = append(b.Should, c)
			}
		case "minimum_should_match":
			var m int
			if err := json.Unmarshal(value, &m); err == nil {
				b.MinimumShouldMatch = &m
				continue
			}
			fallthrough
		default:
			if b.Extra == nil {
				b.Extra = make(map[string]json.RawMessage)
			}
			b.Extra[key] = bytes.Clone(value)
		}
	}
	return b, nil
}

func unmarshalNumber(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, it := range t {
			out[i] = cloneAny(it)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, it := range t {
			out[k] = cloneAny(it)
		}
		return out
	}
	return v
}

func cloneRawMap(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = bytes.Clone(v)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
