// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsl models the FHIR search service's Elasticsearch-style query DSL and
// rewrites queries so they only match documents belonging to a set of patients.
//
// A Query round-trips through JSON without losing keys it does not model: anything
// besides type, columns, from, where and limit is kept in Extra.
package dsl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// From names a table in the from list. Keys other than table are kept in Extra.
type From struct {
	Table string
	Extra map[string]json.RawMessage
}

// Limit is one entry of the limit pair: {"type": "number", "value": n}. Keys other
// than type and value are kept in Extra.
type Limit struct {
	Type  string
	Value json.RawMessage
	Extra map[string]json.RawMessage
}

// NumberLimit builds a numeric limit entry.
func NumberLimit(n int) Limit {
	return Limit{Type: "number", Value: json.RawMessage(strconv.Itoa(n))}
}

// Int returns the value when it is a JSON integer. 10.0 and "10" are not integers.
func (l Limit) Int() (int, bool) {
	n, err := strconv.Atoi(string(bytes.TrimSpace(l.Value)))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (l Limit) clone() Limit {
	return Limit{Type: l.Type, Value: bytes.Clone(l.Value), Extra: cloneRawMap(l.Extra)}
}

// Where is the filter part of a query. Keys other than type and query are kept in
// Extra.
type Where struct {
	Type  string
	Query Clause
	Extra map[string]json.RawMessage
}

// Query is a DSL query document.
type Query struct {
	Type    string
	Columns json.RawMessage
	From    []From
	Where   *Where
	Limit   []Limit
	Extra   map[string]json.RawMessage
}

// Select returns `select * from <table>`.
func Select(table string) Query {
	return Query{
		Type:    "select",
		Columns: json.RawMessage(`"*"`),
		From:    []From{{Table: table}},
	}
}

// Clone returns a deep copy of q.
func (q Query) Clone() Query {
	out := Query{
		Type:    q.Type,
		Columns: bytes.Clone(q.Columns),
		Extra:   cloneRawMap(q.Extra),
	}
	if q.From != nil {
		out.From = make([]From, len(q.From))
		for i, f := range q.From {
			out.From[i] = From{Table: f.Table, Extra: cloneRawMap(f.Extra)}
		}
	}
	if q.Limit != nil {
		out.Limit = make([]Limit, len(q.Limit))
		for i, l := range q.Limit {
			out.Limit[i] = l.clone()
		}
	}
	if q.Where != nil {
		w := Where{Type: q.Where.Type, Extra: cloneRawMap(q.Where.Extra)}
		if q.Where.Query != nil {
			w.Query = q.Where.Query.clone()
		}
		out.Where = &w
	}
	return out
}

// Table returns the first table in the from list, or "".
func (q Query) Table() string {
	if len(q.From) == 0 {
		return ""
	}
	return q.From[0].Table
}

// object writes a JSON object key by key, in call order.
type object struct {
	buf   bytes.Buffer
	n     int
	known map[string]struct{}
}

func (o *object) field(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if o.n == 0 {
		o.buf.WriteByte('{')
	} else {
		o.buf.WriteByte(',')
	}
	kb, _ := json.Marshal(key)
	o.buf.Write(kb)
	o.buf.WriteByte(':')
	o.buf.Write(b)
	if o.known == nil {
		o.known = make(map[string]struct{})
	}
	o.known[key] = struct{}{}
	o.n++
	return nil
}

// extra writes the keys of m sorted, skipping any already written.
func (o *object) extra(m map[string]json.RawMessage) error {
	for _, k := range sortedKeys(m) {
		if _, dup := o.known[k]; dup {
			continue
		}
		if err := o.field(k, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func (o *object) bytes() []byte {
	if o.n == 0 {
		return []byte("{}")
	}
	o.buf.WriteByte('}')
	return o.buf.Bytes()
}

// splitObject decodes an object and hands every member to take. Members take does
// not claim come back as extras.
func splitObject(data []byte, what string, take func(key string, value json.RawMessage) (bool, error)) (map[string]json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse %s: %w", what, err)
	}
	var extra map[string]json.RawMessage
	for key, value := range top {
		ok, err := take(key, value)
		if err != nil {
			return nil, fmt.Errorf("parse %s %s: %w", what, key, err)
		}
		if ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[key] = bytes.Clone(value)
	}
	return extra, nil
}

func (f From) MarshalJSON() ([]byte, error) {
	var o object
	if err := o.field("table", f.Table); err != nil {
		return nil, err
	}
	if err := o.extra(f.Extra); err != nil {
		return nil, err
	}
	return o.bytes(), nil
}

func (f *From) UnmarshalJSON(data []byte) error {
	*f = From{}
	extra, err := splitObject(data, "from", func(key string, value json.RawMessage) (bool, error) {
		if key != "table" {
			return false, nil
		}
		return true, json.Unmarshal(value, &f.Table)
	})
	f.Extra = extra
	return err
}

func (l Limit) MarshalJSON() ([]byte, error) {
	var o object
	if err := o.field("type", l.Type); err != nil {
		return nil, err
	}
	if err := o.field("value", l.Value); err != nil {
		return nil, err
	}
	if err := o.extra(l.Extra); err != nil {
		return nil, err
	}
	return o.bytes(), nil
}

func (l *Limit) UnmarshalJSON(data []byte) error {
	*l = Limit{}
	extra, err := splitObject(data, "limit", func(key string, value json.RawMessage) (bool, error) {
		switch key {
		case "type":
			return true, json.Unmarshal(value, &l.Type)
		case "value":
			l.Value = bytes.Clone(value)
			return true, nil
		}
		return false, nil
	})
	l.Extra = extra
	return err
}

func (w Where) MarshalJSON() ([]byte, error) {
	var o object
	if w.Type != "" {
		if err := o.field("type", w.Type); err != nil {
			return nil, err
		}
	}
	if w.Query != nil {
		if err := o.field("query", w.Query); err != nil {
			return nil, err
		}
	}
	if err := o.extra(w.Extra); err != nil {
		return nil, err
	}
	return o.bytes(), nil
}

func (w *Where) UnmarshalJSON(data []byte) error {
	*w = Where{}
	extra, err := splitObject(data, "where", func(key string, value json.RawMessage) (bool, error) {
		switch key {
		case "type":
			return true, json.Unmarshal(value, &w.Type)
		case "query":
			if len(value) == 0 || string(value) == "null" {
				return true, nil
			}
			c, err := ParseClause(value)
			if err != nil {
				return true, err
			}
			w.Query = c
			return true, nil
		}
		return false, nil
	})
	w.Extra = extra
	return err
}

// MarshalJSON writes known keys first in wire order, then Extra keys sorted. Empty
// fields are omitted.
func (q Query) MarshalJSON() ([]byte, error) {
	var o object
	if q.Type != "" {
		if err := o.field("type", q.Type); err != nil {
			return nil, err
		}
	}
	if len(q.Columns) > 0 {
		if err := o.field("columns", q.Columns); err != nil {
			return nil, err
		}
	}
	if q.From != nil {
		if err := o.field("from", q.From); err != nil {
			return nil, err
		}
	}
	if q.Where != nil {
		if err := o.field("where", q.Where); err != nil {
			return nil, err
		}
	}
	if q.Limit != nil {
		if err := o.field("limit", q.Limit); err != nil {
			return nil, err
		}
	}
	if err := o.extra(q.Extra); err != nil {
		return nil, err
	}
	return o.bytes(), nil
}

func (q *Query) UnmarshalJSON(data []byte) error {
	*q = Query{}
	extra, err := splitObject(data, "query", func(key string, value json.RawMessage) (bool, error) {
		switch key {
		case "type":
			return true, json.Unmarshal(value, &q.Type)
		case "columns":
			q.Columns = bytes.Clone(value)
			return true, nil
		case "from":
			return true, json.Unmarshal(value, &q.From)
		case "where":
			if string(value) == "null" {
				return true, nil
			}
			q.Where = &Where{}
			return true, json.Unmarshal(value, q.Where)
		case "limit":
			return true, json.Unmarshal(value, &q.Limit)
		}
		return false, nil
	})
	q.Extra = extra
	return err
}
