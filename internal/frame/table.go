// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package frame turns search hits into analysis-ready tables: one row per document,
// coded columns flattened into scalar columns, date columns parsed.
package frame

import (
	"encoding/json"
	"fmt"
	"time"

	"fhirq/cli/internal/codeable"
)

// Row maps column name to cell value. Missing columns are null.
type Row map[string]codeable.Value

// Table is an ordered set of columns over rows.
//
// Origin, when set, holds for every row the index of the input row it was derived
// from by a row-expanding transform. A nil Origin means row i came from row i.
type Table struct {
	Columns []string
	Rows    []Row
	Origin  []int
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Column returns the cells of one column.
func (t Table) Column(name string) []codeable.Value {
	out := make([]codeable.Value, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[name]
	}
	return out
}

// HasColumn reports whether name is one of the table's columns.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func (t Table) origin(i int) int {
	if t.Origin == nil {
		return i
	}
	return t.Origin[i]
}

// Select returns a table holding only the named columns, in the given order.
func (t Table) Select(columns ...string) Table {
	out := Table{Columns: append([]string(nil), columns...), Rows: make([]Row, len(t.Rows))}
	for i, r := range t.Rows {
		row := make(Row, len(columns))
		for _, c := range columns {
			if v, ok := r[c]; ok {
				row[c] = v
			}
		}
		out.Rows[i] = row
	}
	return out
}

// FromHits builds a table with one row per hit. The document is taken from the
// hit's _source when present. Columns appear in first-seen order.
func FromHits(hits []json.RawMessage) (Table, error) {
	var (
		t    Table
		seen = map[string]struct{}{}
	)
	t.Rows = make([]Row, 0, len(hits))
	for i, h := range hits {
		doc, err := codeable.Decode(h)
		if err != nil {
			return Table{}, fmt.Errorf("decode hit %d: %w", i, err)
		}
		if src, ok := doc.Get("_source"); ok && src.Kind() == codeable.Mapping {
			doc = src
		}
		if doc.Kind() != codeable.Mapping {
			return Table{}, fmt.Errorf("hit %d is a %s, want an object", i, doc.Kind())
		}
		row := make(Row, doc.Len())
		for _, k := range doc.Keys() {
			v, _ := doc.Get(k)
			row[k] = v
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				t.Columns = append(t.Columns, k)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ExpandColumn flattens every value independently. Each input value contributes
// one row per flattened record, so the result may have more or fewer rows than the
// input; Origin maps every output row back to its input position.
func ExpandColumn(column []codeable.Value) Table {
	return expandPrefixed(column, "")
}

func expandPrefixed(column []codeable.Value, prefix string) Table {
	var (
		t    Table
		seen = map[string]struct{}{}
	)
	t.Origin = []int{}
	for i, v := range column {
		for _, rec := range codeable.Flatten(v, prefix) {
			row := make(Row, rec.Len())
			for _, k := range rec.Keys() {
				val, _ := rec.Get(k)
				row[k] = cell(val)
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					t.Columns = append(t.Columns, k)
				}
			}
			t.Rows = append(t.Rows, row)
			t.Origin = append(t.Origin, i)
		}
	}
	return t
}

func cell(v any) codeable.Value {
	if cv, ok := v.(codeable.Value); ok {
		return cv
	}
	return codeable.ScalarValue(v)
}

// Text renders a cell for display or CSV: scalars as text, nested values as JSON,
// null as "".
func Text(v codeable.Value) string {
	switch v.Kind() {
	case codeable.Null:
		return ""
	case codeable.Scalar:
		switch s := v.Scalar().(type) {
		case string:
			return s
		case time.Time:
			return s.Format(time.RFC3339Nano)
		case json.Number:
			return s.String()
		default:
			return fmt.Sprint(s)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v.Interface())
	}
	return string(b)
}
