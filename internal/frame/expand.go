// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package frame

import "strconv"

// ColumnExpander replaces Column with the columns Fn derives from it. Fn receives a
// single-column table and may return any number of rows per input row, as long as
// Origin says which input row each came from.
type ColumnExpander struct {
	Column string
	Fn     func(Table) Table
}

// ExpandOptions lists the columns Expand rewrites.
type ExpandOptions struct {
	// CodeColumns are flattened with the column name as key prefix.
	CodeColumns []string
	// DateColumns are parsed into UTC times with the zone kept in "<col>.tz".
	DateColumns []string
	// CustomColumns run before code columns and win when both name a column.
	CustomColumns []ColumnExpander
}

// CodeableLikeColumnExpander flattens column like a code column. Useful for
// reference and period fields that are not codings but share their shape.
func CodeableLikeColumnExpander(column string) ColumnExpander {
	return ColumnExpander{
		Column: column,
		Fn: func(t Table) Table {
			return expandPrefixed(t.Column(column), column)
		},
	}
}

// Expand applies custom and code column expanders, then parses date columns.
// Expanded source columns are dropped. When expanders produce several rows for one
// input row, row k of the output carries record k of every expander and the
// remaining columns are repeated; an input row whose expansions are all empty is
// kept once with the expanded columns null. An expanded column whose name is already
// taken is renamed with a numeric suffix (code_text_1).
func Expand(t Table, opts ExpandOptions) Table {
	var expanders []ColumnExpander
	taken := map[string]struct{}{}
	for _, e := range opts.CustomColumns {
		if _, dup := taken[e.Column]; dup || !t.HasColumn(e.Column) || e.Fn == nil {
			continue
		}
		taken[e.Column] = struct{}{}
		expanders = append(expanders, e)
	}
	for _, c := range opts.CodeColumns {
		if _, dup := taken[c]; dup || !t.HasColumn(c) {
			continue
		}
		taken[c] = struct{}{}
		expanders = append(expanders, CodeableLikeColumnExpander(c))
	}

	out := t
	if len(expanders) > 0 {
		out = join(t, taken, expanders)
	}
	for _, c := range opts.DateColumns {
		out = ParseDateColumn(out, c)
	}
	return out
}

func join(t Table, drop map[string]struct{}, expanders []ColumnExpander) Table {
	var out Table
	seen := map[string]struct{}{}
	addColumn := func(c string) {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out.Columns = append(out.Columns, c)
		}
	}
	var base []string
	for _, c := range t.Columns {
		if _, ok := drop[c]; !ok {
			base = append(base, c)
			addColumn(c)
		}
	}

	// groups[e][i] holds the rows expander e produced for input row i, with
	// columns already renamed away from any earlier column.
	groups := make([][][]Row, len(expanders))
	for ei, e := range expanders {
		res := e.Fn(t.Select(e.Column))
		rename := make(map[string]string, len(res.Columns))
		for _, c := range res.Columns {
			name := freeName(seen, c)
			rename[c] = name
			addColumn(name)
		}
		groups[ei] = make([][]Row, len(t.Rows))
		for ri, r := range res.Rows {
			o := res.origin(ri)
			if o < 0 || o >= len(t.Rows) {
				continue
			}
			renamed := make(Row, len(r))
			for c, v := range r {
				name, ok := rename[c]
				if !ok {
					name = freeName(seen, c)
					rename[c] = name
					addColumn(name)
				}
				renamed[name] = v
			}
			groups[ei][o] = append(groups[ei][o], renamed)
		}
	}

	for i, src := range t.Rows {
		n := 1
		for ei := range expanders {
			n = max(n, len(groups[ei][i]))
		}
		for k := 0; k < n; k++ {
			row := make(Row, len(out.Columns))
			for _, c := range base {
				if v, ok := src[c]; ok {
					row[c] = v
				}
			}
			for ei := range expanders {
				if k >= len(groups[ei][i]) {
					continue
				}
				for c, v := range groups[ei][i][k] {
					row[c] = v
				}
			}
			out.Rows = append(out.Rows, row)
			out.Origin = append(out.Origin, t.origin(i))
		}
	}
	return out
}

// freeName returns c, or c with the smallest numeric suffix (c_1, c_2, ...) that is
// not yet in seen.
func freeName(seen map[string]struct{}, c string) string {
	if _, taken := seen[c]; !taken {
		return c
	}
	for n := 1; ; n++ {
		name := c + "_" + strconv.Itoa(n)
		if _, taken := seen[name]; !taken {
			return name
		}
	}
}
