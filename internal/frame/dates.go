// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package frame

import (
	"time"

	"fhirq/cli/internal/codeable"
)

// FHIR date and dateTime layouts, most specific first. Partial dates are allowed.
var dateLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02", false},
	{"2006-01", false},
	{"2006", false},
}

// ParseDate parses a FHIR date or dateTime. It returns the instant in UTC and the
// original zone offset ("+02:00", "Z") or "" when the value carried no zone.
func ParseDate(s string) (time.Time, string, bool) {
	for _, l := range dateLayouts {
		ts, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		if !l.zoned {
			return ts.UTC(), "", true
		}
		tz := ts.Format("Z07:00")
		return ts.UTC(), tz, true
	}
	return time.Time{}, "", false
}

// ParseDateColumn replaces string cells of column with UTC times and adds
// "<column>.tz" holding each value's zone, null for values without one. Cells that
// do not parse are kept as they are.
func ParseDateColumn(t Table, column string) Table {
	if !t.HasColumn(column) {
		return t
	}
	tzColumn := column + ".tz"
	out := Table{Columns: append([]string(nil), t.Columns...), Origin: t.Origin}
	if !t.HasColumn(tzColumn) {
		out.Columns = insertAfter(out.Columns, column, tzColumn)
	}
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		row := make(Row, len(r)+1)
		for k, v := range r {
			row[k] = v
		}
		if s, ok := r[column].Scalar().(string); ok {
			if ts, tz, ok := ParseDate(s); ok {
				row[column] = codeable.ScalarValue(ts)
				if tz != "" {
					row[tzColumn] = codeable.ScalarValue(tz)
				} else {
					delete(row, tzColumn)
				}
			}
		}
		out.Rows[i] = row
	}
	return out
}

func insertAfter(cols []string, after, col string) []string {
	out := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		out = append(out, c)
		if c == after {
			out = append(out, col)
		}
	}
	return out
}
