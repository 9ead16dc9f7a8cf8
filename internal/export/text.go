// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"fhirq/cli/internal/codeable"
	"fhirq/cli/internal/frame"
)

const maxCellWidth = 60

// RenderTable renders t as a boxed terminal table. When limit is positive only
// the first limit rows are shown, followed by a count of the hidden ones.
func RenderTable(t frame.Table, limit int) string {
	if len(t.Columns) == 0 {
		return "(no columns)\n"
	}
	rows := t.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	data := pterm.TableData{t.Columns}
	for _, r := range rows {
		line := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			line[i] = truncate(frame.Text(r[c]), maxCellWidth)
		}
		data = append(data, line)
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return err.Error() + "\n"
	}
	out += "\n"
	if hidden := t.Len() - len(rows); hidden > 0 {
		out += fmt.Sprintf("... %d more rows\n", hidden)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// WriteCSV writes a header row followed by one record per row. Nulls are empty.
func WriteCSV(w io.Writer, t frame.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for i, c := range t.Columns {
			rec[i] = frame.Text(r[c])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes a JSON array with one object per row, keys in column order.
// Null cells are omitted.
func WriteJSON(w io.Writer, t frame.Table) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, r := range t.Rows {
		fields := make([]codeable.Field, 0, len(t.Columns))
		for _, c := range t.Columns {
			if v := r[c]; !v.IsNull() {
				fields = append(fields, codeable.Field{Key: c, Value: v})
			}
		}
		b, err := codeable.MappingValue(fields...).MarshalJSON()
		if err != nil {
			return err
		}
		sep := ",\n  "
		if i == 0 {
			sep = "\n  "
		}
		if _, err := io.WriteString(w, sep); err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	end := "\n]\n"
	if t.Len() == 0 {
		end = "]\n"
	}
	_, err := io.WriteString(w, end)
	return err
}
