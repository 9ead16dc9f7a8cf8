// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package export

import (
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"

	"fhirq/cli/internal/frame"
)

// parquetFlushInterval bounds the rows buffered per row group.
const parquetFlushInterval = 100_000

// ParquetSchema builds a flat schema with one optional string column per table
// column. Parquet groups order their fields by name, so the file's column order is
// alphabetical rather than the table's.
func ParquetSchema(t frame.Table) (*parquet.Schema, []string) {
	group := parquet.Group{}
	for _, c := range t.Columns {
		group[c] = parquet.Optional(parquet.String())
	}
	cols := append([]string(nil), t.Columns...)
	sort.Strings(cols)
	return parquet.NewSchema("fhirq", group), cols
}

// WriteParquet writes t as a Snappy compressed Parquet file.
func WriteParquet(w io.Writer, t frame.Table) error {
	schema, cols := ParquetSchema(t)
	pw := parquet.NewWriter(w, schema, parquet.Compression(&parquet.Snappy))

	buf := make([]parquet.Row, 0, 1024)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if _, err := pw.WriteRows(buf); err != nil {
			return err
		}
		buf = buf[:0]
		return nil
	}
	for i, r := range t.Rows {
		row := make(parquet.Row, len(cols))
		for ci, c := range cols {
			v := r[c]
			if v.IsNull() {
				row[ci] = parquet.NullValue().Level(0, 0, ci)
				continue
			}
			row[ci] = parquet.ByteArrayValue([]byte(frame.Text(v))).Level(0, 1, ci)
		}
		buf = append(buf, row)
		if len(buf) == cap(buf) {
			if err := flush(); err != nil {
				return err
			}
		}
		if (i+1)%parquetFlushInterval == 0 {
			if err := flush(); err != nil {
				return err
			}
			if err := pw.Flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	return pw.Close()
}
