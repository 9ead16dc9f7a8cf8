// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package export writes tables to the terminal, to files (JSON, CSV, Parquet) and
// into PostgreSQL.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/frame"
)

// Format is an output encoding.
type Format string

const (
	Table   Format = "table"
	JSON    Format = "json"
	CSV     Format = "csv"
	Parquet Format = "parquet"
)

// Formats lists the accepted formats.
func Formats() []Format { return []Format{Table, JSON, CSV, Parquet} }

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", errors.Newf(errors.Validation, "unknown output format '%s' (use table, json, csv or parquet)", s)
}

// FormatForPath infers the format from a file extension, falling back to def.
func FormatForPath(path string, def Format) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON
	case ".csv":
		return CSV
	case ".parquet", ".pq":
		return Parquet
	}
	return def
}

// Write encodes t to w.
func Write(w io.Writer, t frame.Table, f Format) error {
	var err error
	switch f {
	case Table, "":
		_, err = io.WriteString(w, RenderTable(t, 0))
	case JSON:
		err = WriteJSON(w, t)
	case CSV:
		err = WriteCSV(w, t)
	case Parquet:
		err = WriteParquet(w, t)
	default:
		return errors.Newf(errors.Validation, "unknown output format '%s'", f)
	}
	if err != nil {
		return errors.Wrap(errors.Export, fmt.Sprintf("write %s", f), err)
	}
	return nil
}

// WriteFile writes t to path through a temporary file renamed into place.
func WriteFile(path string, t frame.Table, f Format) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(errors.Export, "create output file", err)
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp, t, f); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.Export, "close output file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(errors.Export, "move output file into place", err)
	}
	return nil
}
