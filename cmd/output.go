// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	stderrors "errors"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fhirq/cli/internal/dsn"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/export"
	"fhirq/cli/internal/frame"
	"fhirq/cli/internal/keychain"
)

// outputOptions are the flags shared by commands that produce a table.
type outputOptions struct {
	format    string
	file      string
	pg        string
	pgTable   string
	pgReplace bool
	rows      int
}

func addOutputFlags(c *cobra.Command, o *outputOptions) {
	f := c.Flags()
	f.StringVarP(&o.format, "out", "o", "table", "output format: table, json, csv or parquet")
	f.StringVarP(&o.file, "file", "f", "", "write to this file; the format follows the extension unless --out is set")
	f.StringVar(&o.pg, "pg", "", "PostgreSQL DSN to load the table into (default: DSN stored with 'fhirq config set-dsn')")
	f.StringVar(&o.pgTable, "pg-table", "", "PostgreSQL table to load into; enables the database export")
	f.BoolVar(&o.pgReplace, "pg-replace", false, "truncate the PostgreSQL table before loading")
	f.IntVar(&o.rows, "rows", 50, "rows shown by the table format (0 for all)")
}

// emit writes t where the flags say. The database export runs in addition to the
// file or terminal output.
func (o outputOptions) emit(ctx context.Context, c *cobra.Command, a *app, t frame.Table) error {
	format, err := export.ParseFormat(o.format)
	if err != nil {
		return err
	}

	switch {
	case o.file != "":
		if !c.Flags().Changed("out") {
			format = export.FormatForPath(o.file, export.CSV)
		}
		if format == export.Table {
			format = export.CSV
		}
		if err := export.WriteFile(o.file, t, format); err != nil {
			return err
		}
		pterm.Success.Printfln("Wrote %d rows to %s", t.Len(), o.file)
	case o.pgTable != "" && !c.Flags().Changed("out"):
		// database only
	case format == export.Table:
		pterm.Print(export.RenderTable(t, o.rows))
	case format == export.Parquet && isTerminal(os.Stdout):
		return errors.New(errors.Validation, "refusing to write parquet to a terminal; use --file")
	default:
		if err := export.Write(os.Stdout, t, format); err != nil {
			return err
		}
	}

	if o.pgTable == "" {
		return nil
	}
	conn := o.pg
	if conn == "" {
		conn, err = a.keys.LoadPostgresDSN()
		if stderrors.Is(err, keychain.ErrNotFound) {
			return errors.New(errors.Validation, "no export database; pass --pg or run 'fhirq config set-dsn'")
		}
		if err != nil {
			return errors.Wrap(errors.Auth, "load export DSN", err)
		}
	}
	n, err := export.LoadPostgres(ctx, conn, t, export.PostgresOptions{Table: o.pgTable, Replace: o.pgReplace}, a.log)
	if err != nil {
		return err
	}
	target := o.pgTable
	if info, perr := dsn.Parse(conn); perr == nil {
		target = info.Host + "/" + info.Database + " " + o.pgTable
	}
	pterm.Success.Printfln("Loaded %d rows into %s", n, target)
	return nil
}

func isTerminal(f *os.File) bool { return term.IsTerminal(int(f.Fd())) }
