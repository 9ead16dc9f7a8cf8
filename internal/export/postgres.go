// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"fhirq/cli/internal/dsn"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/frame"
)

// PostgresOptions controls LoadPostgres.
type PostgresOptions struct {
	// Table is "name" or "schema.name". The schema defaults to public.
	Table string
	// Replace truncates the table before loading.
	Replace bool
}

// db is the subset of *pgxpool.Pool LoadPostgres needs.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// LoadPostgres copies t into a PostgreSQL table, creating it with text columns
// when missing and adding any columns the table lacks. It returns the number of
// rows copied.
func LoadPostgres(ctx context.Context, connString string, t frame.Table, opts PostgresOptions, log zerolog.Logger) (int64, error) {
	normalized, err := dsn.Normalize(connString)
	if err != nil {
		return 0, errors.Wrap(errors.Validation, "export database", err)
	}
	poolCfg, err := pgxpool.ParseConfig(normalized)
	if err != nil {
		return 0, errors.Wrap(errors.Validation, "export database", err)
	}
	poolCfg.MaxConns = 2
	cfg := poolCfg.ConnConfig

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return 0, errors.Wrap(errors.Export, "connect", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return 0, errors.Wrap(errors.Export, fmt.Sprintf("connect to %s:%d", cfg.Host, cfg.Port), err)
	}
	return load(ctx, pool, t, opts, log)
}

func load(ctx context.Context, conn db, t frame.Table, opts PostgresOptions, log zerolog.Logger) (int64, error) {
	schema, table, err := splitTable(opts.Table)
	if err != nil {
		return 0, err
	}
	ident := pgx.Identifier{schema, table}

	existing, err := tableColumns(ctx, conn, schema, table)
	if err != nil {
		return 0, errors.Wrap(errors.Export, "inspect table", err)
	}
	for _, stmt := range ddl(ident, t.Columns, existing) {
		log.Debug().Str("sql", stmt).Msg("export ddl")
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return 0, errors.Wrap(errors.Export, "prepare table", err)
		}
	}
	if opts.Replace && len(existing) > 0 {
		if _, err := conn.Exec(ctx, "TRUNCATE "+ident.Sanitize()); err != nil {
			return 0, errors.Wrap(errors.Export, "truncate table", err)
		}
	}

	n, err := conn.CopyFrom(ctx, ident, t.Columns, pgx.CopyFromRows(copyRows(t)))
	if err != nil {
		return 0, errors.Wrap(errors.Export, "copy rows", err)
	}
	log.Debug().Str("table", ident.Sanitize()).Int64("rows", n).Msg("exported")
	return n, nil
}

// splitTable splits "schema.table", defaulting the schema to public.
func splitTable(name string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", errors.New(errors.Validation, "export table name is required")
	}
	parts := strings.Split(name, ".")
	switch {
	case len(parts) == 1:
		return "public", parts[0], nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0], parts[1], nil
	}
	return "", "", errors.Newf(errors.Validation, "invalid export table name '%s'", name)
}

// tableColumns returns the table's existing columns, or nil when it does not exist.
func tableColumns(ctx context.Context, conn db, schema, table string) (map[string]struct{}, error) {
	rows, err := conn.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols map[string]struct{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if cols == nil {
			cols = map[string]struct{}{}
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}

// ddl returns the statements that make ident hold every column as text.
func ddl(ident pgx.Identifier, columns []string, existing map[string]struct{}) []string {
	if existing == nil {
		defs := make([]string, len(columns))
		for i, c := range columns {
			defs[i] = pgx.Identifier{c}.Sanitize() + " text"
		}
		return []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", ident.Sanitize(), strings.Join(defs, ", "))}
	}
	var out []string
	for _, c := range columns {
		if _, ok := existing[c]; !ok {
			out = append(out, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s text", ident.Sanitize(), pgx.Identifier{c}.Sanitize()))
		}
	}
	return out
}

func copyRows(t frame.Table) [][]any {
	out := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]any, len(t.Columns))
		for ci, c := range t.Columns {
			if v := r[c]; !v.IsNull() {
				row[ci] = frame.Text(v)
			}
		}
		out[i] = row
	}
	return out
}
