// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"fhirq/cli/internal/codeable"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/frame"
	"fhirq/cli/internal/progress"
	"fhirq/cli/internal/resource"
)

// retrieveOptions are the flags shared by commands that run a search.
type retrieveOptions struct {
	patient   string
	patients  []string
	all       bool
	pageSize  int
	maxPages  int
	noCache   bool
	raw       bool
	codeCols  []string
	dateCols  []string
	overrides string
}

func addRetrieveFlags(c *cobra.Command, o *retrieveOptions) {
	f := c.Flags()
	f.StringVar(&o.patient, "patient", "", "restrict to one patient id")
	f.StringSliceVar(&o.patients, "patients", nil, "restrict to these patient ids (comma separated)")
	f.BoolVar(&o.all, "all", false, "scroll through every result instead of a sample")
	f.IntVar(&o.pageSize, "page-size", 0, "records per page when scrolling (default from config)")
	f.IntVar(&o.maxPages, "max-pages", 0, "stop after this many pages; truncated results are not cached")
	f.BoolVar(&o.noCache, "no-cache", false, "ignore the result cache")
	f.BoolVar(&o.raw, "raw", false, "keep nested columns instead of flattening them")
	f.StringSliceVar(&o.codeCols, "code-cols", nil, "extra columns to flatten as codeable concepts")
	f.StringSliceVar(&o.dateCols, "date-cols", nil, "extra columns to parse as dates")
	f.StringVar(&o.overrides, "where", "", `JSON object deep-merged into the query, e.g. '{"where":{"query":{"term":{"status.keyword":"final"}}}}'`)
}

// frameOptions maps the flags onto accessor options. Pages follow the config page
// size unless --page-size is given.
func (o retrieveOptions) frameOptions(a *app, r *progress.Renderer) (resource.FrameOptions, error) {
	fo := resource.FrameOptions{
		AllResults:  o.all,
		Raw:         o.raw,
		PatientID:   o.patient,
		PatientIDs:  o.patients,
		PageSize:    o.pageSize,
		MaxPages:    o.maxPages,
		IgnoreCache: o.noCache,
		Expand:      frame.ExpandOptions{CodeColumns: o.codeCols, DateColumns: o.dateCols},
	}
	if fo.PageSize <= 0 && o.all {
		fo.PageSize = a.cfg.PageSize
	}
	if r != nil {
		fo.OnPage = r.OnPage
	}
	m, err := parseOverrides(o.overrides)
	if err != nil {
		return fo, err
	}
	fo.QueryOverrides = m
	return fo, nil
}

func parseOverrides(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, errors.Wrap(errors.Validation, "parse --where", err)
	}
	return m, nil
}

// countTable turns (key, count) pairs into a two column table.
func countTable(keyColumn string, keys []string, counts []int) frame.Table {
	t := frame.Table{Columns: []string{keyColumn, "count"}}
	for i, k := range keys {
		t.Rows = append(t.Rows, frame.Row{
			keyColumn: codeable.ScalarValue(k),
			"count":   codeable.ScalarValue(counts[i]),
		})
	}
	return t
}
