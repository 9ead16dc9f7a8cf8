// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/spf13/cobra"

	"fhirq/cli/internal/codeable"
	"fhirq/cli/internal/frame"
	"fhirq/cli/internal/progress"
	"fhirq/cli/internal/resource"
)

var (
	countRetrieve retrieveOptions
	countOutput   outputOptions
	countCodes    bool
)

// countCmd counts every record of a resource type per patient or per code.
var countCmd = &cobra.Command{
	Use:       "count <resource>",
	Short:     "Count records per patient or per code",
	Args:      cobra.ExactArgs(1),
	ValidArgs: resource.Names(),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := resource.Lookup(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		acc, closer, err := a.accessor()
		if err != nil {
			return err
		}
		defer closer.Close()

		countRetrieve.all = true
		r := progress.Start(d.Table, "records", flagQuiet)
		opts, err := countRetrieve.frameOptions(a, r)
		if err != nil {
			r.Stop(false)
			return err
		}

		var t frame.Table
		if countCodes {
			var counts []resource.CodeCount
			counts, err = acc.CountByCode(cmd.Context(), d, opts)
			t = codeCountTable(counts)
		} else {
			var counts []resource.Count
			counts, err = acc.CountByPatient(cmd.Context(), d, opts)
			keys := make([]string, len(counts))
			ns := make([]int, len(counts))
			for i, c := range counts {
				keys[i], ns[i] = c.Key, c.Count
			}
			t = countTable("patient", keys, ns)
		}
		r.Stop(err == nil)
		if err != nil {
			return err
		}
		return countOutput.emit(cmd.Context(), cmd, a, t)
	},
}

func codeCountTable(counts []resource.CodeCount) frame.Table {
	t := frame.Table{Columns: []string{"field", "system", "code", "display", "count"}}
	for _, c := range counts {
		t.Rows = append(t.Rows, frame.Row{
			"field":   codeable.ScalarValue(c.Field),
			"system":  codeable.ScalarValue(c.System),
			"code":    codeable.ScalarValue(c.Code),
			"display": codeable.ScalarValue(c.Display),
			"count":   codeable.ScalarValue(c.Count),
		})
	}
	return t
}

func init() {
	addRetrieveFlags(countCmd, &countRetrieve)
	addOutputFlags(countCmd, &countOutput)
	countCmd.Flags().BoolVar(&countCodes, "codes", false, "count codings instead of patients")
	_ = countCmd.Flags().MarkHidden("all")
	_ = countCmd.Flags().MarkHidden("raw")
	rootCmd.AddCommand(countCmd)
}
