// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fhirq/cli/internal/progress"
	"fhirq/cli/internal/resource"
)

var (
	getRetrieve retrieveOptions
	getOutput   outputOptions
)

// getCmd fetches one resource type of the current project as a flattened table.
var getCmd = &cobra.Command{
	Use:   "get <resource>",
	Short: "Fetch a resource type as a table",
	Long: fmt.Sprintf(`The get command fetches documents of one resource type, scoped to patients when
--patient or --patients is given, and flattens coded, reference and date columns.

Without --all a sample of %d records is fetched. With --all every page is scrolled
and the complete result is cached; the same query is then answered from the cache
until --no-cache is given or 'fhirq cache clear' is run.

Resources: %s`, resource.SampleSize, strings.Join(resource.Names(), ", ")),
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

		r := progress.Start(d.Table, "records", flagQuiet)
		opts, err := getRetrieve.frameOptions(a, r)
		if err != nil {
			r.Stop(false)
			return err
		}
		t, err := acc.Frame(cmd.Context(), d, opts)
		r.Stop(err == nil && getRetrieve.all)
		if err != nil {
			return err
		}
		return getOutput.emit(cmd.Context(), cmd, a, t)
	},
}

func init() {
	addRetrieveFlags(getCmd, &getRetrieve)
	addOutputFlags(getCmd, &getOutput)
	rootCmd.AddCommand(getCmd)
}
