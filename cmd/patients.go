// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"fhirq/cli/internal/resource"
)

var (
	patientsLimit  int
	patientsRaw    bool
	patientsOutput outputOptions
)

var patientsCmd = &cobra.Command{
	Use:   "patients",
	Short: "Inspect the project's patients",
}

// patientsSampleCmd fetches a sample of patients through the SQL endpoint.
var patientsSampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Fetch a sample of patients",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		acc, closer, err := a.accessor()
		if err != nil {
			return err
		}
		defer closer.Close()

		t, total, err := acc.PatientSample(cmd.Context(), patientsLimit, patientsRaw)
		if err != nil {
			return err
		}
		if total > t.Len() {
			pterm.Info.Printfln("Showing %d of %d patients", t.Len(), total)
		}
		return patientsOutput.emit(cmd.Context(), cmd, a, t)
	},
}

func init() {
	patientsSampleCmd.Flags().IntVar(&patientsLimit, "limit", resource.SampleSize, "number of patients")
	patientsSampleCmd.Flags().BoolVar(&patientsRaw, "raw", false, "keep nested columns instead of flattening them")
	addOutputFlags(patientsSampleCmd, &patientsOutput)
	patientsCmd.AddCommand(patientsSampleCmd)
	rootCmd.AddCommand(patientsCmd)
}
