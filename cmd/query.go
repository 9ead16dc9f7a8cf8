// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"fhirq/cli/internal/dsl"
	"fhirq/cli/internal/frame"
	"fhirq/cli/internal/progress"
)

var (
	queryRetrieve   retrieveOptions
	queryOutput     outputOptions
	queryPatientKey string
	queryPrefixes   []string
	queryRequire    bool
	queryJSONPath   string
	queryShow       bool
)

// queryCmd runs a DSL query file, optionally scoped to patients.
var queryCmd = &cobra.Command{
	Use:   "query <file>",
	Short: "Run a DSL query from a JSON or YAML file",
	Long: `The query command sends the DSL query in <file> (JSON, or YAML with a .yaml/.yml
extension) to the project's search endpoint.

Patient flags add a terms filter on --patient-key (default subject.reference) next
to the query's own filter. Every id is matched with each --prefix (default
"Patient/") and bare.

--jsonpath prints the matches of a JSONPath expression for every hit, one JSON
value per line, instead of a table. --show prints the compiled query and exits.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := dsl.LoadFile(args[0])
		if err != nil {
			return err
		}
		overrides, err := parseOverrides(queryRetrieve.overrides)
		if err != nil {
			return err
		}
		if q, err = dsl.Merge(q, overrides); err != nil {
			return err
		}
		so := dsl.ScopeOptions{
			PatientID:  queryRetrieve.patient,
			PatientIDs: queryRetrieve.patients,
			PatientKey: queryPatientKey,
			KeySet:     cmd.Flags().Changed("patient-key"),
			Required:   queryRequire,
		}
		if cmd.Flags().Changed("prefix") {
			so.Prefixes = append([]string{}, queryPrefixes...)
		}
		compiled, err := dsl.Compile(q, so)
		if err != nil {
			return err
		}
		if queryShow {
			fmt.Println(oj.JSON(toGeneric(compiled), &oj.Options{Indent: 2, Sort: false}))
			return nil
		}

		var path frame.Path
		if queryJSONPath != "" {
			if path, err = frame.ParsePath(queryJSONPath); err != nil {
				return err
			}
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

		r := progress.Start(compiled.Table(), "records", flagQuiet)
		opts, err := queryRetrieve.frameOptions(a, r)
		if err != nil {
			r.Stop(false)
			return err
		}
		hits, err := acc.Run(cmd.Context(), compiled, so.Scope(), opts)
		r.Stop(err == nil && queryRetrieve.all)
		if err != nil {
			return err
		}

		if queryJSONPath != "" {
			w := bufio.NewWriter(os.Stdout)
			for _, h := range hits {
				matches, err := path.GetHit(h)
				if err != nil {
					return err
				}
				for _, m := range matches {
					fmt.Fprintln(w, oj.JSON(m))
				}
			}
			return w.Flush()
		}

		t, err := frame.FromHits(hits)
		if err != nil {
			return err
		}
		if !queryRetrieve.raw {
			t = frame.Expand(t, opts.Expand)
		}
		return queryOutput.emit(cmd.Context(), cmd, a, t)
	},
}

// toGeneric decodes q into plain maps so it prints with stable formatting.
func toGeneric(q dsl.Query) any {
	b, err := q.MarshalJSON()
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	v, err := oj.Parse(b)
	if err != nil {
		return string(b)
	}
	return v
}

func init() {
	addRetrieveFlags(queryCmd, &queryRetrieve)
	addOutputFlags(queryCmd, &queryOutput)
	f := queryCmd.Flags()
	f.StringVar(&queryPatientKey, "patient-key", "", "document path holding the patient reference (default subject.reference)")
	f.StringSliceVar(&queryPrefixes, "prefix", nil, `patient id prefixes (default "Patient/"; pass --prefix= for bare ids only)`)
	f.BoolVar(&queryRequire, "require-patient", false, "fail when no patient id is given")
	f.StringVar(&queryJSONPath, "jsonpath", "", "print matches of this JSONPath per hit, e.g. '$.code.coding[*].code'")
	f.BoolVar(&queryShow, "show", false, "print the compiled query and exit")
	rootCmd.AddCommand(queryCmd)
}
