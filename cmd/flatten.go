// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"fhirq/cli/internal/codeable"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/frame"
)

var (
	flattenColumn string
	flattenOutput outputOptions
)

// flattenCmd flattens codeable concepts read from a file or stdin, without any
// network access.
var flattenCmd = &cobra.Command{
	Use:   "flatten [file]",
	Short: "Flatten codeable concepts from JSON into a table",
	Long: `flatten reads a JSON array or newline-delimited JSON values and flattens each
value into one or more rows: codings become columns named after their system,
extensions after their url, tags after their tag.

With --column the values are documents and only that field is flattened, keeping
the other fields as columns.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := io.Reader(os.Stdin)
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(errors.Validation, "open input", err)
			}
			defer f.Close()
			in = f
		}
		values, err := readValues(in)
		if err != nil {
			return err
		}

		var t frame.Table
		if flattenColumn == "" {
			t = frame.ExpandColumn(values)
		} else {
			raw := make([]json.RawMessage, len(values))
			for i, v := range values {
				if raw[i], err = v.MarshalJSON(); err != nil {
					return errors.Wrap(errors.Validation, "encode input", err)
				}
			}
			docs, err := frame.FromHits(raw)
			if err != nil {
				return errors.Wrap(errors.Validation, "input documents", err)
			}
			t = frame.Expand(docs, frame.ExpandOptions{CodeColumns: []string{flattenColumn}})
		}

		a := &app{}
		if flattenOutput.pgTable != "" {
			if a, err = newApp(); err != nil {
				return err
			}
		}
		return flattenOutput.emit(cmd.Context(), cmd, a, t)
	},
}

// readValues decodes a JSON array, or a stream of JSON values.
func readValues(r io.Reader) ([]codeable.Value, error) {
	dec := json.NewDecoder(r)
	var out []codeable.Value
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.Validation, "parse input", err)
		}
		v, err := codeable.Decode(raw)
		if err != nil {
			return nil, errors.Wrap(errors.Validation, "parse input", err)
		}
		if v.Kind() == codeable.List && len(out) == 0 && !dec.More() {
			return v.Items(), nil
		}
		out = append(out, v)
	}
	return out, nil
}

func init() {
	flattenCmd.Flags().StringVar(&flattenColumn, "column", "", "flatten only this field of each input document")
	addOutputFlags(flattenCmd, &flattenOutput)
	rootCmd.AddCommand(flattenCmd)
}
