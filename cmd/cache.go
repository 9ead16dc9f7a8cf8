// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"fhirq/cli/internal/errors"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or empty the result cache",
	Long: `Complete results of --all retrievals are cached by a fingerprint of the
resource table, the patient scope and the compiled query. The backend is chosen
with 'fhirq config set cache.backend file|sqlite|none'.`,
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cached results",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		a := &app{cfg: cfg}
		store, closer, err := a.openCache()
		if err != nil {
			return err
		}
		defer closer.Close()
		if store == nil {
			fmt.Println("Result cache is disabled (cache.backend = none)")
			return nil
		}
		entries, err := store.List(cmd.Context())
		if err != nil {
			return errors.Wrap(errors.Cache, "list cache", err)
		}
		if len(entries) == 0 {
			fmt.Println("Result cache is empty")
			return nil
		}
		data := [][]string{{"fingerprint", "records", "size", "created"}}
		for _, e := range entries {
			data = append(data, []string{
				e.Fingerprint[:min(16, len(e.Fingerprint))],
				strconv.Itoa(e.Records),
				humanBytes(e.Size),
				e.CreatedAt.Local().Format(time.DateTime),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached result",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		a := &app{cfg: cfg}
		store, closer, err := a.openCache()
		if err != nil {
			return err
		}
		defer closer.Close()
		if store == nil {
			return nil
		}
		n, err := store.Clear(cmd.Context())
		if err != nil {
			return errors.Wrap(errors.Cache, "clear cache", err)
		}
		pterm.Success.Printfln("Removed %d cached results", n)
		return nil
	},
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	cacheCmd.AddCommand(cacheLsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
