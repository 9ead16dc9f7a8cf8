// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	stderrors "errors"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"fhirq/cli/internal/config"
	"fhirq/cli/internal/dsn"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/keychain"
	"fhirq/cli/internal/terminal"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		data := [][]string{{"key", "value"}}
		for _, k := range config.Keys() {
			v, _ := cfg.Get(k)
			data = append(data, []string{k, orDash(v)})
		}
		fmt.Printf("Config file: %s\n", path)
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		v, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting in the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Flags and environment must not leak into the saved file.
		path := configPath
		if path == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return errors.Wrap(errors.Config, "resolve config dir", err)
			}
			path = p
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		pterm.Success.Printfln("%s = %s", args[0], args[1])
		return nil
	},
}

var configSetDSNCmd = &cobra.Command{
	Use:   "set-dsn [dsn]",
	Short: "Store the PostgreSQL export DSN in the OS keychain",
	Long: `set-dsn validates a postgres:// DSN and stores it in the OS keychain, where
--pg-table exports pick it up. Without an argument the DSN is read from a hidden
prompt. Passing "-" removes the stored DSN.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		var raw string
		if len(args) == 1 {
			raw = args[0]
		} else {
			raw, err = terminal.ReadSecret("PostgreSQL DSN: ")
			if err != nil {
				return errors.Wrap(errors.Validation, "read DSN", err)
			}
		}
		if raw == "-" {
			if err := a.keys.ClearPostgresDSN(); err != nil && !stderrors.Is(err, keychain.ErrNotFound) {
				return errors.Wrap(errors.Auth, "remove DSN", err)
			}
			pterm.Success.Println("Removed the stored export DSN")
			return nil
		}
		info, err := dsn.Parse(raw)
		if err != nil {
			return errors.Wrap(errors.Validation, "parse DSN", err)
		}
		if err := a.keys.SavePostgresDSN(info.String()); err != nil {
			return errors.Wrap(errors.Auth, "store DSN", err)
		}
		pterm.Success.Printfln("Stored %s", info.Redacted())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd, configSetDSNCmd)
	rootCmd.AddCommand(configCmd)
}
