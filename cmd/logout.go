// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutKeepDSN bool

// logoutCmd represents the logout command for clearing authentication state.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove all saved credentials and tokens",
	Long: `The logout command clears the access token, refresh token and login state from
the OS keychain, together with the stored export database DSN unless --keep-dsn
is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.auth.Logout(); err != nil {
			a.log.Debug().Err(err).Msg("clear tokens")
		}
		if !logoutKeepDSN {
			if err := a.keys.ClearPostgresDSN(); err != nil {
				a.log.Debug().Err(err).Msg("clear export dsn")
			}
		}
		fmt.Println("✅ All credentials and tokens have been removed")
		return nil
	},
}

func init() {
	logoutCmd.Flags().BoolVar(&logoutKeepDSN, "keep-dsn", false, "keep the stored export database DSN")
	rootCmd.AddCommand(logoutCmd)
}
