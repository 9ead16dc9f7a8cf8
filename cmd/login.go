// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"fhirq/cli/internal/backend"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/keychain"
	"fhirq/cli/internal/terminal"
)

var (
	loginToken        string
	loginRefreshToken string
)

// loginCmd stores a session token, and optionally a refresh token, in the OS keychain.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a session token in the OS keychain",
	Long: `The login command stores the access token used for every request, and optionally
a refresh token used to renew it when it expires.

Without --token the token is read from a hidden prompt, or from stdin when stdin is
not a terminal. A leading "Bearer " is accepted and stripped.

For CI, FHIRQ_ACCESS_TOKEN overrides the stored token without logging in.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		token := loginToken
		if token == "" {
			token, err = terminal.ReadSecret("Access token: ")
			if err != nil {
				return errors.Wrap(errors.Validation, "read token", err)
			}
		}
		token = backend.ParseBearerToken(token)
		if os.Getenv(keychain.EnvAccessToken) != "" {
			pterm.Warning.Printfln("%s is set and takes precedence over the stored token", keychain.EnvAccessToken)
		}

		st, err := a.auth.Login(token, loginRefreshToken)
		if err != nil {
			return err
		}
		_, claims, _ := a.auth.Status()

		who := st.User
		if who == "" {
			who = "token owner"
		}
		pterm.Success.Printfln("Logged in as %s", who)
		if !claims.Expiry.IsZero() {
			left := time.Until(claims.Expiry).Round(time.Minute)
			pterm.Info.Printfln("Token expires %s (in %s)", claims.Expiry.Local().Format(time.RFC1123), left)
		}
		if loginRefreshToken == "" {
			pterm.Info.Println("No refresh token given; run 'fhirq login' again when the token expires")
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "access token (prompted when omitted)")
	loginCmd.Flags().StringVar(&loginRefreshToken, "refresh-token", "", "refresh token used to renew the access token")
	rootCmd.AddCommand(loginCmd)
}
