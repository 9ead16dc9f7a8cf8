package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// whoamiCmd shows the current identity. It asks the platform when possible and
// falls back to what the stored token says.
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show current authenticated account",
	Long: `The whoami command shows who the stored token belongs to, when it expires,
and the account and project commands will use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		st, claims, err := a.auth.Status()
		if err != nil || !st.LoggedIn {
			fmt.Println("🔒 You're not logged in yet!")
			fmt.Println("   Run 'fhirq login' to get started.")
			return nil
		}

		who := st.User
		stop := startInlineSpinner(os.Stdout, "Checking session", spinnerFrames, 120*time.Millisecond)
		me, meErr := a.client.Me(cmd.Context())
		stop()
		if meErr == nil {
			for _, k := range []string{"email", "username", "id"} {
				if v, ok := me[k].(string); ok && v != "" {
					who = v
					break
				}
			}
		} else {
			a.log.Debug().Err(meErr).Msg("user lookup failed; using token claims")
		}

		fmt.Printf("👤 Current user: %s\n", orDash(who))
		if !claims.Expiry.IsZero() {
			state := "valid until"
			if time.Now().After(claims.Expiry) {
				state = "expired at"
			}
			fmt.Printf("   Token %s %s\n", state, claims.Expiry.Local().Format(time.RFC1123))
		}
		fmt.Printf("   Environment: %s (%s)\n", orDash(a.cfg.Environment), a.endpoints.Host())
		fmt.Printf("   Account: %s\n", orDash(a.cfg.Account))
		fmt.Printf("   Project: %s\n", orDash(a.cfg.Project))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
