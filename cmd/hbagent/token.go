package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentplus/hbagent/internal/auth"
	clierrors "github.com/agentplus/hbagent/internal/errors"
	"github.com/agentplus/hbagent/internal/output"
	"github.com/agentplus/hbagent/internal/prompt"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the bearer token",
		Long: `Manage the bearer token hbagent sends as cli_token in every heartbeat.

An explicit CLI_TOKEN environment variable always takes precedence over a
token stored here.`,
	}

	cmd.AddCommand(newTokenLoginCmd())
	cmd.AddCommand(newTokenStatusCmd())
	cmd.AddCommand(newTokenLogoutCmd())

	return cmd
}

func newTokenLoginCmd() *cobra.Command {
	var tokenFlag string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a bearer token in the OS keyring",
		Long: `Store the bearer token hbagent will send as cli_token.

The token is stored securely in your system's keyring (macOS Keychain,
Windows Credential Manager, or Linux Secret Service), falling back to a
config-directory file if the keyring is unavailable.

You can also set the CLI_TOKEN environment variable, which always takes
precedence over a stored token.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			prompter := prompt.New(out)

			if env := os.Getenv("CLI_TOKEN"); env != "" {
				out.Info("CLI_TOKEN environment variable is set")
				out.Muted("The environment variable takes precedence over a stored token")
				out.Println()
			}

			token := tokenFlag
			if token == "" {
				if !prompter.CanPrompt() {
					return clierrors.CannotPrompt("CLI_TOKEN")
				}

				var err error

				token, err = prompter.Password("Enter your bearer token")
				if err != nil {
					return err
				}
			}

			if token == "" {
				return clierrors.TokenEmpty()
			}

			if err := auth.StoreToken(token); err != nil {
				return clierrors.TokenStoreFailed(err)
			}

			out.Success("Token stored")

			return nil
		},
	}

	cmd.Flags().StringVar(&tokenFlag, "token", "", "Token value for non-interactive login (prefer CLI_TOKEN to avoid shell history exposure)")

	return cmd
}

// TokenStatus represents token status for JSON output.
type TokenStatus struct {
	Source string `json:"source"`
	Set    bool   `json:"set"`
}

func newTokenStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the bearer token comes from",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			source, token := auth.GetToken()
			if token == "" {
				if out.JSON {
					return out.PrintJSON(TokenStatus{Source: "", Set: false})
				}

				out.Muted("No token configured")

				return nil
			}

			if out.JSON {
				return out.PrintJSON(TokenStatus{Source: string(source), Set: true})
			}

			out.Print("Source: %s\n", source)
			out.Success("Token is configured")

			return nil
		},
	}
}

func newTokenLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored bearer token",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			if err := auth.DeleteToken(); err != nil {
				if strings.Contains(err.Error(), "not found") {
					out.Muted("No stored token found")
					return nil
				}

				return clierrors.ConfigFailed("remove stored token", err)
			}

			out.Success("Token removed")

			if os.Getenv("CLI_TOKEN") != "" {
				out.Println()
				out.Warning("CLI_TOKEN environment variable is still set")
			}

			return nil
		},
	}
}
