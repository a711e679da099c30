package main

import (
	"github.com/spf13/cobra"

	"github.com/agentplus/hbagent/internal/config"
	clierrors "github.com/agentplus/hbagent/internal/errors"
	"github.com/agentplus/hbagent/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View hbagent's effective configuration.`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

// ConfigShow is the effective configuration rendered for `agent config
// show`, with the bearer token always redacted.
type ConfigShow struct {
	ServerURL    string `json:"server_url"`
	TokenSet     bool   `json:"token_set"`
	HTTPTimeout  string `json:"http_timeout"`
	IdleInterval string `json:"idle_interval"`
	BusyInterval string `json:"busy_interval"`
	LogLevel     string `json:"log_level"`
	LogFormat    string `json:"log_format"`
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show",
		Short:   "Print the effective configuration",
		Long:    `Display the resolved configuration (flag > env var > config file > default), with the bearer token redacted.`,
		Example: `  agent config show
  agent config show --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			view := ConfigShow{
				ServerURL:    cfg.ServerURL(),
				TokenSet:     cfg.Token() != "",
				HTTPTimeout:  cfg.HTTPTimeout().String(),
				IdleInterval: cfg.IdleInterval().String(),
				BusyInterval: cfg.BusyInterval().String(),
				LogLevel:     cfg.LogLevel(),
				LogFormat:    cfg.LogFormat(),
			}

			if out.JSON {
				return out.PrintJSON(view)
			}

			out.Print("server_url     = %s\n", view.ServerURL)
			out.Print("token_set      = %v\n", view.TokenSet)
			out.Print("http_timeout   = %s\n", view.HTTPTimeout)
			out.Print("idle_interval  = %s\n", view.IdleInterval)
			out.Print("busy_interval  = %s\n", view.BusyInterval)
			out.Print("log_level      = %s\n", view.LogLevel)
			out.Print("log_format     = %s\n", view.LogFormat)

			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Write a starter config.yaml",
		Long:    `Write a config.yaml populated with the built-in defaults to ~/.config/hbagent (the bearer token is never written here; use 'agent token login').`,
		Example: `  agent config init
  agent config init --force`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			path, err := config.Path()
			if err != nil {
				return clierrors.ConfigFailed("resolve config path", err)
			}

			if err := config.WriteTemplate(path, config.DefaultFileTemplate(), force); err != nil {
				return clierrors.ConfigFailed("write config template", err)
			}

			out.Success("Wrote %s", path)

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}
