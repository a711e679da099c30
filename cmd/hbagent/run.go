//go:build unix

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentplus/hbagent/internal/agent"
	"github.com/agentplus/hbagent/internal/auth"
	"github.com/agentplus/hbagent/internal/config"
	clierrors "github.com/agentplus/hbagent/internal/errors"
	"github.com/agentplus/hbagent/internal/heartbeat"
	"github.com/agentplus/hbagent/internal/observability"
	"github.com/agentplus/hbagent/internal/output"
	"github.com/agentplus/hbagent/internal/telemetry"
)

// connectTimeout bounds how long the connect spinner waits for the first
// heartbeat outcome before giving up on showing a live status and just
// settling into the background loop.
const connectTimeout = 5 * time.Second

func newRunCmd() *cobra.Command {
	var (
		tokenFlag     string
		serverURLFlag string
		httpTimeout   time.Duration
		idleInterval  time.Duration
		busyInterval  time.Duration
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the heartbeat control loop",
		Long: `Start the control loop: emit periodic heartbeats carrying host telemetry,
drain managed shell output, and execute task batches the server sends back
(spawn a shell, run a command, kill a shell, confirm a death).

The process does not exit on configuration errors or heartbeat failures; it
keeps retrying until a termination signal arrives.`,
		Example: `  agent run
  agent run --server-url https://api.example.com/hb --token $CLI_TOKEN
  agent run --dry-run --server-url https://api.example.com/hb --token $CLI_TOKEN`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			logger := observability.FromContext(cmd.Context()).With(
				slog.String("component", "run"),
				slog.String("event.type", "agent.run"),
			)

			cfg := config.Load()

			token := resolveToken(tokenFlag, cfg)
			serverURL := resolveServerURL(serverURLFlag, cfg)

			if token == "" || serverURL == "" {
				out.Warning("CLI_TOKEN / SERVER_URL not fully configured; heartbeats will be recorded as failed until they are")
				out.Muted("Set --token/--server-url, the CLI_TOKEN/SERVER_URL env vars, or run 'agent token login'")
			}

			if timeoutFlag := cmd.Flags().Changed("http-timeout"); !timeoutFlag {
				httpTimeout = cfg.HTTPTimeout()
			}

			if !cmd.Flags().Changed("idle-interval") {
				idleInterval = cfg.IdleInterval()
			}

			if !cmd.Flags().Changed("busy-interval") {
				busyInterval = cfg.BusyInterval()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			a := agent.New(ctx, agent.Config{
				Token:        token,
				ServerURL:    serverURL,
				HTTPTimeout:  httpTimeout,
				IdleInterval: idleInterval,
				BusyInterval: busyInterval,
				Telemetry:    telemetry.NoopProvider{},
				Logger:       logger,
			})

			spin := out.Spinner("Connecting to " + serverURL)
			spin.Start()

			if dryRun {
				a.Engine.SendOnce(ctx)
			} else {
				a.Start()
			}

			connected := waitForOutcome(a, connectTimeout)
			if connected {
				spin.StopWithSuccess(a.Inspector.Snapshot().StatusLine(100))
			} else {
				spin.Stop()
				out.Muted("No heartbeat outcome yet, continuing in the background")
			}

			if dryRun {
				outcome := a.Engine.Snapshot()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				a.Shutdown(shutdownCtx)

				if outcome.Status != heartbeat.StatusSuccess {
					return clierrors.Wrap(clierrors.ExitNetwork, "dry run: connection not verified", outcome.Err)
				}

				out.Success("Dry run: connection verified, not entering the control loop")

				return nil
			}

			out.Println()
			out.Info("hbagent running. Press Ctrl+C to stop.")

			<-ctx.Done()

			out.Println()
			out.Info("Received shutdown signal, stopping managed shells...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			a.Shutdown(shutdownCtx)

			logger.Info("agent shut down", slog.String("event.type", "agent.shutdown"))

			return nil
		},
	}

	cmd.Flags().StringVar(&tokenFlag, "token", "", "Bearer token (overrides CLI_TOKEN / stored token)")
	cmd.Flags().StringVar(&serverURLFlag, "server-url", "", "Heartbeat endpoint URL (overrides SERVER_URL)")
	cmd.Flags().DurationVar(&httpTimeout, "http-timeout", config.DefaultHTTPTimeout, "Per-heartbeat HTTP timeout")
	cmd.Flags().DurationVar(&idleInterval, "idle-interval", time.Duration(config.DefaultIdleIntervalMS)*time.Millisecond, "Heartbeat delay while idle")
	cmd.Flags().DurationVar(&busyInterval, "busy-interval", time.Duration(config.DefaultBusyIntervalMS)*time.Millisecond, "Heartbeat delay while shells are managed")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Verify connectivity with one heartbeat, then exit without entering the control loop")

	return cmd
}

// resolveToken prefers an explicit flag, then the CLI_TOKEN env var /
// keyring (via auth.GetToken), then the config file.
func resolveToken(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}

	if _, tok := auth.GetToken(); tok != "" {
		return tok
	}

	return cfg.Token()
}

func resolveServerURL(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}

	return cfg.ServerURL()
}

// waitForOutcome polls the inspector briefly for the first recorded
// heartbeat outcome so the connect spinner can resolve to success/failure
// instead of spinning indefinitely on a slow first send.
func waitForOutcome(a *agent.Agent, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if a.Inspector.Snapshot().Status != "" {
			return true
		}

		time.Sleep(25 * time.Millisecond)
	}

	return false
}
