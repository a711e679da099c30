// Package taskexec applies one server-supplied task batch to the shell
// registry in the fixed order the protocol requires: confirm deaths,
// spawn, run commands, kill, then apply execution acks.
package taskexec

import (
	"context"
	"log/slog"

	"github.com/agentplus/hbagent/internal/protocol"
)

// Registry is the subset of *shellregistry.Registry the executor needs.
type Registry interface {
	Has(id string) bool
	Spawn(ctx context.Context) (string, error)
	Write(id, text string) error
	Kill(id string) bool
	ConfirmCommandExecuted(ids []string)
}

// Ledger is the subset of *ackledger.Ledger the executor needs.
type Ledger interface {
	AddDeath(id string)
	HasDeath(id string) bool
}

// Executor applies one task batch against a Registry and Ledger.
type Executor struct {
	registry Registry
	ledger   Ledger
	logger   *slog.Logger
}

// New returns an Executor wired to registry and ledger.
func New(registry Registry, ledger Ledger, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{registry: registry, ledger: ledger, logger: logger}
}

// Result summarizes what Apply did, for logging and tracing.
type Result struct {
	DeathConfirmed int
	Spawned        bool
	CommandsRun    int
	Killed         int
	AcksApplied    int
}

// Apply runs the five-step order against tasks. confirmed is the
// command_executed_confirmed list from the same response that carried
// tasks; it is applied last, after this batch's commands, so a shell that
// is both written to here and listed in confirmed ends the batch with its
// pending-response flag cleared.
func (x *Executor) Apply(ctx context.Context, tasks protocol.Tasks, confirmed []string) Result {
	var res Result

	for _, id := range tasks.ConfirmProcessDeath {
		if x.registry.Has(id) {
			continue
		}

		if !x.ledger.HasDeath(id) {
			x.ledger.AddDeath(id)
		}

		res.DeathConfirmed++
	}

	if tasks.IfRequireNewProcess == 1 {
		if _, err := x.registry.Spawn(ctx); err != nil {
			x.logger.Error("spawn failed",
				slog.String("event.type", "taskexec.spawn.error"),
				slog.String("error", err.Error()),
			)
		} else {
			res.Spawned = true
		}
	}

	for _, cmd := range tasks.Command {
		text := normalizeCommand(cmd.Command)

		if err := x.registry.Write(cmd.PID, text); err != nil {
			x.logger.Error("command write failed",
				slog.String("event.type", "taskexec.command.error"),
				slog.String("shell.id", cmd.PID),
				slog.String("error", err.Error()),
			)

			continue
		}

		res.CommandsRun++
	}

	for _, id := range tasks.KillProcess {
		if x.registry.Kill(id) {
			res.Killed++
		}
	}

	if len(confirmed) > 0 {
		x.registry.ConfirmCommandExecuted(confirmed)
		res.AcksApplied = len(confirmed)
	}

	return res
}
