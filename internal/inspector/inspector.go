//go:build unix

// Package inspector exposes a read-only view of the running control loop
// and performs best-effort shutdown of every managed shell on termination.
package inspector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/agentplus/hbagent/internal/ackledger"
	"github.com/agentplus/hbagent/internal/heartbeat"
	"github.com/agentplus/hbagent/internal/protocol"
	"github.com/agentplus/hbagent/internal/shellregistry"
)

// Snapshot is the point-in-time view an operator or `agent status`-style
// consumer reads.
type Snapshot struct {
	Status           heartbeat.Status
	LastSent         time.Time
	Response         *protocol.HeartbeatResponse
	Err              error
	Processes        []shellregistry.ShellSnapshot
	PendingCallbacks ackledger.Snapshot
}

// outcomeSource is the subset of *heartbeat.Engine the inspector reads.
type outcomeSource interface {
	Snapshot() heartbeat.Outcome
}

// Inspector reads the control loop's live state without mutating it,
// except during Shutdown.
type Inspector struct {
	registry *shellregistry.Registry
	ledger   *ackledger.Ledger
	engine   outcomeSource
	logger   *slog.Logger
}

// New returns an Inspector reading from registry, ledger, and engine.
func New(registry *shellregistry.Registry, ledger *ackledger.Ledger, engine outcomeSource, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}

	return &Inspector{registry: registry, ledger: ledger, engine: engine, logger: logger}
}

// Snapshot returns a consistent, read-only view of the control loop.
func (i *Inspector) Snapshot() Snapshot {
	outcome := i.engine.Snapshot()

	return Snapshot{
		Status:           outcome.Status,
		LastSent:         outcome.LastSent,
		Response:         outcome.Response,
		Err:              outcome.Err,
		Processes:        i.registry.Snapshot(),
		PendingCallbacks: i.ledger.Snapshot(),
	}
}

// StatusLine renders a single, fixed-width summary line: heartbeat status,
// managed shell count, pending ack count, and the working directory of the
// last shell in Processes (the registry snapshot's order, which is not
// defined, so which shell that is is not fixed). Truncation is cell-aware, since CwdPromptString
// can contain wide (CJK, emoji) runes that a byte- or rune-count truncation
// would either cut mid-character or under-fill.
func (s Snapshot) StatusLine(width int) string {
	status := string(s.Status)
	if status == "" {
		status = "pending"
	}

	cwd := ""
	if n := len(s.Processes); n > 0 {
		cwd = s.Processes[n-1].CwdPromptString
	}

	pending := len(s.PendingCallbacks.ProcessDeath)
	if s.PendingCallbacks.ProcessCreated != "" {
		pending++
	}

	line := fmt.Sprintf("[%s] shells=%d pending_acks=%d cwd=%s", status, len(s.Processes), pending, cwd)

	if runewidth.StringWidth(line) <= width {
		return line
	}

	return runewidth.Truncate(line, width, "…")
}

// Shutdown kills every managed shell concurrently, best effort. Each Kill
// escalates SIGTERM to SIGKILL on its own shutdownGrace timer, so killing
// shells one at a time would serialize those waits; killing them in
// parallel bounds Shutdown's total cost to the slowest shell instead of
// the sum of all of them. It returns once every kill has been attempted or
// ctx is done, whichever comes first.
func (i *Inspector) Shutdown(ctx context.Context) {
	procs := i.registry.Snapshot()

	done := make(chan struct{})

	go func() {
		var wg sync.WaitGroup

		for _, p := range procs {
			wg.Add(1)

			go func(id string) {
				defer wg.Done()

				if !i.registry.Kill(id) {
					i.logger.Warn("shutdown kill skipped, shell already gone",
						slog.String("event.type", "agent.shutdown.kill"),
						slog.String("shell.id", id),
					)
				}
			}(p.ID)
		}

		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		i.logger.Warn("shutdown deadline reached before every shell was confirmed killed",
			slog.String("event.type", "agent.shutdown.timeout"),
		)
	}
}
