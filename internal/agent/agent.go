//go:build unix

// Package agent wires the control loop's components together: the shell
// registry, ack ledger, task executor, heartbeat engine, scheduler, and
// inspector. It is the Go equivalent of the teacher's harness.Run entry
// point, generalized from a job-claiming TUI harness to a headless
// heartbeat daemon.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentplus/hbagent/internal/ackledger"
	"github.com/agentplus/hbagent/internal/heartbeat"
	"github.com/agentplus/hbagent/internal/inspector"
	"github.com/agentplus/hbagent/internal/scheduler"
	"github.com/agentplus/hbagent/internal/shellregistry"
	"github.com/agentplus/hbagent/internal/taskexec"
	"github.com/agentplus/hbagent/internal/telemetry"
)

// Config holds everything needed to start the control loop.
type Config struct {
	Token       string
	ServerURL   string
	HTTPTimeout time.Duration

	IdleInterval time.Duration
	BusyInterval time.Duration

	Telemetry telemetry.Provider
	Logger    *slog.Logger
}

// Agent owns every live component of the control loop.
type Agent struct {
	Registry  *shellregistry.Registry
	Ledger    *ackledger.Ledger
	Executor  *taskexec.Executor
	Engine    *heartbeat.Engine
	Scheduler *scheduler.Scheduler
	Inspector *inspector.Inspector
}

// New constructs and wires every control-loop component but does not start
// the scheduler; call Start once ctx is ready to drive the loop's timers.
func New(ctx context.Context, cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ledger := ackledger.New()

	// The scheduler needs the registry (to choose idle/busy delay) and the
	// engine (to invoke SendOnce); the registry needs the scheduler (to
	// nudge it on spawn/write/kill). Break the cycle by handing the registry
	// and engine a forwarding shim, then building the real scheduler once the
	// engine exists and binding it to the shim.
	sched := &schedulerHandle{}

	registry := shellregistry.New(ledger, sched)
	executor := taskexec.New(registry, ledger, logger)
	engine := heartbeat.New(cfg.Token, cfg.ServerURL, cfg.HTTPTimeout, registry, ledger, executor, cfg.Telemetry, sched, logger)

	real := scheduler.New(ctx, engine, registry, cfg.IdleInterval, cfg.BusyInterval, logger)
	sched.bind(real)

	insp := inspector.New(registry, ledger, engine, logger)

	return &Agent{
		Registry:  registry,
		Ledger:    ledger,
		Executor:  executor,
		Engine:    engine,
		Scheduler: real,
		Inspector: insp,
	}
}

// Start arms the first heartbeat timer, using the idle/busy default delay.
func (a *Agent) Start() {
	a.Scheduler.Schedule(0)
}

// Shutdown kills every managed shell, best effort.
func (a *Agent) Shutdown(ctx context.Context) {
	a.Inspector.Shutdown(ctx)
}

// schedulerHandle forwards Schedule calls to a *scheduler.Scheduler that
// doesn't exist yet at the time the registry and engine are constructed.
// Calls made before bind are dropped; New binds it before returning, so
// only calls made during construction could be.
type schedulerHandle struct {
	real *scheduler.Scheduler
}

func (h *schedulerHandle) bind(real *scheduler.Scheduler) {
	h.real = real
}

func (h *schedulerHandle) Schedule(delay time.Duration) {
	if h.real == nil {
		return
	}

	h.real.Schedule(delay)
}
