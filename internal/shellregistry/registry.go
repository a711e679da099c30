//go:build unix

// Package shellregistry owns every PTY-backed shell the agent manages,
// tracking each one's output ring, inferred working directory, and derived
// status (idle/active/executing) for the next heartbeat.
package shellregistry

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"sync"
	"time"

	"github.com/agentplus/hbagent/internal/ackledger"
	"github.com/agentplus/hbagent/internal/errors"
	"github.com/agentplus/hbagent/internal/outputring"
	"github.com/agentplus/hbagent/internal/protocol"
	"github.com/agentplus/hbagent/internal/shell"
)

// activeWindow is how recently a shell must have produced output to be
// reported as "active" rather than "idle".
const activeWindow = 5 * time.Second

// commandResponseDelay is the scheduling hint nudged after a command is
// written, giving the shell a short window to produce output before the
// next heartbeat carries it.
const commandResponseDelay = 1 * time.Second

// Scheduler is the subset of the scheduler's API the registry needs to
// nudge on shell lifecycle events.
type Scheduler interface {
	Schedule(delay time.Duration)
}

type entry struct {
	sh             *shell.Shell
	ring           *outputring.Ring
	cwd            string
	commandPending bool
	expectPWD      bool
	lastOutputAt   time.Time
}

// Registry holds every live managed shell.
type Registry struct {
	mu     sync.Mutex
	shells map[string]*entry

	ledger *ackledger.Ledger
	sched  Scheduler

	initCwd  string
	identity string // "user@host"
}

// New returns an empty Registry wired to ledger and sched.
func New(ledger *ackledger.Ledger, sched Scheduler) *Registry {
	return &Registry{
		shells:   map[string]*entry{},
		ledger:   ledger,
		sched:    sched,
		initCwd:  initialCwd(),
		identity: identity(),
	}
}

func initialCwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "/"
	}

	return wd
}

func identity() string {
	username := "user"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}

	return username + "@" + host
}

// Spawn starts a new shell, registers it, and publishes it as the ledger's
// pending creation.
func (r *Registry) Spawn(ctx context.Context) (string, error) {
	sh, err := shell.Spawn(ctx, "")
	if err != nil {
		return "", errors.SpawnError(err)
	}

	id := strconv.Itoa(sh.PID())

	r.mu.Lock()
	r.shells[id] = &entry{
		sh:           sh,
		ring:         outputring.New(),
		cwd:          r.initCwd,
		lastOutputAt: time.Now(),
	}
	r.mu.Unlock()

	sh.Start(
		func(data []byte) { r.handleOutput(id, data) },
		func(shell.ExitInfo) { r.handleExit(id) },
	)

	r.ledger.SetCreated(id)
	r.sched.Schedule(0)

	return id, nil
}

// Write sends text (already normalized by the caller) to the named shell
// and marks a command as pending a response.
func (r *Registry) Write(id, text string) error {
	r.mu.Lock()
	e, ok := r.shells[id]
	r.mu.Unlock()

	if !ok {
		return errors.UnknownShell(id)
	}

	if _, err := e.sh.Write([]byte(text)); err != nil {
		return errors.WriteError(id, err)
	}

	r.mu.Lock()
	e.commandPending = true
	e.expectPWD = true
	r.mu.Unlock()

	r.sched.Schedule(commandResponseDelay)

	return nil
}

// Kill terminates the named shell and retires it from the registry
// immediately, without waiting for the exit callback.
func (r *Registry) Kill(id string) bool {
	r.mu.Lock()
	e, ok := r.shells[id]
	if ok {
		delete(r.shells, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	e.sh.Kill()
	r.ledger.AddDeath(id)
	r.sched.Schedule(0)

	return true
}

// Has reports whether id is currently tracked.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.shells[id]

	return ok
}

// Len reports how many shells are currently tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.shells)
}

// ConfirmCommandExecuted clears the pending-command flag for every id
// present in the registry; ids absent or already clear are skipped.
func (r *Registry) ConfirmCommandExecuted(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if e, ok := r.shells[id]; ok {
			e.commandPending = false
		}
	}
}

// ClearRings empties the output ring for every id present in the registry.
func (r *Registry) ClearRings(ids []string) {
	r.mu.Lock()
	entries := make([]*outputring.Ring, 0, len(ids))

	for _, id := range ids {
		if e, ok := r.shells[id]; ok {
			entries = append(entries, e.ring)
		}
	}
	r.mu.Unlock()

	for _, ring := range entries {
		ring.Clear()
	}
}

func (r *Registry) handleOutput(id string, data []byte) {
	r.mu.Lock()
	e, ok := r.shells[id]
	r.mu.Unlock()

	if !ok {
		return
	}

	r.mu.Lock()
	e.lastOutputAt = time.Now()
	expect := e.expectPWD
	r.mu.Unlock()

	if expect {
		if cwd, elided := extractCwd(data); cwd != "" {
			r.mu.Lock()
			e.cwd = cwd
			e.expectPWD = false
			r.mu.Unlock()

			data = elided
		}
	}

	e.ring.Append(data)
}

func (r *Registry) handleExit(id string) {
	r.mu.Lock()
	_, ok := r.shells[id]
	delete(r.shells, id)
	r.mu.Unlock()

	if !ok {
		// Already retired by an explicit Kill; don't double-report death.
		return
	}

	r.ledger.AddDeath(id)
	r.sched.Schedule(0)
}

// ShellSnapshot is a point-in-time view of one managed shell, shaped for
// the outbound heartbeat's process_output entries.
type ShellSnapshot struct {
	ID                 string
	RingContents       string
	CwdPromptString    string
	CommandPendingFlag int
	DerivedState       string
}

// Snapshot returns a consistent view of every live shell.
func (r *Registry) Snapshot() []ShellSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	out := make([]ShellSnapshot, 0, len(r.shells))

	for id, e := range r.shells {
		pending := 0
		if e.commandPending {
			pending = 1
		}

		out = append(out, ShellSnapshot{
			ID:                 id,
			RingContents:       e.ring.Read(),
			CwdPromptString:    fmt.Sprintf("%s:%s# ", r.identity, e.cwd),
			CommandPendingFlag: pending,
			DerivedState:       derivedState(e, now),
		})
	}

	return out
}

func derivedState(e *entry, now time.Time) string {
	switch {
	case e.commandPending:
		return protocol.StatusExecuting
	case now.Sub(e.lastOutputAt) <= activeWindow && e.ring.Len() > 0:
		return protocol.StatusActive
	default:
		return protocol.StatusIdle
	}
}
