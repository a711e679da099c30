//go:build unix

// Package heartbeat implements the control loop's send_once: building the
// outbound payload from the shell registry and ack ledger, posting it to
// the server, and handing the response's tasks to the Task Executor.
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agentplus/hbagent/internal/ackledger"
	hberrors "github.com/agentplus/hbagent/internal/errors"
	"github.com/agentplus/hbagent/internal/observability"
	"github.com/agentplus/hbagent/internal/protocol"
	"github.com/agentplus/hbagent/internal/shellregistry"
	"github.com/agentplus/hbagent/internal/taskexec"
	"github.com/agentplus/hbagent/internal/telemetry"
)

// tracerName is the tracer every heartbeat and task-batch span is recorded
// under.
const tracerName = "agentplus/hbagent"

// Scheduler is the subset of *scheduler.Scheduler the engine nudges after
// every send attempt.
type Scheduler interface {
	Schedule(delay time.Duration)
}

// Registry is the subset of *shellregistry.Registry the engine reads and
// acknowledges against.
type Registry interface {
	Snapshot() []shellregistry.ShellSnapshot
	ConfirmCommandExecuted(ids []string)
	ClearRings(ids []string)
}

// Ledger is the subset of *ackledger.Ledger the engine reads and clears.
type Ledger interface {
	Snapshot() ackledger.Snapshot
	Clear()
}

// TaskApplier is the subset of *taskexec.Executor the engine hands
// responses to.
type TaskApplier interface {
	Apply(ctx context.Context, tasks protocol.Tasks, confirmed []string) taskexec.Result
}

// Status is the outcome of the most recent heartbeat attempt.
type Status string

// Possible Status values.
const (
	StatusUnknown Status = ""
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Outcome is the last recorded result of SendOnce, read by the Inspector.
type Outcome struct {
	Status   Status
	LastSent time.Time
	Response *protocol.HeartbeatResponse
	Err      error
}

// Engine sends heartbeats and dispatches their task batches.
type Engine struct {
	mu                  sync.Mutex
	heartbeatInProgress bool
	tasksInProgress     bool

	token      string
	serverURL  string
	httpClient *http.Client

	registry  Registry
	ledger    Ledger
	executor  TaskApplier
	telemetry telemetry.Provider
	scheduler Scheduler
	logger    *slog.Logger

	outcomeMu sync.Mutex
	outcome   Outcome
}

// New returns an Engine wired to every collaborator SendOnce needs.
func New(token, serverURL string, httpTimeout time.Duration, registry Registry, ledger Ledger, executor TaskApplier, tp telemetry.Provider, sched Scheduler, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if tp == nil {
		tp = telemetry.NoopProvider{}
	}

	return &Engine{
		token:      token,
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: httpTimeout},
		registry:   registry,
		ledger:     ledger,
		executor:   executor,
		telemetry:  tp,
		scheduler:  sched,
		logger:     logger,
	}
}

// InProgress reports whether a heartbeat or task batch is currently
// running, letting the Scheduler decide whether to fire or back off.
func (e *Engine) InProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.heartbeatInProgress || e.tasksInProgress
}

// Snapshot returns the last recorded outcome for the Inspector.
func (e *Engine) Snapshot() Outcome {
	e.outcomeMu.Lock()
	defer e.outcomeMu.Unlock()

	return e.outcome
}

func (e *Engine) recordOutcome(o Outcome) {
	e.outcomeMu.Lock()
	e.outcome = o
	e.outcomeMu.Unlock()
}

// SendOnce performs one heartbeat attempt. It returns immediately if
// another attempt is already in progress.
func (e *Engine) SendOnce(ctx context.Context) {
	e.mu.Lock()
	if e.heartbeatInProgress || e.tasksInProgress {
		e.mu.Unlock()
		return
	}
	e.heartbeatInProgress = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.heartbeatInProgress = false
		e.mu.Unlock()
	}()

	if e.token == "" || e.serverURL == "" {
		err := hberrors.NotConfigured()
		e.logger.Warn("heartbeat skipped, not configured",
			slog.String("event.type", "heartbeat.failed"),
			slog.String("error", err.Error()),
		)
		e.recordOutcome(Outcome{Status: StatusFailed, LastSent: time.Now(), Err: err})
		e.scheduler.Schedule(0)

		return
	}

	ctx, span := observability.Tracer(tracerName).Start(ctx, "heartbeat.send")
	defer span.End()

	req := e.buildRequest(ctx)

	resp, httpStatus, postErr := e.post(ctx, req)
	span.SetAttributes(attribute.Int("http.status_code", httpStatus))

	if postErr != nil {
		var classified error
		if httpStatus == 0 {
			classified = hberrors.TransportError(postErr)
		} else {
			classified = hberrors.BadResponse(postErr)
		}

		e.logger.Error("heartbeat failed",
			slog.String("event.type", "heartbeat.failed"),
			slog.Int("http.status_code", httpStatus),
			slog.String("error", classified.Error()),
		)
		span.RecordError(classified)
		span.SetStatus(codes.Error, "failed")
		e.recordOutcome(Outcome{Status: StatusFailed, LastSent: time.Now(), Err: classified})
		e.scheduler.Schedule(0)

		return
	}

	if resp.StatusCode != 1 {
		err := hberrors.BadResponse(fmt.Errorf("statusCode=%d", resp.StatusCode))

		e.logger.Warn("heartbeat response rejected",
			slog.String("event.type", "heartbeat.failed"),
			slog.Int("response.status_code", resp.StatusCode),
		)
		span.SetStatus(codes.Error, "bad_response")
		e.recordOutcome(Outcome{Status: StatusFailed, LastSent: time.Now(), Response: resp, Err: err})
		e.scheduler.Schedule(0)

		return
	}

	e.registry.ConfirmCommandExecuted(resp.Callback.CommandExecutedConfirmed)
	e.registry.ClearRings(resp.Callback.ProcessOutputUpdateSucceed)
	e.ledger.Clear()

	e.mu.Lock()
	e.tasksInProgress = true
	e.mu.Unlock()

	taskCtx, taskSpan := observability.Tracer(tracerName).Start(ctx, "taskexec.apply")
	result := e.executor.Apply(taskCtx, resp.Tasks, resp.Callback.CommandExecutedConfirmed)
	taskSpan.SetAttributes(
		attribute.Int("taskexec.death_confirmed", result.DeathConfirmed),
		attribute.Bool("taskexec.spawned", result.Spawned),
		attribute.Int("taskexec.commands_run", result.CommandsRun),
		attribute.Int("taskexec.killed", result.Killed),
		attribute.Int("taskexec.acks_applied", result.AcksApplied),
	)
	taskSpan.End()

	e.mu.Lock()
	e.tasksInProgress = false
	e.mu.Unlock()

	span.SetStatus(codes.Ok, "")

	e.logger.Info("heartbeat succeeded",
		slog.String("event.type", "heartbeat.success"),
		slog.Int("response.status_code", resp.StatusCode),
	)
	e.recordOutcome(Outcome{Status: StatusSuccess, LastSent: time.Now(), Response: resp})

	// A command write already nudged the scheduler with a short delay; only
	// fall back to the adaptive default when this batch wrote nothing.
	if result.CommandsRun == 0 {
		e.scheduler.Schedule(0)
	}
}

func (e *Engine) buildRequest(ctx context.Context) protocol.HeartbeatRequest {
	snaps := e.registry.Snapshot()
	outputs := make([]protocol.ProcessOutput, 0, len(snaps))

	for _, s := range snaps {
		outputs = append(outputs, protocol.ProcessOutput{
			PID:               s.ID,
			Temp:              s.RingContents,
			Cwd:               s.CwdPromptString,
			IfCommandExecuted: s.CommandPendingFlag,
			Status:            s.DerivedState,
		})
	}

	ack := e.ledger.Snapshot()

	var created *string
	if ack.ProcessCreated != "" {
		id := ack.ProcessCreated
		created = &id
	}

	info := e.telemetry.Collect(ctx)

	return protocol.HeartbeatRequest{
		CLIToken: e.token,
		SystemInfo: &protocol.SystemInfo{
			OS:     info.OS,
			CPU:    info.CPU,
			Load:   info.Load,
			Memory: info.Memory,
			Disks:  info.Disks,
		},
		ProcessOutput: outputs,
		Callback: protocol.OutboundCallback{
			ProcessDeath:   ack.ProcessDeath,
			ProcessCreated: created,
		},
	}
}

// post sends req and returns the decoded response plus the raw HTTP status
// code (0 if the request never reached the server).
func (e *Engine) post(ctx context.Context, req protocol.HeartbeatRequest) (*protocol.HeartbeatResponse, int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal heartbeat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build heartbeat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, err
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, httpResp.StatusCode, fmt.Errorf("unexpected HTTP status %d", httpResp.StatusCode)
	}

	var decoded protocol.HeartbeatResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("decode heartbeat response: %w", err)
	}

	return &decoded, httpResp.StatusCode, nil
}
