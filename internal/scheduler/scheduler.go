// Package scheduler holds at most one pending timer and decides when the
// next heartbeat attempt fires, adapting the delay to whether any shells
// are currently registered.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RetryBackoff is how long the scheduler waits before retrying after a
// timer fires while a heartbeat or task batch is still in progress.
const RetryBackoff = 1000 * time.Millisecond

// RegistrySize reports whether the registry currently holds any shells,
// which drives the idle/busy default delay.
type RegistrySize interface {
	Len() int
}

// Sender performs the heartbeat send the scheduler's timer triggers.
type Sender interface {
	InProgress() bool
	SendOnce(ctx context.Context)
}

// Scheduler arms a single re-used timer for the next heartbeat attempt.
type Scheduler struct {
	mu    sync.Mutex
	timer *time.Timer

	ctx      context.Context
	sender   Sender
	registry RegistrySize
	logger   *slog.Logger

	idleInterval time.Duration
	busyInterval time.Duration
}

// New returns a Scheduler that calls sender.SendOnce under ctx whenever its
// timer fires and neither a heartbeat nor a task batch is in progress.
func New(ctx context.Context, sender Sender, registry RegistrySize, idleInterval, busyInterval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		ctx:          ctx,
		sender:       sender,
		registry:     registry,
		logger:       logger,
		idleInterval: idleInterval,
		busyInterval: busyInterval,
	}
}

// Schedule cancels any pending timer and arms a new one. delay <= 0 means
// "no delay supplied" — the adaptive rule picks busyInterval if the
// registry holds any shells, idleInterval otherwise.
func (s *Scheduler) Schedule(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}

	reason := "explicit"

	if delay <= 0 {
		if s.registry.Len() > 0 {
			delay, reason = s.busyInterval, "busy"
		} else {
			delay, reason = s.idleInterval, "idle"
		}
	}

	s.logger.Debug("heartbeat rescheduled",
		slog.String("event.type", "scheduler.reschedule"),
		slog.Duration("scheduler.delay", delay),
		slog.String("scheduler.reason", reason),
	)

	s.timer = time.AfterFunc(delay, s.fire)
}

func (s *Scheduler) fire() {
	if s.sender.InProgress() {
		s.Schedule(RetryBackoff)
		return
	}

	s.sender.SendOnce(s.ctx)
}
