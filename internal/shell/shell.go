//go:build unix

// Package shell manages a single PTY-backed shell process: spawn, write,
// merged output streaming, and kill with SIGTERM/SIGKILL escalation.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const (
	defaultCols = 80
	defaultRows = 30

	// shutdownGrace is how long Kill waits after SIGTERM before escalating
	// to SIGKILL, and again after SIGKILL before giving up on the wait.
	shutdownGrace = 3 * time.Second
)

// ExitInfo describes how a shell's process terminated.
type ExitInfo struct {
	ExitCode int
	Signal   string
}

// Shell wraps one PTY-backed process.
type Shell struct {
	mu   sync.Mutex
	ptmx *os.File
	cmd  *exec.Cmd
	pgid int

	exitOnce sync.Once
	done     chan struct{}
}

// Spawn starts shellPath (bash if empty) attached to a
// fixed-size PTY and inheriting the agent's own environment and working
// directory.
func Spawn(ctx context.Context, shellPath string) (*Shell, error) {
	if shellPath == "" {
		shellPath = defaultShellPath()
	}

	cmd := exec.CommandContext(ctx, shellPath) //nolint:gosec // shellPath is either bash or a caller-supplied path
	cmd.Env = os.Environ()

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: defaultRows,
		Cols: defaultCols,
	})
	if err != nil {
		return nil, fmt.Errorf("start pty for %q: %w", shellPath, err)
	}

	sh := &Shell{
		ptmx: ptmx,
		cmd:  cmd,
		done: make(chan struct{}),
	}

	if cmd.Process != nil && cmd.Process.Pid > 0 {
		if pgid, pgErr := unix.Getpgid(cmd.Process.Pid); pgErr == nil {
			sh.pgid = pgid
		}
	}

	return sh, nil
}

// PID returns the shell's process id, or 0 if the process never started.
func (s *Shell) PID() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}

	return s.cmd.Process.Pid
}

// Start launches the background goroutine that reads PTY output and
// reports it through onData, invoking onExit exactly once when the process
// terminates or the PTY closes.
func (s *Shell) Start(onData func([]byte), onExit func(ExitInfo)) {
	go s.readLoop(onData, onExit)
}

func (s *Shell) readLoop(onData func([]byte), onExit func(ExitInfo)) {
	s.mu.Lock()
	ptmx := s.ptmx
	s.mu.Unlock()

	buf := make([]byte, 4096)

	for {
		n, err := ptmx.Read(buf)
		if n > 0 && onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onData(chunk)
		}

		if err != nil {
			break
		}
	}

	s.reportExit(onExit)
}

func (s *Shell) reportExit(onExit func(ExitInfo)) {
	s.exitOnce.Do(func() {
		info := ExitInfo{}

		if s.cmd != nil {
			_ = s.cmd.Wait()

			if ps := s.cmd.ProcessState; ps != nil {
				info.ExitCode = ps.ExitCode()

				if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
					info.Signal = ws.Signal().String()
				}
			}
		}

		close(s.done)

		if onExit != nil {
			onExit(info)
		}
	})
}

// Write sends p to the shell's PTY.
func (s *Shell) Write(p []byte) (int, error) {
	s.mu.Lock()
	ptmx := s.ptmx
	s.mu.Unlock()

	if ptmx == nil {
		return 0, nil
	}

	n, err := ptmx.Write(p)
	if err != nil {
		return n, fmt.Errorf("write to pty: %w", err)
	}

	return n, nil
}

// Kill terminates the shell's process group, escalating from SIGTERM to
// SIGKILL if it doesn't exit within the grace period. It is idempotent and
// safe to call more than once.
func (s *Shell) Kill() {
	s.mu.Lock()
	ptmx := s.ptmx
	cmd := s.cmd
	pgid := s.pgid
	s.ptmx = nil
	s.mu.Unlock()

	if ptmx != nil {
		_ = ptmx.Close()
	}

	if cmd == nil || cmd.Process == nil {
		return
	}

	sendSignal(cmd.Process.Pid, pgid, unix.SIGTERM)

	select {
	case <-s.done:
		return
	case <-time.After(shutdownGrace):
		sendSignal(cmd.Process.Pid, pgid, unix.SIGKILL)

		select {
		case <-s.done:
		case <-time.After(shutdownGrace):
		}
	}
}

func sendSignal(pid, pgid int, sig unix.Signal) {
	if pgid > 0 {
		if err := unix.Kill(-pgid, sig); err == nil || errors.Is(err, unix.ESRCH) {
			return
		}
	}

	if pid <= 0 {
		return
	}

	_ = unix.Kill(pid, sig)
}

func defaultShellPath() string {
	if sh, err := exec.LookPath("bash"); err == nil {
		return sh
	}

	return "/bin/bash"
}
