// Package kernel supervises the lifecycle of one kernel subprocess per
// session: spawn, readiness handshake, interrupt, and terminate.
//
// Grounded in the teacher's host-mode process handling
// (environment/environment.go's exec.CommandContext usage and its
// KillBackground SIGTERM-then-SIGKILL fallback); the circuit breaker
// around repeated launch failures is new wiring pulled from the retrieval
// pack (see DESIGN.md).
package kernel

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/sony/gobreaker"

	"github.com/marimo-team/marimo-lsp-go/internal/ipc"
)

// terminateGrace is the window between a graceful terminate signal and the
// force-kill fallback, per spec.md §4.B ("~2 s").
const terminateGrace = 2 * time.Second

// readinessToken is the exact line the kernel subprocess writes to stdout
// once it has connected every IPC channel.
const readinessToken = "KERNEL_READY"

// readinessTimeout bounds how long Start waits for readinessToken before
// declaring the launch a failure.
const readinessTimeout = 15 * time.Second

var (
	// ErrAlreadyRunning is returned by Start when called on a supervisor
	// that already owns a live child process.
	ErrAlreadyRunning = errors.New("kernel: supervisor already running")
	// ErrNotRunning is returned by Interrupt when no child is alive.
	ErrNotRunning = errors.New("kernel: no running kernel")
)

// LaunchError wraps a failed Start with the stderr tail the kernel emitted
// before giving up, per spec.md §7 ("Kernel launch failure ... Raise a
// launch error including stderr tail").
type LaunchError struct {
	Err        error
	StderrTail string
}

func (e *LaunchError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("kernel launch failed: %v", e.Err)
	}
	return fmt.Sprintf("kernel launch failed: %v\nstderr:\n%s", e.Err, e.StderrTail)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Supervisor owns at most one kernel subprocess at a time for one session.
// Replacing the interpreter requires the caller to close the owning
// session and create a new one (spec.md §4.B invariant).
type Supervisor struct {
	executable string
	entryArgs  []string
	log        *slog.Logger
	breaker    *gobreaker.CircuitBreaker

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	started  bool
	waitDone chan struct{}
	waitErr  error
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithEntryArgs overrides the default kernel-entry-module arguments passed
// to the interpreter (e.g. ["-m", "marimo_lsp.kernel_entry"] in spirit).
func WithEntryArgs(args ...string) Option {
	return func(s *Supervisor) { s.entryArgs = args }
}

// WithLogger injects a logger; defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// New constructs a Supervisor for one (notebook, interpreter) pair. name
// labels the breaker instance in logs. The breaker's failure count
// belongs to this Supervisor alone: it trips after three consecutive
// failed Start calls on it, and a Supervisor built by a later New call
// starts with a fresh count whatever name it is given.
func New(name, executable string, opts ...Option) *Supervisor {
	s := &Supervisor{
		executable: executable,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kernel-launch:" + name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			s.log.Warn("kernel launch breaker state change", "breaker", cbName, "from", from, "to", to)
		},
	})
	return s
}

// Start spawns the interpreter, writes ConnectionInfo then Args as two JSON
// lines on stdin, closes stdin, and waits (bounded) for the readiness
// token on stdout. Repeated failures for this supervisor open the circuit
// breaker, turning subsequent Start calls into an immediate
// gobreaker.ErrOpenState rather than another multi-second spawn attempt —
// this guards caller-issued run/create calls only; Start itself never
// retries internally.
func (s *Supervisor) Start(ctx context.Context, info ipc.ConnectionInfo, args Args) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.mu.Unlock()

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.start(ctx, info, args)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("kernel launch circuit open, not retrying: %w", err)
		}
		return err
	}
	return nil
}

func (s *Supervisor) start(ctx context.Context, info ipc.ConnectionInfo, args Args) error {
	entryArgs := s.entryArgs
	if len(entryArgs) == 0 {
		entryArgs = []string{"-m", "marimo_lsp.kernel_entry"}
	}
	cmd := exec.CommandContext(ctx, s.executable, entryArgs...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &LaunchError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &LaunchError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	var stderrBuf bytes.Buffer
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &LaunchError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return &LaunchError{Err: fmt.Errorf("spawn: %w", err)}
	}

	go s.drainStderr(stderr, &stderrBuf)

	DumpLaunch(s.log, info, args)

	infoLine, err := ipc.EncodeConnectionInfo(info)
	if err != nil {
		_ = cmd.Process.Kill()
		return &LaunchError{Err: fmt.Errorf("encode connection info: %w", err)}
	}
	argsLine, err := encodeArgs(args)
	if err != nil {
		_ = cmd.Process.Kill()
		return &LaunchError{Err: fmt.Errorf("encode kernel args: %w", err)}
	}

	if _, err := stdin.Write(append(infoLine, '\n')); err != nil {
		_ = cmd.Process.Kill()
		return &LaunchError{Err: fmt.Errorf("write connection info: %w", err), StderrTail: stderrBuf.String()}
	}
	if _, err := stdin.Write(append(argsLine, '\n')); err != nil {
		_ = cmd.Process.Kill()
		return &LaunchError{Err: fmt.Errorf("write kernel args: %w", err), StderrTail: stderrBuf.String()}
	}
	if err := stdin.Close(); err != nil {
		s.log.Warn("kernel stdin close", "error", err)
	}

	ready := make(chan error, 1)
	go func() {
		ready <- waitForReadiness(stdout)
	}()

	waitDone := make(chan struct{})
	exitedEarly := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.waitErr = err
		s.started = false
		s.mu.Unlock()
		close(waitDone)
		select {
		case exitedEarly <- err:
		default:
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			_ = cmd.Process.Kill()
			<-waitDone
			return &LaunchError{Err: err, StderrTail: stderrBuf.String()}
		}
	case err := <-exitedEarly:
		return &LaunchError{Err: fmt.Errorf("kernel exited before readiness: %w", err), StderrTail: stderrBuf.String()}
	case <-time.After(readinessTimeout):
		_ = cmd.Process.Kill()
		<-waitDone
		return &LaunchError{Err: errors.New("timed out waiting for kernel readiness"), StderrTail: stderrBuf.String()}
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.started = true
	s.waitDone = waitDone
	s.mu.Unlock()

	go func() {
		<-waitDone
		s.mu.Lock()
		err := s.waitErr
		s.mu.Unlock()
		if err != nil {
			s.log.Info("kernel exited", "error", err)
		} else {
			s.log.Info("kernel exited cleanly")
		}
	}()

	return nil
}

func (s *Supervisor) drainStderr(r io.Reader, buf *bytes.Buffer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		s.log.Debug("kernel stderr", "line", line)
		buf.WriteString(line)
		buf.WriteByte('\n')
		if buf.Len() > 64*1024 {
			buf.Truncate(64 * 1024)
		}
	}
}

func waitForReadiness(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading readiness: %w", err)
		}
		return errors.New("kernel closed stdout before readiness")
	}
	line := scanner.Text()
	if line != readinessToken {
		return fmt.Errorf("unexpected readiness line: %q", line)
	}
	return nil
}

// Interrupt sends a best-effort interrupt to the running kernel. It
// returns immediately; whether the interrupted cell actually halts is the
// kernel's concern (spec.md §5).
func (s *Supervisor) Interrupt(win32Interrupt ipc.Queue[struct{}]) error {
	s.mu.Lock()
	cmd := s.cmd
	started := s.started
	s.mu.Unlock()
	if !started || cmd == nil || cmd.Process == nil {
		return ErrNotRunning
	}
	if runtime.GOOS == "windows" {
		if win32Interrupt == nil {
			return errors.New("kernel: no win32 interrupt channel configured")
		}
		return win32Interrupt.Put(struct{}{})
	}
	return cmd.Process.Signal(syscall.SIGINT)
}

// Terminate requests a graceful exit, then force-kills after
// terminateGrace. Safe to call on an already-exited process.
func (s *Supervisor) Terminate() error {
	s.mu.Lock()
	cmd := s.cmd
	started := s.started
	done := s.waitDone
	s.mu.Unlock()
	if !started || cmd == nil || cmd.Process == nil || done == nil {
		return nil
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-done:
		return nil
	case <-time.After(terminateGrace):
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("force-kill: %w", err)
		}
		<-done
		return nil
	}
}

// IsAlive reports whether the child process is currently running.
func (s *Supervisor) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// PID returns the child's process id, or 0 if no process is running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}
