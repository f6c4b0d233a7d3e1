package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/marimo-team/marimo-lsp-go/internal/ipc"
	"github.com/marimo-team/marimo-lsp-go/internal/kernel"
	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

// Consumer receives every kernel-emitted operation for one notebook; the
// dispatch surface wires this to a `marimo/operation` notification
// (spec.md §3's Consumer).
type Consumer func(notebookID types.NotebookId, op ipc.OperationMessage)

// Session binds exactly one notebook to one kernel and routes messages
// both ways (spec.md §4.D).
type Session struct {
	NotebookID       types.NotebookId
	InitializationID string
	Interpreter      string

	log        *slog.Logger
	supervisor *kernel.Supervisor
	endpoint   *ipc.HostEndpoint

	control      *ipc.PushQueue[ControlRequest]
	setUIElement *ipc.PushQueue[map[string]any]
	completion   *ipc.PushQueue[map[string]any]
	input        *ipc.PushQueue[string]
	streamPull   *ipc.PullQueue[ipc.OperationMessage]
	pump         *ipc.StreamPump

	mu     sync.Mutex
	view   *View
	closed bool
}

// New constructs a Session: binds the transport, spawns the kernel, and
// starts the stream pump. consume is invoked (off the pump's own
// goroutine) for every kernel-emitted message.
func New(ctx context.Context, notebookID types.NotebookId, interpreter string, view *View, args kernel.Args, consume Consumer, log *slog.Logger, kopts ...kernel.Option) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}

	endpoint, err := ipc.NewHostEndpoint(false)
	if err != nil {
		return nil, fmt.Errorf("session %s: create transport: %w", notebookID, err)
	}

	opts := append([]kernel.Option{kernel.WithLogger(log)}, kopts...)
	sup := kernel.New(string(notebookID), interpreter, opts...)
	info := endpoint.ConnectionInfo()

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- endpoint.Accept() }()

	if err := sup.Start(ctx, info, args); err != nil {
		endpoint.Close()
		return nil, fmt.Errorf("session %s: start kernel: %w", notebookID, err)
	}
	if err := <-acceptErr; err != nil {
		sup.Terminate()
		endpoint.Close()
		return nil, fmt.Errorf("session %s: accept channels: %w", notebookID, err)
	}

	s := &Session{
		NotebookID:       notebookID,
		InitializationID: uuid.NewString(),
		Interpreter:      interpreter,
		log:              log,
		supervisor:       sup,
		endpoint:         endpoint,
		control:          ipc.NewPushQueue[ControlRequest](endpoint.ControlConn()),
		setUIElement:     ipc.NewPushQueue[map[string]any](endpoint.SetUIElementConn()),
		completion:       ipc.NewPushQueue[map[string]any](endpoint.CompletionConn()),
		input:            ipc.NewPushQueue[string](endpoint.InputConn()),
		streamPull:       ipc.NewPullQueue[ipc.OperationMessage](endpoint.StreamConn(), 256),
		view:             view,
	}
	s.pump = ipc.NewStreamPump(s.streamPull, log, 256)
	s.pump.Start(func(op ipc.OperationMessage) {
		if consume != nil {
			consume(notebookID, op)
		}
	})

	return s, nil
}

// PutControl enqueues a control request. Non-blocking; backpressure is
// the channel's own (spec.md §4.D).
func (s *Session) PutControl(req ControlRequest) error {
	return s.control.Put(req)
}

// PutSetUIElement enqueues a UI element value update on its own dedicated
// channel, separate from control (spec.md §4.A: set_ui_element is its own
// logical channel, not a control-channel op).
func (s *Session) PutSetUIElement(objectID string, value any, token string) error {
	return s.setUIElement.Put(map[string]any{
		"object_id": objectID,
		"value":     value,
		"token":     token,
	})
}

// The completion and input channels are bound on every session (spec.md
// §4.A lists all five as required transport endpoints, and the kernel
// subprocess always connects reciprocal sockets for each), but nothing on
// the Go side currently sends on them: the original's own server.py never
// drives its completion_queue/input_queue either (the LSP completion
// surface only offers the @app.cell snippet, and no marimo.api method
// forwards interactive input() requests). Their queues are still
// constructed and closed below so the transport contract holds; there is
// no dead wrapper method here to call.

// TryInterrupt delegates to the Supervisor. Best-effort, returns
// immediately (spec.md §4.D, §5).
func (s *Session) TryInterrupt() error {
	return s.supervisor.Interrupt(nil)
}

// Instantiate enqueues a "create notebook" control command synthesised
// from the current View. Callers (the Registry) must ensure this runs at
// most once per session.
func (s *Session) Instantiate() error {
	s.mu.Lock()
	view := s.view
	s.mu.Unlock()
	return s.PutControl(createRequest(view))
}

// Refresh replaces the session's notebook view, used after
// didOpen/didChange/didSave so the next Instantiate (or a future
// re-instantiate on interpreter switch) reflects current cell text.
func (s *Session) Refresh(view *View) {
	s.mu.Lock()
	s.view = view
	s.mu.Unlock()
}

// View returns the session's current notebook view.
func (s *Session) View() *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// IsAlive reports whether the kernel subprocess is currently running.
func (s *Session) IsAlive() bool {
	return s.supervisor.IsAlive()
}

// PID returns the kernel subprocess's PID, or 0 if not running.
func (s *Session) PID() int {
	return s.supervisor.PID()
}

// Close is idempotent: stops the pump, terminates the supervisor, closes
// the transport (spec.md §4.D).
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.pump.Stop()
	if err := s.supervisor.Terminate(); err != nil {
		s.log.Warn("session close: terminate kernel", "notebook", s.NotebookID, "error", err)
	}
	if err := s.control.Close(); err != nil {
		s.log.Debug("session close: control queue", "error", err)
	}
	if err := s.setUIElement.Close(); err != nil {
		s.log.Debug("session close: set-ui-element queue", "error", err)
	}
	if err := s.completion.Close(); err != nil {
		s.log.Debug("session close: completion queue", "error", err)
	}
	if err := s.input.Close(); err != nil {
		s.log.Debug("session close: input queue", "error", err)
	}
	if err := s.streamPull.Close(); err != nil {
		s.log.Debug("session close: stream queue", "error", err)
	}
	return s.endpoint.Close()
}
