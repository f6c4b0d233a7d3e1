package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/marimo-team/marimo-lsp-go/internal/config"
	"github.com/marimo-team/marimo-lsp-go/internal/kernel"
	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

// Registry is the single map NotebookId -> Session plus the
// per-notebook instantiated flag (spec.md §4.E).
type Registry struct {
	log    *slog.Logger
	ledger *config.PIDLedger

	mu           sync.Mutex
	sessions     map[types.NotebookId]*Session
	instantiated map[types.NotebookId]bool
	order        []types.NotebookId
}

// NewRegistry constructs an empty registry. If ledger is non-nil, its
// ReclaimStale is run once to kill kernels orphaned by a previous crashed
// run of this binary (SPEC_FULL.md's crash-recovery PID ledger).
func NewRegistry(ctx context.Context, log *slog.Logger, ledger *config.PIDLedger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		log:          log,
		ledger:       ledger,
		sessions:     map[types.NotebookId]*Session{},
		instantiated: map[types.NotebookId]bool{},
	}
	if ledger != nil {
		if killed, err := ledger.ReclaimStale(ctx); err != nil {
			log.Warn("registry: reclaim stale kernels", "error", err)
		} else if len(killed) > 0 {
			log.Info("registry: reclaimed orphan kernels from a previous run", "pids", killed)
		}
	}
	return r
}

// Get looks up the session for a notebook, if any.
func (r *Registry) Get(notebookID types.NotebookId) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[notebookID]
	return s, ok
}

// Create binds a fresh Session for notebookID, closing any existing one
// first (spec.md §4.E: "if a session exists, close it first"). Interpreter
// changes are detected by the caller, which compares
// Session.Interpreter before choosing between Get and Create.
func (r *Registry) Create(ctx context.Context, notebookID types.NotebookId, interpreter string, view *View, args kernel.Args, consume Consumer, kopts ...kernel.Option) (*Session, error) {
	r.mu.Lock()
	_, exists := r.sessions[notebookID]
	r.mu.Unlock()
	if exists {
		if err := r.Close(ctx, notebookID); err != nil {
			r.log.Warn("registry: close prior session before recreate", "notebook", notebookID, "error", err)
		}
	}

	s, err := New(ctx, notebookID, interpreter, view, args, consume, r.log, kopts...)
	if err != nil {
		return nil, err
	}

	if r.ledger != nil {
		if err := r.ledger.Add(ctx, s.PID()); err != nil {
			r.log.Warn("registry: record kernel pid", "notebook", notebookID, "error", err)
		}
	}

	r.mu.Lock()
	r.sessions[notebookID] = s
	r.instantiated[notebookID] = false
	r.order = append(r.order, notebookID)
	r.mu.Unlock()

	return s, nil
}

// Instantiate runs Session.Instantiate at most once per notebook,
// guarded by the registry's instantiated flag (spec.md §4.D, §9 open
// question: kept in the Registry to make re-instantiation on interpreter
// change explicit).
func (r *Registry) Instantiate(notebookID types.NotebookId) error {
	r.mu.Lock()
	s, ok := r.sessions[notebookID]
	already := r.instantiated[notebookID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("registry: no session for %s", notebookID)
	}
	if already {
		return nil
	}
	if err := s.Instantiate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.instantiated[notebookID] = true
	r.mu.Unlock()
	return nil
}

// All returns every live session, in insertion order. Used for
// broadcasting cross-session updates (e.g. a configuration change) that
// aren't scoped to a single notebook.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		if s, ok := r.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Close closes and drops a session, clearing its instantiation flag.
// Idempotent.
func (r *Registry) Close(ctx context.Context, notebookID types.NotebookId) error {
	r.mu.Lock()
	s, ok := r.sessions[notebookID]
	if ok {
		delete(r.sessions, notebookID)
		delete(r.instantiated, notebookID)
		r.order = slices.DeleteFunc(r.order, func(id types.NotebookId) bool { return id == notebookID })
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	pid := s.PID()
	err := s.Close()
	if r.ledger != nil && pid != 0 {
		if rerr := r.ledger.Remove(ctx, pid); rerr != nil {
			r.log.Debug("registry: remove pid from ledger", "pid", pid, "error", rerr)
		}
	}
	return err
}

// Shutdown closes every session in insertion order. Registered as a
// process-exit hook so orphan kernels don't survive host-editor restarts
// (spec.md §4.E).
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	order := append([]types.NotebookId(nil), r.order...)
	r.order = nil
	r.mu.Unlock()

	for _, id := range order {
		if err := r.Close(ctx, id); err != nil {
			r.log.Warn("registry shutdown: close session", "notebook", id, "error", err)
		}
	}
}
