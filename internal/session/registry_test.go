package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marimo-team/marimo-lsp-go/internal/config"
	"github.com/marimo-team/marimo-lsp-go/internal/ipc"
	"github.com/marimo-team/marimo-lsp-go/internal/kernel"
	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

func newTestRegistry(t *testing.T) (*Registry, context.Context) {
	t.Helper()
	requireBash(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	dir := t.TempDir()
	ledger := config.NewPIDLedger(dir, config.NewLockManager(dir))
	return NewRegistry(ctx, nil, ledger), ctx
}

func noopConsume(types.NotebookId, ipc.OperationMessage) {}

func TestRegistryCreateRecreateClosesPrior(t *testing.T) {
	r, ctx := newTestRegistry(t)
	id := types.NotebookId("file:///a.py")

	first, err := r.Create(ctx, id, "/bin/bash", newTestView(id), kernel.Args{}, noopConsume,
		kernel.WithEntryArgs("-c", fakeKernelScript))
	require.NoError(t, err)
	firstPID := first.PID()

	second, err := r.Create(ctx, id, "/bin/bash", newTestView(id), kernel.Args{}, noopConsume,
		kernel.WithEntryArgs("-c", fakeKernelScript))
	require.NoError(t, err)
	defer r.Close(ctx, id)

	assert.False(t, first.IsAlive(), "recreate must terminate the prior supervisor")
	assert.True(t, second.IsAlive())
	assert.NotEqual(t, firstPID, second.PID())

	got, ok := r.Get(id)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegistryInstantiateOnce(t *testing.T) {
	r, ctx := newTestRegistry(t)
	id := types.NotebookId("file:///a.py")

	_, err := r.Create(ctx, id, "/bin/bash", newTestView(id), kernel.Args{}, noopConsume,
		kernel.WithEntryArgs("-c", fakeKernelScript))
	require.NoError(t, err)
	defer r.Close(ctx, id)

	require.NoError(t, r.Instantiate(id))
	require.NoError(t, r.Instantiate(id), "second instantiate must be a no-op, not an error")
}

func TestRegistryShutdownLeavesNoLiveKernels(t *testing.T) {
	r, ctx := newTestRegistry(t)
	ids := []types.NotebookId{"untitled:a", "file:///b.py"}

	var sessions []*Session
	for _, id := range ids {
		s, err := r.Create(ctx, id, "/bin/bash", newTestView(id), kernel.Args{}, noopConsume,
			kernel.WithEntryArgs("-c", fakeKernelScript))
		require.NoError(t, err)
		sessions = append(sessions, s)
	}

	r.Shutdown(ctx)

	for _, s := range sessions {
		assert.False(t, s.IsAlive())
	}
}

// The untitled: vs. file: scheme distinction that decides *whether* to
// close a session on notebookDocument/didClose is a dispatch-surface
// policy (spec.md §6), not a Registry concern — Registry.Close always
// closes and drops whatever it's given.
func TestRegistryCloseRemovesSession(t *testing.T) {
	r, ctx := newTestRegistry(t)

	untitled := types.NotebookId("untitled:scratch-1")
	_, err := r.Create(ctx, untitled, "/bin/bash", newTestView(untitled), kernel.Args{}, noopConsume,
		kernel.WithEntryArgs("-c", fakeKernelScript))
	require.NoError(t, err)

	require.NoError(t, r.Close(ctx, untitled))
	_, ok := r.Get(untitled)
	assert.False(t, ok)
}
