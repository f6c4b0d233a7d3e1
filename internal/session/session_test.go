package session

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marimo-team/marimo-lsp-go/internal/ipc"
	"github.com/marimo-team/marimo-lsp-go/internal/kernel"
	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

// fakeKernelScript is a bash stand-in for a real kernel: it reads the two
// JSON handshake lines, connects every IPC channel the connection info
// describes (bash's /dev/tcp pseudo-device, no external tools needed),
// echoes the readiness token, then sleeps until killed. This lets the
// session tests exercise the real Accept()/channel round trip without a
// Python interpreter or a real marimo kernel.
const fakeKernelScript = `
read -r info
read -r args
host=$(echo "$info" | sed -n 's/.*"host":"\([^"]*\)".*/\1/p')
pc=$(echo "$info" | sed -n 's/.*"control":\([0-9]*\).*/\1/p')
ps=$(echo "$info" | sed -n 's/.*"set_ui_element":\([0-9]*\).*/\1/p')
pp=$(echo "$info" | sed -n 's/.*"completion":\([0-9]*\).*/\1/p')
pi=$(echo "$info" | sed -n 's/.*"input":\([0-9]*\).*/\1/p')
pt=$(echo "$info" | sed -n 's/.*"stream":\([0-9]*\).*/\1/p')
exec 3<>"/dev/tcp/$host/$pc"
exec 4<>"/dev/tcp/$host/$ps"
exec 5<>"/dev/tcp/$host/$pp"
exec 6<>"/dev/tcp/$host/$pi"
exec 7<>"/dev/tcp/$host/$pt"
echo KERNEL_READY
sleep 30
`

func requireBash(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake kernel script assumes /dev/tcp (bash on a POSIX system)")
	}
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func newTestView(id types.NotebookId) *View {
	return NewView(id, "", []Cell{
		{ID: "cell-1", Name: "_", Text: "x = 1"},
	})
}

func TestSessionLifecycle(t *testing.T) {
	requireBash(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var received []string
	consume := func(notebookID types.NotebookId, op ipc.OperationMessage) {
		received = append(received, string(notebookID))
	}

	s, err := New(ctx, "file:///a.py", "/bin/bash", newTestView("file:///a.py"), kernel.Args{LogLevel: "INFO"}, consume, nil,
		kernel.WithEntryArgs("-c", fakeKernelScript))
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.IsAlive())
	assert.NotZero(t, s.PID())
	assert.NotEmpty(t, s.InitializationID)

	require.NoError(t, s.Instantiate())
	require.NoError(t, s.TryInterrupt())

	require.NoError(t, s.Close())
	assert.False(t, s.IsAlive())
	require.NoError(t, s.Close(), "Close must be idempotent")
}
