package kernel

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marimo-team/marimo-lsp-go/internal/ipc"
)

// fakeKernelScript drives /bin/sh as a stand-in interpreter: it reads two
// stdin lines (discarded) and echoes the readiness token, then sleeps until
// killed. This lets the supervisor tests exercise the real process
// lifecycle without a Python interpreter.
const fakeKernelScript = `read _; read _; echo KERNEL_READY; sleep 30`

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake kernel script assumes a POSIX shell")
	}
	return New("test-notebook", "/bin/sh", WithEntryArgs("-c", fakeKernelScript))
}

func TestSupervisorStartAndTerminate(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()

	err := s.Start(ctx, ipc.ConnectionInfo{Host: "127.0.0.1"}, Args{LogLevel: "INFO"})
	require.NoError(t, err)
	assert.True(t, s.IsAlive())
	assert.NotZero(t, s.PID())

	require.NoError(t, s.Terminate())
	assert.False(t, s.IsAlive())
}

func TestSupervisorTerminateIsIdempotent(t *testing.T) {
	s := newTestSupervisor(t)
	require.NoError(t, s.Terminate())
	require.NoError(t, s.Terminate())
}

func TestSupervisorStartTwiceFails(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, ipc.ConnectionInfo{}, Args{}))
	defer s.Terminate()

	err := s.Start(ctx, ipc.ConnectionInfo{}, Args{})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestSupervisorLaunchFailureSurfacesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script assumes POSIX sh")
	}
	s := New("broken-notebook", "/bin/sh", WithEntryArgs("-c", `echo "boom" >&2; exit 1`))
	err := s.Start(context.Background(), ipc.ConnectionInfo{}, Args{})
	require.Error(t, err)
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Contains(t, launchErr.StderrTail, "boom")
}

func TestSupervisorInterruptWithoutRunningKernel(t *testing.T) {
	s := newTestSupervisor(t)
	err := s.Interrupt(nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSupervisorBreakerOpensAfterRepeatedFailures(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script assumes POSIX sh")
	}
	s := New("always-broken", "/bin/sh", WithEntryArgs("-c", `exit 1`))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.Start(ctx, ipc.ConnectionInfo{}, Args{})
		require.Error(t, err)
	}

	err := s.Start(ctx, ipc.ConnectionInfo{}, Args{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
}

func TestSupervisorReadinessTimeoutIsBounded(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script assumes POSIX sh")
	}
	start := time.Now()
	s := New("slow-notebook", "/bin/sh", WithEntryArgs("-c", `read _; read _; sleep 0.05; exit 0`))
	err := s.Start(context.Background(), ipc.ConnectionInfo{}, Args{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), readinessTimeout)
}
