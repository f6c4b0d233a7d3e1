package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, DefaultUserConfig(), cfg)
}

func TestSaveThenLoadRoundtrips(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultUserConfig()
	cfg.DefaultInterpreter = "/usr/bin/python3.12"
	cfg.LogLevel = "DEBUG"

	require.NoError(t, Save(Path(dir), cfg))
	loaded, err := Load(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestPIDLedgerReclaimsOnlyDeadOrStalePIDs(t *testing.T) {
	dir := t.TempDir()
	lock := NewLockManager(dir)
	ledger := NewPIDLedger(dir, lock)
	ctx := context.Background()

	require.NoError(t, ledger.Add(ctx, 999999))
	killed, err := ledger.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Empty(t, killed, "a PID that doesn't exist should not be reported as killed")

	pids, err := readPIDs(pidLedgerFile(dir))
	require.NoError(t, err)
	assert.Empty(t, pids, "ledger is cleared after reclaim regardless of outcome")
}

func TestPIDLedgerRemove(t *testing.T) {
	dir := t.TempDir()
	lock := NewLockManager(dir)
	ledger := NewPIDLedger(dir, lock)
	ctx := context.Background()

	require.NoError(t, ledger.Add(ctx, 111))
	require.NoError(t, ledger.Add(ctx, 222))
	require.NoError(t, ledger.Remove(ctx, 111))

	pids, err := readPIDs(pidLedgerFile(dir))
	require.NoError(t, err)
	assert.Equal(t, []int{222}, pids)
}

func TestDefaultDirHonorsEnvOverride(t *testing.T) {
	want := filepath.Join(t.TempDir(), "custom")
	t.Setenv("MARIMO_LSP_CONFIG_DIR", want)
	dir, err := DefaultDir()
	require.NoError(t, err)
	assert.Equal(t, want, dir)
}
