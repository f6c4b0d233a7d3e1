package config

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// pidLedgerFile holds one PID per line: kernel subprocesses currently
// owned by this binary's process tree. It exists purely so a crashed
// editor/server doesn't leave orphan kernels running (SPEC_FULL.md
// "Crash-recovery PID ledger") — it is not session persistence: on
// startup the ledger is read once to force-kill leftover PIDs from a
// previous run of this same binary, never to recreate a Session.
func pidLedgerFile(dir string) string {
	return filepath.Join(dir, "kernels.pid")
}

// PIDLedger records live kernel PIDs under flock protection so a
// crash-recovery pass at the next startup can find and kill them.
type PIDLedger struct {
	dir  string
	lock *LockManager
}

// NewPIDLedger constructs a ledger rooted at a config directory, sharing
// the directory's LockManager.
func NewPIDLedger(dir string, lock *LockManager) *PIDLedger {
	return &PIDLedger{dir: dir, lock: lock}
}

// Add appends pid to the ledger.
func (p *PIDLedger) Add(ctx context.Context, pid int) error {
	return p.lock.WithLock(ctx, LockKindPIDLedger, func() error {
		f, err := os.OpenFile(pidLedgerFile(p.dir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open pid ledger: %w", err)
		}
		defer f.Close()
		_, err = fmt.Fprintf(f, "%d\n", pid)
		return err
	})
}

// Remove erases pid from the ledger (called by session.Registry.Close
// when it closes a session).
func (p *PIDLedger) Remove(ctx context.Context, pid int) error {
	return p.lock.WithLock(ctx, LockKindPIDLedger, func() error {
		pids, err := readPIDs(pidLedgerFile(p.dir))
		if err != nil {
			return err
		}
		kept := pids[:0]
		for _, existing := range pids {
			if existing != pid {
				kept = append(kept, existing)
			}
		}
		return writePIDs(pidLedgerFile(p.dir), kept)
	})
}

// ReclaimStale reads every PID left over from a previous run and sends
// SIGKILL to any that are still alive, then clears the ledger. Intended to
// be called once at Registry construction.
func (p *PIDLedger) ReclaimStale(ctx context.Context) ([]int, error) {
	var killed []int
	err := p.lock.WithLock(ctx, LockKindPIDLedger, func() error {
		path := pidLedgerFile(p.dir)
		pids, err := readPIDs(path)
		if err != nil {
			return err
		}
		for _, pid := range pids {
			if proc, err := os.FindProcess(pid); err == nil {
				if err := proc.Signal(syscall.Signal(0)); err == nil {
					_ = proc.Kill()
					killed = append(killed, pid)
				}
			}
		}
		return writePIDs(path, nil)
	})
	return killed, err
}

func readPIDs(path string) ([]int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open pid ledger: %w", err)
	}
	defer f.Close()

	var pids []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, scanner.Err()
}

func writePIDs(path string, pids []int) error {
	var b strings.Builder
	for _, pid := range pids {
		fmt.Fprintf(&b, "%d\n", pid)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
