package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// LockKind names the resource a LockManager guards, adapted from the
// teacher's RepositoryLockManager LockType (repository/flock.go), whose
// granular per-resource locking pattern is reused here for the config
// file and PID ledger instead of git worktree/notes operations.
type LockKind string

const (
	// LockKindConfig guards reads/writes of config.toml.
	LockKindConfig LockKind = "config"
	// LockKindPIDLedger guards the crash-recovery PID ledger file.
	LockKindPIDLedger LockKind = "pidledger"
)

// LockManager provides granular process-level locking for the config
// directory, preventing concurrent marimo-lsp processes (e.g. two editor
// windows on the same machine) from corrupting config.toml or the PID
// ledger, mirroring the teacher's rationale for its own repository locks.
type LockManager struct {
	dir string

	mu    sync.Mutex
	locks map[LockKind]*flock.Flock
}

// NewLockManager constructs a lock manager rooted at a config directory.
func NewLockManager(dir string) *LockManager {
	return &LockManager{dir: dir, locks: map[LockKind]*flock.Flock{}}
}

func (lm *LockManager) get(kind LockKind) *flock.Flock {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if l, ok := lm.locks[kind]; ok {
		return l
	}
	path := filepath.Join(lm.dir, fmt.Sprintf(".%s.lock", kind))
	_ = os.MkdirAll(lm.dir, 0o755)
	l := flock.New(path)
	lm.locks[kind] = l
	return l
}

// WithLock executes fn while holding an exclusive lock of the given kind.
func (lm *LockManager) WithLock(ctx context.Context, kind LockKind, fn func() error) error {
	l := lm.get(kind)
	const retryDelay = 50 * time.Millisecond
	locked, err := l.TryLockContext(ctx, retryDelay)
	if err != nil {
		return fmt.Errorf("acquire %s lock: %w", kind, err)
	}
	if !locked {
		return fmt.Errorf("acquire %s lock: timed out", kind)
	}
	defer l.Unlock()
	return fn()
}
