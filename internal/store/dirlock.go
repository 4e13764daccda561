package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DirLock guards one index's on-disk directory against concurrent use by
// a second engine instance, per §6: two processes must never open the
// same index directory at once.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock builds a lock for the given index directory. The lock file
// itself lives at <dir>/.index.lock so it survives alongside the index's
// segments and vector stores.
func NewDirLock(dir string) *DirLock {
	lockPath := filepath.Join(dir, ".index.lock")
	return &DirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire exclusive ownership of the directory
// without blocking. Returns false, nil if another process already holds
// it.
func (l *DirLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire directory lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the directory lock. Safe to call on an unlocked
// DirLock.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release directory lock: %w", err)
	}
	l.locked = false
	return nil
}

// IsLocked reports whether this DirLock currently holds the lock.
func (l *DirLock) IsLocked() bool {
	return l.locked
}

// Path returns the path to the lock file.
func (l *DirLock) Path() string {
	return l.path
}
