// Package proclock enforces single-instance batch processing. The codec
// engine cannot be shared between processes, so a second `soundscribe
// process` invocation must fail fast instead of corrupting a running batch.
package proclock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyLocked is returned when another process holds the lock.
var ErrAlreadyLocked = errors.New("another soundscribe process is already running")

// Lock is a file-based exclusive lock scoped to one data directory.
type Lock struct {
	path string
	lock *flock.Flock
}

// New creates a lock rooted in dir. The lock file is created on Acquire.
func New(dir string) (*Lock, error) {
	if dir == "" {
		return nil, errors.New("lock directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	path := filepath.Join(dir, "soundscribe.lock")
	return &Lock{path: path, lock: flock.New(path)}, nil
}

// Acquire takes the lock without blocking.
func (l *Lock) Acquire() error {
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire process lock: %w", err)
	}
	if !ok {
		return ErrAlreadyLocked
	}
	return nil
}

// Release frees the lock.
func (l *Lock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release process lock: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}
