// Package runlock keeps two harmonization runs from sharing one cache
// database.
package runlock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"harmony/internal/logging"
	"harmony/internal/services"
)

// ErrHeld reports that another process owns the lock.
var ErrHeld = errors.New("another harmony run holds the cache lock")

// Lock is an exclusive advisory lock on a file next to the cache.
type Lock struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// Acquire takes the lock at path without waiting. The error wraps
// services.ErrConfiguration and ErrHeld when the lock is taken.
func Acquire(path string, logger *slog.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	l := &Lock{path: path, lock: flock.New(path), logger: logger}
	ok, err := l.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "startup", "lock", path, ErrHeld)
	}
	logger.Debug("run lock acquired", logging.String("lock", path))
	return l, nil
}

// Path returns the lock file.
func (l *Lock) Path() string { return l.path }

// Release gives the lock up. Releasing twice is harmless.
func (l *Lock) Release() {
	if l == nil || !l.lock.Locked() {
		return
	}
	if err := l.lock.Unlock(); err != nil {
		l.logger.Warn("failed to release run lock", logging.String("lock", l.path), logging.Error(err))
	}
}
