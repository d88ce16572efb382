package runlock_test

import (
	"errors"
	"path/filepath"
	"testing"

	"harmony/internal/runlock"
	"harmony/internal/services"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "harmony.db.lock")

	first, err := runlock.Acquire(path, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if first.Path() != path {
		t.Fatalf("Path = %q", first.Path())
	}

	_, err = runlock.Acquire(path, nil)
	if !errors.Is(err, runlock.ErrHeld) || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected held lock error, got %v", err)
	}

	first.Release()
	first.Release()

	second, err := runlock.Acquire(path, nil)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	second.Release()
}
