package testsupport

import (
	"path/filepath"
	"testing"

	"harmony/internal/config"
)

// NewConfig returns a valid config whose cache and reports live under a
// per-test temp directory. The library URL points nowhere; tests that talk
// to a server replace it.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Library.URL = "http://127.0.0.1:13378"
	cfg.Library.Token = "test"
	cfg.Paths.CacheFile = filepath.Join(base, "cache", "harmony.sqlite")
	cfg.Paths.OutputDir = filepath.Join(base, "reports")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}
