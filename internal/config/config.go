package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Library contains the connection settings for the Audiobookshelf server.
type Library struct {
	URL            string   `toml:"url"`
	Token          string   `toml:"token"`
	RequestTimeout int      `toml:"request_timeout"`
	PageSize       int      `toml:"page_size"`
	Concurrency    int      `toml:"concurrency"`
	LibraryIDs     []string `toml:"library_ids"`
}

// Harmony contains the harmonization run settings.
type Harmony struct {
	DryRun              bool    `toml:"dry_run"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	ForceRescan         bool    `toml:"force_rescan"`
}

// Paths contains file locations used by a run.
type Paths struct {
	CacheFile string `toml:"cache_file"`
	OutputDir string `toml:"output_dir"`
}

// Report contains completion report settings.
type Report struct {
	Formats []string `toml:"formats"`
}

// Logging contains logging configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for harmony.
type Config struct {
	Library Library `toml:"library"`
	Harmony Harmony `toml:"harmony"`
	Paths   Paths   `toml:"paths"`
	Report  Report  `toml:"report"`
	Logging Logging `toml:"logging"`
}

// Load reads configuration from disk, applies defaults and environment
// overrides, and validates the result. It returns the config, the resolved
// path, and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := locate(path)
	if err != nil {
		return nil, "", false, err
	}
	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return fmt.Errorf("parse config %s:%d:%d: %w", path, row, col, err)
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// locate resolves an explicit path as given. Without one it prefers the user
// config, then harmony.toml in the working directory, and reports the user
// config path when neither exists.
func locate(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		exists, err := isFile(expanded)
		return expanded, exists, err
	}
	userPath, err := expandPath(DefaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("harmony.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{userPath, projectPath} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return userPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	}
	return !info.IsDir(), nil
}

// EnsureDirectories creates the directories that hold the cache database,
// reports, and the optional log file.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Paths.CacheFile), c.Paths.OutputDir}
	if strings.TrimSpace(c.Logging.File) != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequestTimeout returns the per-request timeout for library calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Library.RequestTimeout) * time.Second
}

// LockPath returns the run lock file guarding the cache database.
func (c *Config) LockPath() string {
	return c.Paths.CacheFile + ".lock"
}

// HasFormat reports whether the report format is enabled.
func (c *Config) HasFormat(format string) bool {
	return slices.Contains(c.Report.Formats, format)
}

// ExpandPath resolves a leading ~ to the home directory and makes the path
// absolute. An empty path stays empty.
func ExpandPath(p string) (string, error) {
	return expandPath(p)
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimLeft(p[1:], `/\`))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
