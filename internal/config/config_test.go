package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"harmony/internal/config"
	"harmony/internal/services"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ABS_URL", "ABS_TOKEN", "REQUEST_TIMEOUT", "HARMONY_DRY_RUN", "HARMONY_CONFIDENCE",
		"HARMONY_FORCE_RESCAN", "HARMONY_CACHE_FILE", "HARMONY_OUTPUT_DIR", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func validConfig() config.Config {
	cfg := config.Default()
	cfg.Library.URL = "http://abs.local"
	cfg.Library.Token = "token"
	return cfg
}

func TestLoadDefaultConfigUsesEnvAndExpandsPaths(t *testing.T) {
	clearEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("ABS_URL", "https://abs.example.com/")
	t.Setenv("ABS_TOKEN", "env-token")
	t.Setenv("HARMONY_CACHE_FILE", "~/harmony/cache.sqlite")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "harmony", "config.toml"); resolved != want {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, want)
	}
	if cfg.Library.URL != "https://abs.example.com" {
		t.Fatalf("expected trailing slash stripped, got %q", cfg.Library.URL)
	}
	if cfg.Library.Token != "env-token" {
		t.Fatalf("expected token from env, got %q", cfg.Library.Token)
	}
	if want := filepath.Join(tempHome, "harmony", "cache.sqlite"); cfg.Paths.CacheFile != want {
		t.Fatalf("unexpected cache file: got %q want %q", cfg.Paths.CacheFile, want)
	}
	if !filepath.IsAbs(cfg.Paths.OutputDir) {
		t.Fatalf("expected absolute output dir, got %q", cfg.Paths.OutputDir)
	}
	if !cfg.Harmony.DryRun {
		t.Fatal("expected dry run by default")
	}
	if cfg.Harmony.ConfidenceThreshold != 0.8 {
		t.Fatalf("unexpected default threshold %v", cfg.Harmony.ConfidenceThreshold)
	}
	if cfg.LockPath() != cfg.Paths.CacheFile+".lock" {
		t.Fatalf("unexpected lock path %q", cfg.LockPath())
	}
	if cfg.RequestTimeout().Seconds() != 30 {
		t.Fatalf("unexpected request timeout %v", cfg.RequestTimeout())
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "harmony.toml")

	type payload struct {
		Library struct {
			URL        string   `toml:"url"`
			Token      string   `toml:"token"`
			PageSize   int      `toml:"page_size"`
			LibraryIDs []string `toml:"library_ids"`
		} `toml:"library"`
		Harmony struct {
			DryRun              bool    `toml:"dry_run"`
			ConfidenceThreshold float64 `toml:"confidence_threshold"`
		} `toml:"harmony"`
		Paths struct {
			CacheFile string `toml:"cache_file"`
			OutputDir string `toml:"output_dir"`
		} `toml:"paths"`
		Report struct {
			Formats []string `toml:"formats"`
		} `toml:"report"`
	}
	custom := payload{}
	custom.Library.URL = "http://abs.local:13378"
	custom.Library.Token = "file-token"
	custom.Library.PageSize = 25
	custom.Library.LibraryIDs = []string{" lib-1 ", ""}
	custom.Harmony.ConfidenceThreshold = 0.9
	custom.Paths.CacheFile = filepath.Join(tempDir, "cache.sqlite")
	custom.Paths.OutputDir = filepath.Join(tempDir, "out")
	custom.Report.Formats = []string{"JSON", "yml", "json"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Library.PageSize != 25 {
		t.Fatalf("expected page size 25, got %d", cfg.Library.PageSize)
	}
	if len(cfg.Library.LibraryIDs) != 1 || cfg.Library.LibraryIDs[0] != "lib-1" {
		t.Fatalf("unexpected library ids %v", cfg.Library.LibraryIDs)
	}
	if cfg.Harmony.DryRun {
		t.Fatal("expected dry_run false from file")
	}
	if cfg.Harmony.ConfidenceThreshold != 0.9 {
		t.Fatalf("expected threshold 0.9, got %v", cfg.Harmony.ConfidenceThreshold)
	}
	if strings.Join(cfg.Report.Formats, ",") != "json,yaml" {
		t.Fatalf("unexpected formats %v", cfg.Report.Formats)
	}
	if !cfg.HasFormat("yaml") || cfg.HasFormat("csv") {
		t.Fatalf("unexpected HasFormat results for %v", cfg.Report.Formats)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.OutputDir); err != nil || !info.IsDir() {
		t.Fatalf("expected output dir to exist: %v", err)
	}
}

func TestEnvVarOverridesConfigFile(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "harmony.toml")
	contents := `
[library]
url = "http://file.local"
token = "file-token"
request_timeout = 10

[harmony]
dry_run = true
confidence_threshold = 0.7

[logging]
level = "info"
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ABS_URL", "http://env.local")
	t.Setenv("ABS_TOKEN", "env-token")
	t.Setenv("REQUEST_TIMEOUT", "45")
	t.Setenv("HARMONY_DRY_RUN", "false")
	t.Setenv("HARMONY_CONFIDENCE", "0.95")
	t.Setenv("HARMONY_FORCE_RESCAN", "true")
	t.Setenv("HARMONY_OUTPUT_DIR", filepath.Join(tempDir, "reports"))
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Library.URL != "http://env.local" {
		t.Errorf("expected url from env, got %q", cfg.Library.URL)
	}
	if cfg.Library.Token != "env-token" {
		t.Errorf("expected token from env, got %q", cfg.Library.Token)
	}
	if cfg.Library.RequestTimeout != 45 {
		t.Errorf("expected timeout from env, got %d", cfg.Library.RequestTimeout)
	}
	if cfg.Harmony.DryRun {
		t.Error("expected dry run disabled by env")
	}
	if cfg.Harmony.ConfidenceThreshold != 0.95 {
		t.Errorf("expected threshold from env, got %v", cfg.Harmony.ConfidenceThreshold)
	}
	if !cfg.Harmony.ForceRescan {
		t.Error("expected force rescan from env")
	}
	if cfg.Paths.OutputDir != filepath.Join(tempDir, "reports") {
		t.Errorf("expected output dir from env, got %q", cfg.Paths.OutputDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level from env, got %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ABS_URL", "http://abs.local")
	t.Setenv("ABS_TOKEN", "token")
	t.Setenv("HARMONY_CONFIDENCE", "high")

	if _, _, _, err := config.Load(""); err == nil {
		t.Fatal("expected error for non-numeric HARMONY_CONFIDENCE")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "confidence_threshold") {
		t.Fatalf("sample config missing confidence_threshold: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Harmony.ConfidenceThreshold != 0.8 {
		t.Fatalf("unexpected sample threshold %v", cfg.Harmony.ConfidenceThreshold)
	}
	if cfg.Library.URL == "" {
		t.Fatal("expected sample library url")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing url", func(c *config.Config) { c.Library.URL = "" }, "library.url"},
		{"non-http url", func(c *config.Config) { c.Library.URL = "ftp://abs.local" }, "library.url"},
		{"missing token", func(c *config.Config) { c.Library.Token = "" }, "library.token"},
		{"zero timeout", func(c *config.Config) { c.Library.RequestTimeout = 0 }, "library.request_timeout"},
		{"zero page size", func(c *config.Config) { c.Library.PageSize = 0 }, "library.page_size"},
		{"zero concurrency", func(c *config.Config) { c.Library.Concurrency = 0 }, "library.concurrency"},
		{"threshold above one", func(c *config.Config) { c.Harmony.ConfidenceThreshold = 1.2 }, "harmony.confidence_threshold"},
		{"negative threshold", func(c *config.Config) { c.Harmony.ConfidenceThreshold = -0.1 }, "harmony.confidence_threshold"},
		{"unknown format", func(c *config.Config) { c.Report.Formats = []string{"csv"} }, "report.formats"},
		{"unknown log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"unknown log level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	for _, threshold := range []float64{0, 1} {
		if err := config.ValidateThreshold(threshold); err != nil {
			t.Fatalf("threshold %v should be valid: %v", threshold, err)
		}
	}
}
