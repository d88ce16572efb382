package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"harmony/internal/report"
	"harmony/internal/store"
)

type fakeLibraryServer struct {
	t     *testing.T
	items []map[string]any

	mu      sync.Mutex
	patches []string
}

func (f *fakeLibraryServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/libraries":
		_ = json.NewEncoder(w).Encode(map[string]any{"libraries": []map[string]any{
			{"id": "books", "name": "Books", "mediaType": "book"},
		}})
	case r.Method == http.MethodGet && r.URL.Path == "/api/libraries/books/items":
		results := f.items
		if r.URL.Query().Get("page") != "0" {
			results = nil
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results, "total": len(f.items)})
	case r.Method == http.MethodPatch:
		body := new(bytes.Buffer)
		_, _ = body.ReadFrom(r.Body)
		f.mu.Lock()
		f.patches = append(f.patches, r.URL.Path+" "+strings.TrimSpace(body.String()))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"updated":true}`))
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeLibraryServer) patchLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.patches...)
}

func seriesItem(id string, seq int, publisher string) map[string]any {
	return map[string]any{
		"id": id,
		"media": map[string]any{"metadata": map[string]any{
			"title":     fmt.Sprintf("The Expanse %d", seq),
			"authors":   []any{map[string]any{"name": "James S. A. Corey"}},
			"series":    []any{map[string]any{"name": "The Expanse", "sequence": fmt.Sprint(seq)}},
			"publisher": publisher,
			"genres":    []string{"Science Fiction"},
		}},
	}
}

type cliEnv struct {
	configPath string
	baseDir    string
	server     *fakeLibraryServer
}

func setupCLI(t *testing.T) *cliEnv {
	t.Helper()
	for _, key := range []string{"ABS_URL", "ABS_TOKEN", "HARMONY_DRY_RUN", "HARMONY_CONFIDENCE", "HARMONY_FORCE_RESCAN", "HARMONY_CACHE_FILE", "HARMONY_OUTPUT_DIR", "REQUEST_TIMEOUT"} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")

	fake := &fakeLibraryServer{t: t}
	for i, publisher := range []string{"Orbit", "Orbit", "Orbit", "Orbit", "Hachette Audio"} {
		fake.items = append(fake.items, seriesItem(fmt.Sprintf("exp-%d", i+1), i+1, publisher))
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	base := t.TempDir()
	configPath := filepath.Join(base, "harmony.toml")
	content := fmt.Sprintf(`[library]
url = %q
token = "secret"
page_size = 50
concurrency = 1

[harmony]
dry_run = true
confidence_threshold = 0.8

[paths]
cache_file = %q
output_dir = %q

[report]
formats = ["json", "yaml"]
`, srv.URL, filepath.Join(base, "cache", "harmony.sqlite"), filepath.Join(base, "reports"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliEnv{configPath: configPath, baseDir: base, server: fake}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRunPreviewWritesReports(t *testing.T) {
	env := setupCLI(t)

	out, err := env.run(t, "run", "--report-prefix", "preview")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{"Harmonization run", "dry_run", "Hachette Audio", "would apply", "Report written to"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if patches := env.server.patchLog(); len(patches) != 0 {
		t.Fatalf("preview wrote to the library: %v", patches)
	}
	for _, pattern := range []string{"preview_*.json", "preview_*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(env.baseDir, "reports", pattern))
		if err != nil || len(matches) != 1 {
			t.Fatalf("expected one %s report, got %v (%v)", pattern, matches, err)
		}
	}
}

func TestRunApplyThenRestore(t *testing.T) {
	env := setupCLI(t)

	out, err := env.run(t, "run", "--apply", "--json")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	var rep report.CompletionReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if rep.Mode != "apply" || rep.Updates.Applied != 1 {
		t.Fatalf("unexpected report %+v", rep.Updates)
	}
	patches := env.server.patchLog()
	if len(patches) != 1 || patches[0] != `/api/items/exp-5/metadata {"metadata":{"publisher":"Orbit"}}` {
		t.Fatalf("unexpected patches %v", patches)
	}

	out, err = env.run(t, "audit", "--json", "--run", rep.RunID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	var entries []store.AuditEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode audit: %v\n%s", err, out)
	}
	if len(entries) != 1 || entries[0].RecordID != "exp-5" || entries[0].Outcome != store.OutcomeApplied {
		t.Fatalf("unexpected audit %+v", entries)
	}

	out, err = env.run(t, "restore", "--run", rep.RunID, "--apply")
	if err != nil {
		t.Fatalf("restore: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Hachette Audio") || !strings.Contains(out, store.OutcomeApplied) {
		t.Fatalf("unexpected restore output:\n%s", out)
	}
	patches = env.server.patchLog()
	if len(patches) != 2 || patches[1] != `/api/items/exp-5/metadata {"metadata":{"publisher":"Hachette Audio"}}` {
		t.Fatalf("unexpected patches after restore %v", patches)
	}
}

func TestCheckpointShowWithoutPendingRun(t *testing.T) {
	env := setupCLI(t)
	out, err := env.run(t, "checkpoint", "show")
	if err != nil {
		t.Fatalf("checkpoint show: %v", err)
	}
	if !strings.Contains(out, "No pending run") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := env.run(t, "checkpoint", "clear"); err != nil {
		t.Fatalf("checkpoint clear: %v", err)
	}
}

func TestReviewListAndResolve(t *testing.T) {
	env := setupCLI(t)

	out, err := env.run(t, "review", "list")
	if err != nil {
		t.Fatalf("review list: %v", err)
	}
	if !strings.Contains(out, "queue is empty") {
		t.Fatalf("unexpected output %q", out)
	}

	// A threshold above the publisher confidence routes the conflict to review.
	if _, err := env.run(t, "run", "--threshold", "0.95"); err != nil {
		t.Fatalf("run: %v", err)
	}
	out, err = env.run(t, "review", "list", "--json")
	if err != nil {
		t.Fatalf("review list: %v", err)
	}
	var entries []store.ReviewEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode review: %v\n%s", err, out)
	}
	if len(entries) != 5 {
		t.Fatalf("expected five review entries, got %+v", entries)
	}

	out, err = env.run(t, "review", "resolve", fmt.Sprint(entries[0].ID))
	if err != nil {
		t.Fatalf("review resolve: %v", err)
	}
	if !strings.Contains(out, "Resolved review entry") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := env.run(t, "review", "resolve", fmt.Sprint(entries[0].ID)); err == nil {
		t.Fatal("expected resolving twice to fail")
	}
	if _, err := env.run(t, "review", "resolve", "abc"); err == nil {
		t.Fatal("expected invalid id to fail")
	}
}

func TestRunRejectsConflictingFlags(t *testing.T) {
	env := setupCLI(t)
	if _, err := env.run(t, "run", "--apply", "--dry-run"); err == nil {
		t.Fatal("expected conflicting mode flags to fail")
	}
	if _, err := env.run(t, "run", "--threshold", "1.5"); err == nil {
		t.Fatal("expected invalid threshold to fail")
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLI(t)
	target := filepath.Join(env.baseDir, "new", "config.toml")

	root := newRootCommand()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetArgs([]string{"config", "init", "--path", target})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	root = newRootCommand()
	root.SetOut(&stdout)
	root.SetArgs([]string{"config", "init", "--path", target})
	if err := root.Execute(); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}

	out, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, "dry run") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEnvFileOverridesConfig(t *testing.T) {
	env := setupCLI(t)
	envFile := filepath.Join(env.baseDir, "custom.env")
	if err := os.WriteFile(envFile, []byte("HARMONY_CONFIDENCE=0.42\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("HARMONY_CONFIDENCE", "")
	os.Unsetenv("HARMONY_CONFIDENCE")

	out, err := env.run(t, "--env-file", envFile, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "0.42") {
		t.Fatalf("env file not applied:\n%s", out)
	}
}
