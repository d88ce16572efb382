package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"harmony/internal/textutil"
)

// DefaultPrefix names report files when no prefix is given.
const DefaultPrefix = "harmony_report"

// Supported formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// FileName builds "<prefix>_YYYYmmdd_HHMMSS.<ext>".
func FileName(prefix string, at time.Time, format string) string {
	prefix = textutil.SanitizeFileName(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s_%s.%s", prefix, at.Format("20060102_150405"), format)
}

// Encode renders the report in format.
func Encode(r *CompletionReport, format string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json report: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML, "yml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("encode yaml report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml report: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

// Write stores the report in dir once per format and returns the written
// paths in format order.
func Write(dir, prefix string, r *CompletionReport, formats []string) ([]string, error) {
	if r == nil {
		return nil, fmt.Errorf("write report: nil report")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	at := r.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	paths := make([]string, 0, len(formats))
	for _, format := range formats {
		data, err := Encode(r, format)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, FileName(prefix, at.Local(), strings.ToLower(format)))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("write report %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
