package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	consoleTimeLayout = "2006-01-02 15:04:05"
	consoleFieldLimit = 8
)

// consoleLeadKeys are printed before any other field, in this order.
var consoleLeadKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldErrorKind,
	"error",
	FieldErrorHint,
	FieldImpact,
	FieldProgressPercent,
	FieldProgressETA,
	"field",
	"group_key",
	"confidence",
	"records",
	"relationships",
	"discrepancies",
	"changes",
	"failures",
	"mode",
	"threshold",
}

// consoleScopeKeys make up the line prefix instead of being listed as fields
// at info level and above.
var consoleScopeKeys = []string{FieldComponent, FieldRunID, FieldPhase, FieldRecordID, FieldCorrelationID}

type field struct {
	key   string
	value string
}

// consoleHandler writes a header line per record followed by its fields.
// Attributes bound with WithAttrs are rendered once when bound.
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     *slog.LevelVar
	prefix    string
	bound     []field
	addSource bool
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, out: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}
	fields := slices.Clone(h.bound)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.prefix, attr)
		return true
	})
	fields = lastWins(fields)

	scope := make(map[string]string, len(consoleScopeKeys))
	listed := fields[:0:0]
	for _, f := range fields {
		if slices.Contains(consoleScopeKeys, f.key) {
			if raw, err := strconv.Unquote(f.value); err == nil {
				scope[f.key] = raw
			} else {
				scope[f.key] = f.value
			}
			if record.Level >= slog.LevelInfo {
				continue
			}
		}
		listed = append(listed, f)
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.In(time.Local).Format(consoleTimeLayout))
	b.WriteByte(' ')
	b.WriteString(levelName(record.Level))
	if c := scope[FieldComponent]; c != "" {
		b.WriteString(" [" + c + "]")
	}
	if s := scopeLabel(scope); s != "" {
		b.WriteString(" " + s)
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(" – " + msg)
	if h.addSource && record.PC != 0 {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteByte('\n')

	if record.Level < slog.LevelInfo {
		for _, f := range listed {
			b.WriteString("    " + f.key + ": " + f.value + "\n")
		}
	} else {
		shown, hidden := leadFirst(listed, consoleFieldLimit)
		for _, f := range shown {
			b.WriteString("    - " + f.key + ": " + f.value + "\n")
		}
		switch {
		case hidden == 1:
			b.WriteString("    + 1 more field hidden\n")
		case hidden > 1:
			fmt.Fprintf(&b, "    + %d more fields hidden\n", hidden)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.bound = slices.Clone(h.bound)
	for _, attr := range attrs {
		next.bound = appendField(next.bound, h.prefix, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// scopeLabel renders "Run 1a2b3c4d · Record li_42 (merging)".
func scopeLabel(scope map[string]string) string {
	var parts []string
	if run := scope[FieldRunID]; run != "" {
		if len(run) > 8 {
			run = run[:8]
		}
		parts = append(parts, "Run "+run)
	}
	record, phase := scope[FieldRecordID], scope[FieldPhase]
	switch {
	case record != "" && phase != "":
		parts = append(parts, "Record "+record+" ("+phase+")")
	case record != "":
		parts = append(parts, "Record "+record)
	case phase != "":
		parts = append(parts, "("+phase+")")
	}
	return strings.Join(parts, " · ")
}

// leadFirst orders lead keys ahead of the rest and keeps at most limit.
func leadFirst(fields []field, limit int) ([]field, int) {
	rank := func(key string) int {
		if i := slices.Index(consoleLeadKeys, key); i >= 0 {
			return i
		}
		return len(consoleLeadKeys)
	}
	ordered := slices.Clone(fields)
	slices.SortStableFunc(ordered, func(a, b field) int { return rank(a.key) - rank(b.key) })
	if len(ordered) <= limit {
		return ordered, 0
	}
	return ordered[:limit], len(ordered) - limit
}

// lastWins drops earlier fields that a later field with the same key replaces,
// keeping the position of the first occurrence.
func lastWins(fields []field) []field {
	index := make(map[string]int, len(fields))
	out := fields[:0:0]
	for _, f := range fields {
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func appendField(dst []field, prefix string, attr slog.Attr) []field {
	attr.Value = attr.Value.Resolve()
	if attr.Key == "" && attr.Value.Kind() != slog.KindGroup {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = prefix + attr.Key + "."
		}
		for _, a := range attr.Value.Group() {
			dst = appendField(dst, inner, a)
		}
		return dst
	}
	return append(dst, field{key: prefix + attr.Key, value: renderValue(attr.Value)})
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

func renderValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().In(time.Local).Format(consoleTimeLayout)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	case slog.KindString:
		s = v.String()
	default:
		return v.String()
	}
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r < ' ' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
