package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"harmony/internal/merge"
	"harmony/internal/pipeline"
	"harmony/internal/report"
	"harmony/internal/store"
)

func renderReport(rep *report.CompletionReport) string {
	var b strings.Builder
	rows := make([][]string, 0, 12)
	for _, kv := range rep.Summary() {
		rows = append(rows, []string{kv[0], kv[1]})
	}
	b.WriteString(renderTable("Harmonization run", []string{"Item", "Value"}, rows))
	b.WriteString("\n")

	if len(rep.RelationshipsByKind) > 0 {
		b.WriteString(renderCounts("Relationships", "Kind", rep.RelationshipsByKind))
	}
	if len(rep.DiscrepanciesByField) > 0 {
		b.WriteString(renderCounts("Discrepancies", "Field", rep.DiscrepanciesByField))
	}
	if len(rep.Updates.ByField) > 0 {
		b.WriteString(renderCounts("Updates by field", "Field", rep.Updates.ByField))
	}
	if len(rep.ManualReviewByReason) > 0 {
		b.WriteString(renderCounts("Manual review", "Reason", rep.ManualReviewByReason))
	}
	if len(rep.Changes) > 0 {
		b.WriteString(renderPreview(rep.Changes))
	}
	if len(rep.Validation.Failures) > 0 {
		vrows := make([][]string, 0, len(rep.Validation.Failures))
		for _, f := range rep.Validation.Failures {
			subject := f.GroupKey
			if f.RecordID != "" {
				subject = f.RecordID
			}
			vrows = append(vrows, []string{string(f.Check), dash(subject), f.Reason})
		}
		b.WriteString(renderTable("Validation failures", []string{"Check", "Subject", "Reason"}, vrows))
		b.WriteString("\n")
	}
	if len(rep.Failures) > 0 {
		frows := make([][]string, 0, len(rep.Failures))
		for _, f := range rep.Failures {
			frows = append(frows, []string{f.Phase, dash(f.RecordID), f.Kind, f.Message})
		}
		b.WriteString(renderTable("Failures", []string{"Phase", "Record", "Kind", "Message"}, frows))
		b.WriteString("\n")
	}
	return b.String()
}

func renderCounts(title, label string, counts map[string]int) string {
	rows := make([][]string, 0, len(counts))
	for _, key := range report.SortedKeys(counts) {
		rows = append(rows, []string{key, humanize.Comma(int64(counts[key]))})
	}
	return renderTable(title, []string{label, "Count"}, rows, 1) + "\n"
}

func renderPreview(changes []merge.PreviewRow) string {
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{c.RecordID, c.Field, dash(c.Old), dash(c.New), fmt.Sprintf("%.2f", c.Confidence), c.Intent})
	}
	return renderTable("Changes", []string{"Record", "Field", "Old", "New", "Confidence", "Intent"}, rows, 4) + "\n"
}

func renderOutcomes(title string, outcomes []pipeline.ChangeOutcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{o.Change.RecordID, string(o.Change.Field), dash(o.Change.Old.String()), dash(o.Change.New.String()), o.Outcome, o.Error})
	}
	return renderTable(title, []string{"Record", "Field", "Old", "New", "Outcome", "Error"}, rows) + "\n"
}

func renderReview(entries []store.ReviewEntry, now time.Time) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := "open"
		if e.Resolved {
			status = "resolved"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.ID),
			e.RecordID,
			e.Reason,
			dash(e.Field),
			fmt.Sprintf("%.2f", e.Confidence),
			humanize.RelTime(e.FlaggedAt, now, "ago", "from now"),
			status,
			e.Detail,
		})
	}
	return renderTable("Manual review", []string{"ID", "Record", "Reason", "Field", "Confidence", "Flagged", "Status", "Detail"}, rows, 0, 4)
}

func renderAudit(entries []store.AuditEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Timestamp.Local().Format(time.DateTime),
			shortID(e.RunID),
			e.RecordID,
			e.Field,
			dash(e.Old.String()),
			dash(e.New.String()),
			e.Source,
			e.Outcome,
		})
	}
	return renderTable("Audit log", []string{"Time", "Run", "Record", "Field", "Old", "New", "Source", "Outcome"}, rows)
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
