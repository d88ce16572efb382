// Package merge chooses authoritative values for discrepancies and turns
// them into per-record change sets. Protected fields are never touched.
//
// The resolver is pure: it only describes changes. Forwarding them to the
// library (or not, in dry-run mode) is the pipeline's job.
package merge
