// Package metadata defines the book record snapshot that flows through the
// harmonization pipeline, the catalogue of fields with their completeness
// weights and comparison kinds, and the completeness scorer.
//
// Records are plain values. Derived fields (Completeness, RelatedIDs,
// NeedsReview) are recomputed by the pipeline and never edited by hand.
package metadata
