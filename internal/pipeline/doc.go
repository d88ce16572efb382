// Package pipeline coordinates a harmonization run.
//
// A run walks the phases scanning, detecting, comparing, merging and
// validating in order. The Coordinator owns the run state and persists it
// as a checkpoint after every processed unit (a page, a group or a
// discrepancy), so an interrupted run resumes at the first unprocessed unit
// and never replays an update that was already applied.
package pipeline
