// Package services defines shared utilities consumed by the pipeline phases
// and the library provider integration.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, phase names, record IDs and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, so failures can be
//     classified (transient, validation, data integrity, configuration)
//     without losing their human-readable context.
//
// Use these helpers when wiring new phase logic so error handling and
// observability stay uniform across the pipeline.
package services
