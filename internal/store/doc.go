// Package store persists harmonization state in SQLite: completeness scores,
// relationships, the manual review queue, the append-only audit log, the run
// checkpoint and per-run record snapshots.
//
// Scores and relationships are upserted by key, audit rows are only ever
// appended, and there is at most one checkpoint. Writes retry on SQLITE_BUSY
// so a concurrent reader (for example `harmony audit` during a run) never
// fails a write outright.
//
// Schema changes bump schemaVersion in schema.go; users delete the cache
// database to adopt the new schema.
package store
