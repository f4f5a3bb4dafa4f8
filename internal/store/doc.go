// Package store persists newsdigest items in SQLite.
//
// The Store owns item identity (one row per origin source id) and lifecycle:
// items enter as NEW and move through PREFILTERED_OUT, DUPLICATE, EVALUATED,
// ACCEPTED or REJECTED along a guarded transition graph. Per-persona verdicts
// live in their own table keyed by (item, persona) so evaluation of one
// persona never clobbers another, and a valid verdict is never replaced.
// Embeddings are written once and feed the rebuildable similarity index.
// Assembled digests are stored as immutable audit records.
//
// Writes retry on SQLITE_BUSY with a short backoff. The schema is versioned;
// a database created by another version is reported with ErrSchemaMismatch.
package store
