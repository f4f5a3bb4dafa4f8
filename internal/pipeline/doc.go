// Package pipeline sequences one digest run: ingest the feed, select NEW
// items inside the window, prefilter, cap the batch, deduplicate, evaluate
// against every enabled persona, settle statuses, assemble the digest,
// persist it (store row and artifacts) and finally hand it to delivery.
//
// Only one run may hold the data directory at a time; Run takes a file lock
// and fails with ErrRunInProgress when another process owns it. Feed and store
// failures abort the run before anything is persisted. Embedding, evaluation
// and delivery failures are logged and recorded against the affected item or
// in the Summary.
package pipeline
