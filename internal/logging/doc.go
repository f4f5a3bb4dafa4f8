// Package logging builds the slog loggers used across newsdigest.
//
// Console output is a compact single-line format keyed by component; an
// optional run log file always receives JSON. Context helpers attach run_id,
// item_id, stage and persona so every record from a pipeline run can be
// correlated.
package logging
