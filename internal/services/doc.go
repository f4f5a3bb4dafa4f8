// Package services defines shared utilities consumed by the pipeline stages
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, item IDs, stage names, and persona
//     names for logging.
//   - Structured error markers plus the Wrap helper that separate fatal run
//     failures (feed, store) from per-item recoverable ones (embedding,
//     evaluation, schema validation).
//
// Subpackages hold the HTTP clients for the model and embedding endpoints.
package services
