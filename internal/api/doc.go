// Package api serves the read-only HTTP view of the store: health, persisted
// digests and recent items. Handlers are registered on a gin engine.
//
// DTOs use camelCase JSON tags for browser and dashboard consumers. Item
// statuses are exposed as lowercase strings and timestamps use RFC3339 with
// milliseconds. Digest payloads are passed through as json.RawMessage, exactly
// as persisted, to avoid double-encoding.
package api
