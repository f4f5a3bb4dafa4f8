// Package ollama calls Ollama's native embedding endpoint (/api/embeddings)
// and its model listing for health checks.
package ollama
