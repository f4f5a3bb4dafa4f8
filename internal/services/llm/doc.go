// Package llm talks to an OpenAI-compatible chat completions endpoint (Ollama's
// /v1 API by default) in JSON mode.
//
// CompleteJSON returns the raw message content; DecodeLLMJSON tolerates the
// usual model quirks (code fences, prose around the object). Transport
// failures on HTTP 408/429/5xx, timeouts and empty content are retried with
// exponential backoff; context cancellation stops retries immediately.
// Schema-level retries belong to the caller.
package llm
