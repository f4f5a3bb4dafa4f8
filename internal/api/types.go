package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Item describes a stored item in a transport-friendly format.
type Item struct {
	ID           int64            `json:"id"`
	SourceID     string           `json:"sourceId"`
	Origin       string           `json:"origin"`
	Title        string           `json:"title"`
	URL          string           `json:"url,omitempty"`
	Score        int              `json:"score"`
	Comments     int              `json:"comments"`
	Status       string           `json:"status"`
	ObservedAt   string           `json:"observedAt"`
	PublishedAt  string           `json:"publishedAt,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	Verdicts     []PersonaVerdict `json:"verdicts"`
}

// PersonaVerdict is one persona's outcome for an item.
type PersonaVerdict struct {
	Persona   string   `json:"persona"`
	Accepted  bool     `json:"accepted"`
	Valid     bool     `json:"valid"`
	Score     *int     `json:"score,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Rationale string   `json:"rationale,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// DigestSummary describes a persisted digest without its payload.
type DigestSummary struct {
	RunID       string `json:"runId"`
	GeneratedAt string `json:"generatedAt"`
	WindowStart string `json:"windowStart"`
	WindowEnd   string `json:"windowEnd"`
	ItemCount   int    `json:"itemCount"`
}

// DigestResponse wraps a single digest with its payload.
type DigestResponse struct {
	DigestSummary
	Digest json.RawMessage `json:"digest"`
}

// DigestListResponse wraps a collection of digests.
type DigestListResponse struct {
	Digests []DigestSummary `json:"digests"`
}

// ItemListResponse wraps a collection of items.
type ItemListResponse struct {
	Items []Item `json:"items"`
}

// HealthResponse reports store health.
type HealthResponse struct {
	Status        string `json:"status"`
	SchemaVersion int    `json:"schemaVersion"`
	TotalItems    int    `json:"totalItems"`
	Detail        string `json:"detail,omitempty"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
