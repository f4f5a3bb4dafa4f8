package store

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an ingested item.
type Status string

const (
	StatusNew            Status = "NEW"
	StatusPrefilteredOut Status = "PREFILTERED_OUT"
	StatusDuplicate      Status = "DUPLICATE"
	StatusEvaluated      Status = "EVALUATED"
	StatusAccepted       Status = "ACCEPTED"
	StatusRejected       Status = "REJECTED"
)

var allStatuses = []Status{
	StatusNew,
	StatusPrefilteredOut,
	StatusDuplicate,
	StatusEvaluated,
	StatusAccepted,
	StatusRejected,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// transitions lists the statuses reachable from each non-terminal status.
var transitions = map[Status][]Status{
	StatusNew:       {StatusPrefilteredOut, StatusDuplicate, StatusRejected, StatusEvaluated},
	StatusEvaluated: {StatusAccepted, StatusRejected},
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a Status, matching case-insensitively.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

// Engagement is the origin's popularity signal. Score orders first, then Comments.
type Engagement struct {
	Score    int `json:"score"`
	Comments int `json:"comments"`
}

// Less reports whether e ranks below other.
func (e Engagement) Less(other Engagement) bool {
	if e.Score != other.Score {
		return e.Score < other.Score
	}
	return e.Comments < other.Comments
}

// Item is a single news story tracked across runs.
type Item struct {
	ID           int64                     `json:"id"`
	SourceID     string                    `json:"source_id"`
	Origin       string                    `json:"origin"`
	Title        string                    `json:"title"`
	Body         string                    `json:"body,omitempty"`
	URL          string                    `json:"url,omitempty"`
	Engagement   Engagement                `json:"engagement"`
	ObservedAt   time.Time                 `json:"observed_at"`
	PublishedAt  *time.Time                `json:"published_at,omitempty"`
	Embedding    []float32                 `json:"-"`
	Status       Status                    `json:"status"`
	Metadata     map[string]any            `json:"metadata,omitempty"`
	ErrorMessage string                    `json:"error_message,omitempty"`
	UpdatedAt    time.Time                 `json:"updated_at"`
	Verdicts     map[string]PersonaVerdict `json:"verdicts,omitempty"`
}

// HasEmbedding reports whether an embedding has been stored for the item.
func (i *Item) HasEmbedding() bool {
	return i != nil && len(i.Embedding) > 0
}

// Verdict is a schema-valid persona evaluation.
type Verdict struct {
	RelevanceScore int            `json:"relevance_score"`
	Rationale      string         `json:"rationale"`
	Tags           []string       `json:"tags"`
	AudienceHint   string         `json:"audience_hint,omitempty"`
	Keep           bool           `json:"keep"`
	Details        map[string]any `json:"details,omitempty"`
}

// PersonaVerdict is the stored outcome for one (item, persona) pair. Verdict
// is nil when evaluation failed; Reason then carries the failure.
type PersonaVerdict struct {
	Persona     string    `json:"persona"`
	Verdict     *Verdict  `json:"verdict,omitempty"`
	Accepted    bool      `json:"accepted"`
	Reason      string    `json:"reason,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Valid reports whether a schema-valid verdict was recorded.
func (p PersonaVerdict) Valid() bool {
	return p.Verdict != nil
}

// AcceptedEntry pairs an accepted item with the verdict that accepted it.
type AcceptedEntry struct {
	Item    *Item
	Verdict Verdict
}

// IndexEntry is the projection of an item the similarity index needs.
type IndexEntry struct {
	ItemID     int64
	ObservedAt time.Time
	Vector     []float32
}

// DigestRecord is the audit row written for every assembled digest.
type DigestRecord struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	ItemCount   int       `json:"item_count"`
	Payload     []byte    `json:"-"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Statuses []Status
	Since    time.Time
	Limit    int
}

// DatabaseHealth describes store diagnostics for the doctor command.
type DatabaseHealth struct {
	DBPath         string
	DatabaseExists bool
	SchemaVersion  int
	IntegrityCheck string
	TotalItems     int
	Error          string
}
