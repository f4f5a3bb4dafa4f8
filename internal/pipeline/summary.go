package pipeline

import (
	"time"

	"newsdigest/internal/digest"
)

// Summary reports what a run did.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Fetched        int
	Inserted       int
	IndexSize      int
	Candidates     int
	PrefilteredOut int
	// Deferred items passed the prefilter but exceeded eval_max_items; they
	// stay NEW.
	Deferred      int
	Duplicates    int
	EmbedFailures int
	// Resumed items were left EVALUATED by an interrupted run and settled by
	// this one.
	Resumed      int
	Evaluated    int
	EvalFailures int
	Accepted     int
	Rejected     int

	DigestItems   int
	Digest        digest.Digest
	Artifacts     []string
	Mirrored      []string
	DeliveredTo   string
	Delivered     bool
	DeliveryError string
}

// Elapsed returns the run duration.
func (s *Summary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
