package vectorindex

import (
	"context"
	"time"
)

// Entry is one registered item vector.
type Entry struct {
	ItemID     int64
	ObservedAt time.Time
	Vector     []float32
}

// Match is the nearest registered neighbour of a query vector.
type Match struct {
	ItemID     int64
	ObservedAt time.Time
	Similarity float64
}

// Index is a similarity index over registered item vectors. Implementations
// are a projection of the item store and can always be rebuilt from it.
type Index interface {
	// Nearest returns the most similar entry observed at or after since, or
	// nil when none qualifies. The entry for item exclude is never returned;
	// pass 0 to consider every entry. Equal similarities resolve to the
	// earliest observed entry, then the lowest item ID.
	Nearest(ctx context.Context, vec []float32, since time.Time, exclude int64) (*Match, error)
	// Add registers an entry. Adding an item ID that is already registered
	// replaces its entry.
	Add(ctx context.Context, entry Entry) error
	// Rebuild replaces the index contents with entries.
	Rebuild(ctx context.Context, entries []Entry) error
	// Len reports how many entries are registered.
	Len() int
	Close() error
}

// better reports whether candidate should replace current as the nearest match.
func better(candidate, current *Match) bool {
	if current == nil {
		return true
	}
	if candidate.Similarity != current.Similarity {
		return candidate.Similarity > current.Similarity
	}
	if !candidate.ObservedAt.Equal(current.ObservedAt) {
		return candidate.ObservedAt.Before(current.ObservedAt)
	}
	return candidate.ItemID < current.ItemID
}
