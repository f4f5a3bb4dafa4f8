package vectorindex

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Flat is an exact in-process index. Vectors are normalized on insert so a
// dot product gives cosine similarity.
type Flat struct {
	mu      sync.RWMutex
	dims    int
	entries []Entry
	pos     map[int64]int
}

// NewFlat returns an empty in-process index.
func NewFlat() *Flat {
	return &Flat{pos: make(map[int64]int)}
}

func (f *Flat) Nearest(_ context.Context, vec []float32, since time.Time, exclude int64) (*Match, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.entries) == 0 {
		return nil, nil
	}
	if len(vec) != f.dims {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(vec), f.dims)
	}
	query := Normalize(vec)
	var best *Match
	for _, entry := range f.entries {
		if entry.ItemID == exclude || (!since.IsZero() && entry.ObservedAt.Before(since)) {
			continue
		}
		candidate := &Match{
			ItemID:     entry.ItemID,
			ObservedAt: entry.ObservedAt,
			Similarity: dot(query, entry.Vector),
		}
		if better(candidate, best) {
			best = candidate
		}
	}
	return best, nil
}

func (f *Flat) Add(_ context.Context, entry Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(entry)
}

func (f *Flat) addLocked(entry Entry) error {
	if len(entry.Vector) == 0 {
		return fmt.Errorf("item %d: empty vector", entry.ItemID)
	}
	if f.dims == 0 {
		f.dims = len(entry.Vector)
	}
	if len(entry.Vector) != f.dims {
		return fmt.Errorf("item %d: vector has %d dimensions, index has %d", entry.ItemID, len(entry.Vector), f.dims)
	}
	entry.Vector = Normalize(entry.Vector)
	if f.pos == nil {
		f.pos = make(map[int64]int)
	}
	if i, ok := f.pos[entry.ItemID]; ok {
		f.entries[i] = entry
		return nil
	}
	f.pos[entry.ItemID] = len(f.entries)
	f.entries = append(f.entries, entry)
	return nil
}

func (f *Flat) Rebuild(_ context.Context, entries []Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make([]Entry, 0, len(entries))
	f.pos = make(map[int64]int, len(entries))
	f.dims = 0
	for _, entry := range entries {
		if err := f.addLocked(entry); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

func (f *Flat) Close() error { return nil }
