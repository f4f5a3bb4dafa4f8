package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"newsdigest/internal/config"
	"newsdigest/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...store.Option) *store.Store {
	t.Helper()

	st, err := store.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// ItemOption customizes an item built by NewItem.
type ItemOption func(*store.Item)

// WithEngagement sets the engagement pair.
func WithEngagement(score, comments int) ItemOption {
	return func(item *store.Item) {
		item.Engagement = store.Engagement{Score: score, Comments: comments}
	}
}

// ObservedAgo sets ObservedAt relative to now.
func ObservedAgo(d time.Duration) ItemOption {
	return func(item *store.Item) {
		item.ObservedAt = time.Now().Add(-d)
	}
}

// WithBody sets the item body.
func WithBody(body string) ItemOption {
	return func(item *store.Item) {
		item.Body = body
	}
}

// NewItem upserts a test item and returns the stored record.
func NewItem(t testing.TB, st *store.Store, sourceID, title string, opts ...ItemOption) *store.Item {
	t.Helper()

	item := store.Item{
		SourceID: sourceID,
		Origin:   "test",
		Title:    title,
		URL:      fmt.Sprintf("https://example.com/%s", sourceID),
	}
	for _, opt := range opts {
		opt(&item)
	}
	stored, _, err := st.Upsert(context.Background(), item)
	if err != nil {
		t.Fatalf("store.Upsert: %v", err)
	}
	return stored
}
