package pipeline

import (
	"testing"
	"time"

	"newsdigest/internal/store"
)

func TestSelectBatchOrdersByEngagementThenRecency(t *testing.T) {
	now := time.Now()
	items := []*store.Item{
		{ID: 1, Engagement: store.Engagement{Score: 50, Comments: 1}, ObservedAt: now},
		{ID: 2, Engagement: store.Engagement{Score: 90, Comments: 1}, ObservedAt: now.Add(-time.Hour)},
		{ID: 3, Engagement: store.Engagement{Score: 50, Comments: 9}, ObservedAt: now.Add(-2 * time.Hour)},
		{ID: 4, Engagement: store.Engagement{Score: 50, Comments: 1}, ObservedAt: now.Add(-time.Minute)},
		{ID: 5, Engagement: store.Engagement{Score: 50, Comments: 1}, ObservedAt: now},
	}

	got := selectBatch(items, 4)
	want := []int64{2, 3, 1, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got item %d, want %d", i, got[i].ID, id)
		}
	}
	if items[0].ID != 1 {
		t.Fatal("selectBatch must not reorder its input")
	}
	if all := selectBatch(items, 0); len(all) != len(items) {
		t.Fatalf("zero limit should keep everything, got %d", len(all))
	}
}

func TestRegistrationOrderIsOldestFirst(t *testing.T) {
	now := time.Now()
	batch := []*store.Item{
		{ID: 4, Engagement: store.Engagement{Score: 500}, ObservedAt: now},
		{ID: 2, Engagement: store.Engagement{Score: 40}, ObservedAt: now.Add(-2 * time.Hour)},
		{ID: 3, Engagement: store.Engagement{Score: 90}, ObservedAt: now},
		{ID: 1, Engagement: store.Engagement{Score: 10}, ObservedAt: now.Add(-time.Hour)},
	}

	got := registrationOrder(batch)
	want := []int64{2, 1, 3, 4}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got item %d, want %d", i, got[i].ID, id)
		}
	}
	if batch[0].ID != 4 {
		t.Fatal("registrationOrder must not reorder its input")
	}
}
