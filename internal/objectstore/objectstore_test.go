package objectstore_test

import (
	"testing"

	"newsdigest/internal/config"
	"newsdigest/internal/objectstore"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "2026-05-06/GENAI_NEWS_2026-05-06.json"},
		{prefix: "digests", want: "digests/2026-05-06/GENAI_NEWS_2026-05-06.json"},
		{prefix: "/team/digests/", want: "team/digests/2026-05-06/GENAI_NEWS_2026-05-06.json"},
	}
	for _, tt := range tests {
		if got := objectstore.ObjectKey(tt.prefix, "2026-05-06", "GENAI_NEWS_2026-05-06.json"); got != tt.want {
			t.Fatalf("ObjectKey(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	if objectstore.Enabled(config.Artifacts{S3Endpoint: "localhost:9000"}) {
		t.Fatal("expected mirror disabled without a bucket")
	}
	if _, err := objectstore.New(config.Artifacts{}, nil); err == nil {
		t.Fatal("expected error for empty settings")
	}
	mirror, err := objectstore.New(config.Artifacts{S3Endpoint: "localhost:9000", S3Bucket: "digests"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if mirror == nil {
		t.Fatal("expected mirror")
	}
}
