package services_test

import (
	"errors"
	"strings"
	"testing"

	"newsdigest/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrEmbedding, "dedup", "embed", "item 7", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrEmbedding) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"dedup", "embed", "item 7"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"ingestion", services.Wrap(services.ErrIngestion, "feed", "fetch", "", errors.New("dial")), true},
		{"store", services.Wrap(services.ErrStore, "store", "upsert", "", nil), true},
		{"embedding", services.Wrap(services.ErrEmbedding, "dedup", "embed", "", nil), false},
		{"schema", services.Wrap(services.ErrSchemaValidation, "evaluate", "validate", "", nil), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := services.IsFatal(tc.err); got != tc.fatal {
			t.Fatalf("%s: expected fatal=%v, got %v", tc.name, tc.fatal, got)
		}
	}
}

func TestKindPrefersSchemaOverEvaluation(t *testing.T) {
	err := services.Wrap(services.ErrSchemaValidation, "evaluate", "", "", services.ErrEvaluation)
	if kind := services.Kind(err); kind != "schema_validation" {
		t.Fatalf("expected schema_validation, got %q", kind)
	}
	if kind := services.Kind(nil); kind != "" {
		t.Fatalf("expected empty kind for nil, got %q", kind)
	}
}
