package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"newsdigest/internal/store"
)

// Record is one raw item as delivered by a source.
type Record struct {
	SourceID    string         `json:"source_id"`
	Origin      string         `json:"origin,omitempty"`
	Title       string         `json:"title"`
	Body        string         `json:"body,omitempty"`
	URL         string         `json:"url,omitempty"`
	Score       int            `json:"score,omitempty"`
	Comments    int            `json:"comments,omitempty"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Source fetches the current batch of records.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Record, error)
}

// Item converts r into a store item observed at observedAt. Missing origins
// default to fallbackOrigin.
func (r Record) Item(fallbackOrigin string, observedAt time.Time) store.Item {
	origin := strings.TrimSpace(r.Origin)
	if origin == "" {
		origin = fallbackOrigin
	}
	return store.Item{
		SourceID:    strings.TrimSpace(r.SourceID),
		Origin:      origin,
		Title:       strings.TrimSpace(r.Title),
		Body:        strings.TrimSpace(r.Body),
		URL:         strings.TrimSpace(r.URL),
		Engagement:  store.Engagement{Score: r.Score, Comments: r.Comments},
		ObservedAt:  observedAt,
		PublishedAt: r.PublishedAt,
		Metadata:    r.Metadata,
	}
}

// FileSource reads a JSON array of records from disk. It is used for offline
// runs and replaying captured feeds.
type FileSource struct {
	Path string
}

// NewFileSource constructs a FileSource.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Name identifies the source in logs and item origins.
func (f *FileSource) Name() string {
	return "file"
}

// Fetch decodes the file. Records without a source id are rejected.
func (f *FileSource) Fetch(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read feed file: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode feed file %s: %w", f.Path, err)
	}
	for i, record := range records {
		if strings.TrimSpace(record.SourceID) == "" {
			return nil, fmt.Errorf("feed file %s: record %d has no source_id", f.Path, i)
		}
	}
	return records, nil
}
