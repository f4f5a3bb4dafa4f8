package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var itemColumns = []string{
	"id", "source_id", "origin", "title", "body", "url",
	"engagement_score", "engagement_comments", "observed_at", "published_at",
	"embedding", "status", "metadata_json", "error_message", "updated_at",
}

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	return time.Parse(time.RFC3339Nano, value)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(scanner rowScanner) (*Item, error) {
	var (
		id           int64
		sourceID     string
		origin       sql.NullString
		title        string
		body         sql.NullString
		url          sql.NullString
		score        sql.NullInt64
		comments     sql.NullInt64
		observedRaw  string
		publishedRaw sql.NullString
		embedding    []byte
		statusStr    string
		metadataRaw  sql.NullString
		errorMessage sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&id, &sourceID, &origin, &title, &body, &url,
		&score, &comments, &observedRaw, &publishedRaw,
		&embedding, &statusStr, &metadataRaw, &errorMessage, &updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		SourceID:     sourceID,
		Origin:       origin.String,
		Title:        title,
		Body:         body.String,
		URL:          url.String,
		Engagement:   Engagement{Score: int(score.Int64), Comments: int(comments.Int64)},
		Status:       Status(statusStr),
		ErrorMessage: errorMessage.String,
	}
	if observed, err := parseTimeString(observedRaw); err == nil {
		item.ObservedAt = observed
	}
	if publishedRaw.Valid {
		if published, err := parseTimeString(publishedRaw.String); err == nil {
			item.PublishedAt = &published
		}
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if len(embedding) > 0 {
		vec, err := decodeVector(embedding)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", id, err)
		}
		item.Embedding = vec
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		if err := json.Unmarshal([]byte(metadataRaw.String), &item.Metadata); err != nil {
			return nil, fmt.Errorf("item %d metadata: %w", id, err)
		}
	}
	return item, nil
}

// encodeVector packs a float32 slice as little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has %d bytes, not a multiple of 4", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

func nullableJSON(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
	case []string:
		if len(v) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func statusStrings(statuses []Status) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
