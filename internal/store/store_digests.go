package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SaveDigest writes the audit record for a digest. Records are immutable: a
// second save for the same run ID fails.
func (s *Store) SaveDigest(ctx context.Context, record DigestRecord) error {
	if strings.TrimSpace(record.RunID) == "" {
		return errors.New("save digest: run id is required")
	}
	if len(record.Payload) == 0 {
		return fmt.Errorf("save digest %s: empty payload", record.RunID)
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO digests (run_id, generated_at, window_start, window_end, item_count, payload_json)
         VALUES (?, ?, ?, ?, ?, ?)`,
		record.RunID,
		formatTime(record.GeneratedAt),
		formatTime(record.WindowStart),
		formatTime(record.WindowEnd),
		record.ItemCount,
		string(record.Payload),
	)
	if err != nil {
		return fmt.Errorf("save digest %s: %w", record.RunID, err)
	}
	return nil
}

const digestColumns = "run_id, generated_at, window_start, window_end, item_count, payload_json"

// LatestDigest returns the most recently generated digest.
func (s *Store) LatestDigest(ctx context.Context) (*DigestRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+digestColumns+` FROM digests ORDER BY generated_at DESC, run_id DESC LIMIT 1`)
	record, err := scanDigest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "digest", Key: "latest"}
	}
	return record, err
}

// GetDigest returns the digest produced by runID.
func (s *Store) GetDigest(ctx context.Context, runID string) (*DigestRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+digestColumns+` FROM digests WHERE run_id = ?`, runID)
	record, err := scanDigest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "digest", Key: runID}
	}
	return record, err
}

// ListDigests returns up to limit digests, newest first. Payloads are included.
func (s *Store) ListDigests(ctx context.Context, limit int) ([]DigestRecord, error) {
	builder := psql.Select(strings.Split(digestColumns, ", ")...).From("digests").
		OrderBy("generated_at DESC", "run_id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build digest query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list digests: %w", err)
	}
	defer rows.Close()

	var records []DigestRecord
	for rows.Next() {
		record, err := scanDigest(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func scanDigest(scanner rowScanner) (*DigestRecord, error) {
	var (
		record                DigestRecord
		generated, start, end string
		payload               string
	)
	if err := scanner.Scan(&record.RunID, &generated, &start, &end, &record.ItemCount, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan digest: %w", err)
	}
	record.GeneratedAt, _ = parseTimeString(generated)
	record.WindowStart, _ = parseTimeString(start)
	record.WindowEnd, _ = parseTimeString(end)
	record.Payload = []byte(payload)
	return &record, nil
}
