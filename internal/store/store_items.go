package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Upsert inserts item when its SourceID is unknown. For a known SourceID the
// stored record is returned unchanged and created is false. A zero ObservedAt
// is replaced with the store clock.
func (s *Store) Upsert(ctx context.Context, item Item) (*Item, bool, error) {
	sourceID := strings.TrimSpace(item.SourceID)
	if sourceID == "" {
		return nil, false, errors.New("upsert item: source id is required")
	}
	if strings.TrimSpace(item.Title) == "" && strings.TrimSpace(item.Body) == "" {
		return nil, false, fmt.Errorf("upsert item %s: title or body is required", sourceID)
	}

	now := s.now().UTC()
	observed := item.ObservedAt
	if observed.IsZero() {
		observed = now
	}
	metadata, err := nullableJSON(item.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("encode metadata for %s: %w", sourceID, err)
	}
	var embedding any
	if len(item.Embedding) > 0 {
		embedding = encodeVector(item.Embedding)
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO items (
            source_id, origin, title, body, url, engagement_score, engagement_comments,
            observed_at, published_at, embedding, status, metadata_json, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(source_id) DO NOTHING`,
		sourceID,
		item.Origin,
		item.Title,
		nullableString(item.Body),
		nullableString(item.URL),
		item.Engagement.Score,
		item.Engagement.Comments,
		formatTime(observed),
		nullableTime(item.PublishedAt),
		embedding,
		string(StatusNew),
		metadata,
		formatTime(now),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert item %s: %w", sourceID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	stored, err := s.GetBySourceID(ctx, sourceID)
	if err != nil {
		return nil, false, err
	}
	return stored, affected > 0, nil
}

// GetByID fetches an item with its persona verdicts.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	return s.getOne(ctx, sq.Eq{"id": id}, itemNotFound(id))
}

// GetBySourceID fetches an item by its origin-unique identifier.
func (s *Store) GetBySourceID(ctx context.Context, sourceID string) (*Item, error) {
	return s.getOne(ctx, sq.Eq{"source_id": sourceID}, &NotFoundError{Entity: "item", Key: sourceID})
}

func (s *Store) getOne(ctx context.Context, where sq.Sqlizer, notFound error) (*Item, error) {
	query, args, err := psql.Select(itemColumns...).From("items").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build item query: %w", err)
	}
	item, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	if err := s.attachVerdicts(ctx, []*Item{item}); err != nil {
		return nil, err
	}
	return item, nil
}

// GetRecent returns items observed within [now-window, now], newest first
// (ties broken by descending ID). When statuses are given only items in those
// statuses are returned.
func (s *Store) GetRecent(ctx context.Context, window time.Duration, statuses ...Status) ([]*Item, error) {
	if window <= 0 {
		return nil, fmt.Errorf("get recent: window must be positive, got %s", window)
	}
	now := s.now()
	builder := psql.Select(itemColumns...).From("items").
		Where(sq.GtOrEq{"observed_at": formatTime(now.Add(-window))}).
		Where(sq.LtOrEq{"observed_at": formatTime(now)}).
		OrderBy("observed_at DESC", "id DESC")
	if len(statuses) > 0 {
		builder = builder.Where(sq.Eq{"status": statusStrings(statuses)})
	}
	return s.queryItems(ctx, builder)
}

// List returns items matching filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Item, error) {
	builder := psql.Select(itemColumns...).From("items").OrderBy("observed_at DESC", "id DESC")
	if len(filter.Statuses) > 0 {
		builder = builder.Where(sq.Eq{"status": statusStrings(filter.Statuses)})
	}
	if !filter.Since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"observed_at": formatTime(filter.Since)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	return s.queryItems(ctx, builder)
}

func (s *Store) queryItems(ctx context.Context, builder sq.SelectBuilder) ([]*Item, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build item query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachVerdicts(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// MarkStatus moves an item to status when the lifecycle allows it. message is
// stored as the item's error message (empty clears it).
func (s *Store) MarkStatus(ctx context.Context, id int64, status Status, message string) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("mark status: unknown status %q", status)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if !CanTransition(current, status) {
			return invalidTransition(current, status)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE items SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
			string(status), nullableString(message), formatTime(s.now()), id,
		)
		return err
	})
}

// SetEmbedding stores the item's embedding. An embedding is written at most once.
func (s *Store) SetEmbedding(ctx context.Context, id int64, vec []float32) error {
	if len(vec) == 0 {
		return errors.New("set embedding: empty vector")
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE items SET embedding = ?, updated_at = ? WHERE id = ? AND embedding IS NULL`,
		encodeVector(vec), formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM items WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check item: %w", err)
	}
	if exists == 0 {
		return itemNotFound(id)
	}
	return fmt.Errorf("item %d: %w", id, ErrEmbeddingExists)
}

// IndexEntries returns embeddings of registered items observed at or after
// since. NEW items are still awaiting dedup and DUPLICATE items are never
// registered, so both are excluded.
func (s *Store) IndexEntries(ctx context.Context, since time.Time) ([]IndexEntry, error) {
	query, args, err := psql.Select("id", "observed_at", "embedding").From("items").
		Where(sq.NotEq{"embedding": nil}).
		Where(sq.NotEq{"status": []string{string(StatusNew), string(StatusDuplicate)}}).
		Where(sq.GtOrEq{"observed_at": formatTime(since)}).
		OrderBy("observed_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build index query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query index entries: %w", err)
	}
	defer rows.Close()

	var entries []IndexEntry
	for rows.Next() {
		var (
			id          int64
			observedRaw string
			raw         []byte
		)
		if err := rows.Scan(&id, &observedRaw, &raw); err != nil {
			return nil, fmt.Errorf("scan index entry: %w", err)
		}
		vec, err := decodeVector(raw)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", id, err)
		}
		observed, _ := parseTimeString(observedRaw)
		entries = append(entries, IndexEntry{ItemID: id, ObservedAt: observed, Vector: vec})
	}
	return entries, rows.Err()
}

func currentStatus(ctx context.Context, tx *sql.Tx, id int64) (Status, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM items WHERE id = ?`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", itemNotFound(id)
		}
		return "", fmt.Errorf("read status: %w", err)
	}
	return Status(status), nil
}
