package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// RecordVerdict stores the outcome of evaluating item id for persona in a
// single transaction and moves a NEW item to EVALUATED. A nil verdict records
// a failed evaluation with reason. Once a valid verdict exists for the pair it
// is never replaced.
func (s *Store) RecordVerdict(ctx context.Context, id int64, persona string, verdict *Verdict, accepted bool, reason string) error {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		return errors.New("record verdict: persona is required")
	}
	if verdict == nil {
		accepted = false
	}

	var (
		score        any
		keep         any
		tags         any
		details      any
		audience     any
		rationaleArg any
		valid        int
		err          error
	)
	if verdict != nil {
		valid = 1
		score = verdict.RelevanceScore
		keep = boolToInt(verdict.Keep)
		audience = nullableString(verdict.AudienceHint)
		rationaleArg = nullableString(verdict.Rationale)
		if tags, err = nullableJSON(verdict.Tags); err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		if details, err = nullableJSON(verdict.Details); err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if current != StatusNew && current != StatusEvaluated {
			return invalidTransition(current, StatusEvaluated)
		}
		now := formatTime(s.now())
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO verdicts (
                item_id, persona, valid, accepted, relevance_score, rationale, tags_json,
                audience_hint, keep, details_json, reason, evaluated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(item_id, persona) DO UPDATE SET
                valid = excluded.valid,
                accepted = excluded.accepted,
                relevance_score = excluded.relevance_score,
                rationale = excluded.rationale,
                tags_json = excluded.tags_json,
                audience_hint = excluded.audience_hint,
                keep = excluded.keep,
                details_json = excluded.details_json,
                reason = excluded.reason,
                evaluated_at = excluded.evaluated_at
            WHERE verdicts.valid = 0`,
			id, persona, valid, boolToInt(accepted), score, rationaleArg, tags,
			audience, keep, details, nullableString(reason), now,
		); err != nil {
			return fmt.Errorf("write verdict: %w", err)
		}
		if current == StatusNew {
			if _, err := tx.ExecContext(ctx,
				`UPDATE items SET status = ?, updated_at = ? WHERE id = ?`,
				string(StatusEvaluated), now, id,
			); err != nil {
				return fmt.Errorf("mark evaluated: %w", err)
			}
		}
		return nil
	})
}

// Settle finalizes an EVALUATED item: ACCEPTED when any persona accepted it,
// REJECTED otherwise. The resulting status is returned.
func (s *Store) Settle(ctx context.Context, id int64) (Status, error) {
	var final Status
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if current != StatusEvaluated {
			return invalidTransition(current, StatusAccepted)
		}
		var accepted int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM verdicts WHERE item_id = ? AND accepted = 1`, id,
		).Scan(&accepted); err != nil {
			return fmt.Errorf("count accepted verdicts: %w", err)
		}
		final = StatusRejected
		if accepted > 0 {
			final = StatusAccepted
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE items SET status = ?, updated_at = ? WHERE id = ?`,
			string(final), formatTime(s.now()), id,
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return final, nil
}

// Accepted returns items accepted for persona and observed at or after since,
// with the accepting verdict. Order is by item ID; ranking belongs to the caller.
func (s *Store) Accepted(ctx context.Context, persona string, since time.Time) ([]AcceptedEntry, error) {
	columns := make([]string, 0, len(itemColumns))
	for _, col := range itemColumns {
		columns = append(columns, "i."+col)
	}
	query, args, err := psql.Select(columns...).From("items i").
		Join("verdicts v ON v.item_id = i.id").
		Where(sq.Eq{"v.persona": persona, "v.accepted": 1, "i.status": string(StatusAccepted)}).
		Where(sq.GtOrEq{"i.observed_at": formatTime(since)}).
		OrderBy("i.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build accepted query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accepted: %w", err)
	}
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan accepted item: %w", err)
		}
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachVerdicts(ctx, items); err != nil {
		return nil, err
	}

	entries := make([]AcceptedEntry, 0, len(items))
	for _, item := range items {
		pv, ok := item.Verdicts[persona]
		if !ok || pv.Verdict == nil {
			continue
		}
		entries = append(entries, AcceptedEntry{Item: item, Verdict: *pv.Verdict})
	}
	return entries, nil
}

// attachVerdicts loads persona verdicts for items in one query.
func (s *Store) attachVerdicts(ctx context.Context, items []*Item) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[int64]*Item, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		byID[item.ID] = item
		ids = append(ids, item.ID)
	}
	query, args, err := psql.Select(
		"item_id", "persona", "valid", "accepted", "relevance_score", "rationale",
		"tags_json", "audience_hint", "keep", "details_json", "reason", "evaluated_at",
	).From("verdicts").Where(sq.Eq{"item_id": ids}).OrderBy("item_id", "persona").ToSql()
	if err != nil {
		return fmt.Errorf("build verdict query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			itemID      int64
			persona     string
			valid       int
			accepted    int
			score       sql.NullInt64
			rationale   sql.NullString
			tagsRaw     sql.NullString
			audience    sql.NullString
			keep        sql.NullInt64
			detailsRaw  sql.NullString
			reason      sql.NullString
			evaluatedAt string
		)
		if err := rows.Scan(&itemID, &persona, &valid, &accepted, &score, &rationale,
			&tagsRaw, &audience, &keep, &detailsRaw, &reason, &evaluatedAt); err != nil {
			return fmt.Errorf("scan verdict: %w", err)
		}
		pv := PersonaVerdict{
			Persona:  persona,
			Accepted: accepted != 0,
			Reason:   reason.String,
		}
		if ts, err := parseTimeString(evaluatedAt); err == nil {
			pv.EvaluatedAt = ts
		}
		if valid != 0 {
			verdict := &Verdict{
				RelevanceScore: int(score.Int64),
				Rationale:      rationale.String,
				AudienceHint:   audience.String,
				Keep:           keep.Int64 != 0,
			}
			if tagsRaw.Valid {
				if err := json.Unmarshal([]byte(tagsRaw.String), &verdict.Tags); err != nil {
					return fmt.Errorf("decode tags for item %d: %w", itemID, err)
				}
			}
			if detailsRaw.Valid {
				if err := json.Unmarshal([]byte(detailsRaw.String), &verdict.Details); err != nil {
					return fmt.Errorf("decode details for item %d: %w", itemID, err)
				}
			}
			pv.Verdict = verdict
		}
		item := byID[itemID]
		if item.Verdicts == nil {
			item.Verdicts = make(map[string]PersonaVerdict)
		}
		item.Verdicts[persona] = pv
	}
	return rows.Err()
}
