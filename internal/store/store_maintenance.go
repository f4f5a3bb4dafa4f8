package store

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("item stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// CheckHealth returns diagnostic information about the database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if version, err := s.readSchemaVersion(ctx); err != nil {
		health.Error = err.Error()
	} else {
		health.SchemaVersion = version
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.IntegrityCheck = "error"
		health.Error = err.Error()
		return health, nil
	}
	health.IntegrityCheck = integrity

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM items").Scan(&health.TotalItems); err != nil {
		health.Error = err.Error()
	}
	return health, nil
}

// SchemaVersion reports the schema version this build expects.
func SchemaVersion() int {
	return schemaVersion
}
