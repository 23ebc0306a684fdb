package store

import (
	"context"
	"fmt"

	"github.com/fleetline/pelorus/internal/pelorus/directory"
)

// SaveCatalog replaces the vessel-catalog snapshot with records, preserving
// their order. The snapshot is the directory's offline fallback, so the
// replacement is transactional: a failed refresh leaves the old snapshot
// intact. Catalog sources do not guarantee unique identifiers; when a
// duplicate appears, the later occurrence wins.
func (s *Store) SaveCatalog(ctx context.Context, records []directory.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save catalog: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM vessels"); err != nil {
		return fmt.Errorf("save catalog: clear: %w", err)
	}
	for i, r := range records {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO vessels (identifier, name, position) VALUES (?, ?, ?)",
			r.Identifier, r.Name, i,
		); err != nil {
			return fmt.Errorf("save catalog: insert %q: %w", r.Identifier, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save catalog: commit: %w", err)
	}
	return nil
}

// LoadCatalog returns the snapshot in its original order. An empty snapshot
// returns an error so callers fall through to the next catalog source.
func (s *Store) LoadCatalog(ctx context.Context) ([]directory.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT identifier, name FROM vessels ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var out []directory.Record
	for rows.Next() {
		var r directory.Record
		if err := rows.Scan(&r.Identifier, &r.Name); err != nil {
			return nil, fmt.Errorf("load catalog: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("load catalog: snapshot is empty")
	}
	return out, nil
}
