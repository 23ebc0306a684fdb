package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageRecord is one audit-log row describing how an inbound message was
// handled. SenderMasked must already be masked by the caller.
type MessageRecord struct {
	ID               string
	TraceID          string
	SenderMasked     string
	Intent           string
	VesselIdentifier string
	// Outcome is a short machine-readable tag: "answered", "follow_up_saved",
	// "rate_limited", "session_expired", "not_found", "unclear", "failed".
	Outcome   string
	CreatedAt time.Time
}

// RecordMessage appends one audit-log row. The ID is generated when empty.
func (s *Store) RecordMessage(ctx context.Context, rec *MessageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, trace_id, sender_masked, intent, vessel_identifier, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TraceID, rec.SenderMasked, rec.Intent, rec.VesselIdentifier, rec.Outcome, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest audit-log rows, most recent first.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trace_id, sender_masked, intent, vessel_identifier, outcome, created_at
		FROM messages ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		if err := rows.Scan(&rec.ID, &rec.TraceID, &rec.SenderMasked,
			&rec.Intent, &rec.VesselIdentifier, &rec.Outcome, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
