package mariadb

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// AppendMovement inserts one event with autocommit.
func (s *Store) AppendMovement(ctx context.Context, ev database.MovementEvent) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("invalid movement kind %q", ev.Kind)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO movement_logs (student_id, session_id, kind, ts) VALUES (?, ?, ?, ?)",
		ev.StudentID, ev.SessionID, string(ev.Kind), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("append movement: %w", err)
	}
	return nil
}

// ListMovements returns a session's events ordered by timestamp, then insertion order
func (s *Store) ListMovements(ctx context.Context, sessionID string) ([]database.MovementEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, session_id, kind, ts
		FROM movement_logs
		WHERE session_id = ?
		ORDER BY ts, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var events []database.MovementEvent
	for rows.Next() {
		var ev database.MovementEvent
		var kind string
		if err := rows.Scan(&ev.ID, &ev.StudentID, &ev.SessionID, &kind, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		ev.Kind = database.MovementKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return events, nil
}
