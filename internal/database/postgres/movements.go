package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MovementRepository provides the PostgreSQL movement ledger
type MovementRepository struct {
	pool *Pool
}

// NewMovementRepository creates a new PostgreSQL movement ledger
func NewMovementRepository(pool *Pool) *MovementRepository {
	return &MovementRepository{pool: pool}
}

// AppendMovement inserts one event. The statement autocommits, so the event
// is durable when this returns nil.
func (r *MovementRepository) AppendMovement(ctx context.Context, ev database.MovementEvent) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("invalid movement kind %q", ev.Kind)
	}
	_, err := r.pool.Exec(ctx,
		"INSERT INTO movement_logs (student_id, session_id, kind, ts) VALUES ($1, $2, $3, $4)",
		ev.StudentID, ev.SessionID, string(ev.Kind), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("append movement: %w", err)
	}
	return nil
}

// ListMovements returns a session's events ordered by timestamp, then insertion order
func (r *MovementRepository) ListMovements(ctx context.Context, sessionID string) ([]database.MovementEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_id, session_id, kind, ts
		FROM movement_logs
		WHERE session_id = $1
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
