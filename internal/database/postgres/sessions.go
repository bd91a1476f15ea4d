package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// SessionRepository provides PostgreSQL-backed class session storage
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, subject, instructor, classroom, start_time, end_time,
	duration_minutes, live_since, stopped_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*database.ClassSession, error) {
	var (
		s         database.ClassSession
		liveSince sql.NullTime
		stoppedAt sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.Subject,
		&s.Instructor,
		&s.Classroom,
		&s.StartTime,
		&s.EndTime,
		&s.DurationMinutes,
		&liveSince,
		&stoppedAt,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	if liveSince.Valid {
		s.LiveSince = &liveSince.Time
	}
	if stoppedAt.Valid {
		s.StoppedAt = &stoppedAt.Time
	}
	return &s, nil
}

func (r *SessionRepository) listSessions(ctx context.Context, query string, args ...any) ([]database.ClassSession, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []database.ClassSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// GetSession retrieves a session by ID, returns nil if not found
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*database.ClassSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, "SELECT "+sessionColumns+" FROM class_sessions WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListSessions returns all sessions, newest first
func (r *SessionRepository) ListSessions(ctx context.Context) ([]database.ClassSession, error) {
	return r.listSessions(ctx, "SELECT "+sessionColumns+" FROM class_sessions ORDER BY start_time DESC, id")
}

// ListLiveSessions returns sessions that were started and not stopped since
func (r *SessionRepository) ListLiveSessions(ctx context.Context) ([]database.ClassSession, error) {
	return r.listSessions(ctx, "SELECT "+sessionColumns+` FROM class_sessions
		WHERE live_since IS NOT NULL AND (stopped_at IS NULL OR stopped_at < live_since)
		ORDER BY start_time DESC, id`)
}

// CreateSession stores a new session
func (r *SessionRepository) CreateSession(ctx context.Context, s *database.ClassSession) error {
	query := `
		INSERT INTO class_sessions (id, subject, instructor, classroom, start_time, end_time, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		s.ID, s.Subject, s.Instructor, s.Classroom, s.StartTime, s.EndTime, s.DurationMinutes,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) setTimestamp(ctx context.Context, column, id string, at time.Time) error {
	result, err := r.pool.Exec(ctx, "UPDATE class_sessions SET "+column+" = $2 WHERE id = $1", id, at)
	if err != nil {
		return fmt.Errorf("update session %s: %w", column, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// MarkSessionLive records when tracking started
func (r *SessionRepository) MarkSessionLive(ctx context.Context, id string, at time.Time) error {
	return r.setTimestamp(ctx, "live_since", id, at)
}

// MarkSessionStopped records when tracking stopped
func (r *SessionRepository) MarkSessionStopped(ctx context.Context, id string, at time.Time) error {
	return r.setTimestamp(ctx, "stopped_at", id, at)
}

// PurgeSessionData removes a session's movements and attendance records
func (r *SessionRepository) PurgeSessionData(ctx context.Context, id string) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, "DELETE FROM movement_logs WHERE session_id = $1", id); err != nil {
		return fmt.Errorf("delete movements: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM attendance_records WHERE session_id = $1", id); err != nil {
		return fmt.Errorf("delete attendance records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purge: %w", err)
	}
	return nil
}

// DeleteSession removes a session; movements and records cascade
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM class_sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// PurgeReports removes every movement and attendance record
func (r *SessionRepository) PurgeReports(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "TRUNCATE movement_logs, attendance_records"); err != nil {
		return fmt.Errorf("purge reports: %w", err)
	}
	return nil
}

// PurgeSessions removes every session together with its movements and records
func (r *SessionRepository) PurgeSessions(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "TRUNCATE movement_logs, attendance_records, class_sessions"); err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	return nil
}
