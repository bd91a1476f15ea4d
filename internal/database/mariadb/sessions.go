package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const sessionColumns = `id, subject, instructor, classroom, start_time, end_time,
	duration_minutes, live_since, stopped_at, created_at`

func scanSession(row rowScanner) (*database.ClassSession, error) {
	var s database.ClassSession
	var liveSince, stoppedAt sql.NullTime
	if err := row.Scan(
		&s.ID, &s.Subject, &s.Instructor, &s.Classroom,
		&s.StartTime, &s.EndTime, &s.DurationMinutes,
		&liveSince, &stoppedAt, &s.CreatedAt,
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

func (s *Store) listSessions(ctx context.Context, query string, args ...any) ([]database.ClassSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []database.ClassSession
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// GetSession retrieves a session by ID, returns nil if not found
func (s *Store) GetSession(ctx context.Context, id string) (*database.ClassSession, error) {
	cs, err := scanSession(s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM class_sessions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return cs, nil
}

// ListSessions returns all sessions, newest first
func (s *Store) ListSessions(ctx context.Context) ([]database.ClassSession, error) {
	return s.listSessions(ctx, "SELECT "+sessionColumns+" FROM class_sessions ORDER BY start_time DESC, id")
}

// ListLiveSessions returns sessions that were started and not stopped since
func (s *Store) ListLiveSessions(ctx context.Context) ([]database.ClassSession, error) {
	return s.listSessions(ctx, "SELECT "+sessionColumns+` FROM class_sessions
		WHERE live_since IS NOT NULL AND (stopped_at IS NULL OR stopped_at < live_since)
		ORDER BY start_time DESC, id`)
}

// CreateSession stores a new session
func (s *Store) CreateSession(ctx context.Context, cs *database.ClassSession) error {
	cs.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO class_sessions (id, subject, instructor, classroom, start_time, end_time, duration_minutes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, cs.ID, cs.Subject, cs.Instructor, cs.Classroom, cs.StartTime, cs.EndTime, cs.DurationMinutes, cs.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) setTimestamp(ctx context.Context, column, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, "UPDATE class_sessions SET "+column+" = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("update session %s: %w", column, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// MarkSessionLive records when tracking started
func (s *Store) MarkSessionLive(ctx context.Context, id string, at time.Time) error {
	return s.setTimestamp(ctx, "live_since", id, at)
}

// MarkSessionStopped records when tracking stopped
func (s *Store) MarkSessionStopped(ctx context.Context, id string, at time.Time) error {
	return s.setTimestamp(ctx, "stopped_at", id, at)
}

// PurgeSessionData removes a session's movements and attendance records
func (s *Store) PurgeSessionData(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, "DELETE FROM movement_logs WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("delete movements: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM attendance_records WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("delete attendance records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purge: %w", err)
	}
	return nil
}

// DeleteSession removes a session; movements and records cascade
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM class_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// PurgeReports removes every movement and attendance record
func (s *Store) PurgeReports(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(tx)

	for _, table := range []string{"movement_logs", "attendance_records"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purge: %w", err)
	}
	return nil
}

// PurgeSessions removes every session together with its movements and records
func (s *Store) PurgeSessions(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(tx)

	for _, table := range []string{"movement_logs", "attendance_records", "class_sessions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purge: %w", err)
	}
	return nil
}
