package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance records
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const recordColumns = `student_id, session_id, entry_time, total_time_present,
	percentage_present, status, reconciled, updated_at`

func scanRecord(row rowScanner) (*database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var status string
	if err := row.Scan(
		&rec.StudentID,
		&rec.SessionID,
		&rec.EntryTime,
		&rec.TotalTimePresent,
		&rec.PercentagePresent,
		&status,
		&rec.Reconciled,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = database.AttendanceStatus(status)
	return &rec, nil
}

func (r *AttendanceRepository) listRecords(ctx context.Context, query string, args ...any) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}

// GetAttendanceRecord returns nil if the student has no record for the session
func (r *AttendanceRepository) GetAttendanceRecord(ctx context.Context, sessionID, studentID string) (*database.AttendanceRecord, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE session_id = $1 AND student_id = $2",
		sessionID, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance record: %w", err)
	}
	return rec, nil
}

// ListAttendanceRecords returns a session's records ordered by student ID
func (r *AttendanceRepository) ListAttendanceRecords(ctx context.Context, sessionID string) ([]database.AttendanceRecord, error) {
	return r.listRecords(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE session_id = $1 ORDER BY student_id", sessionID)
}

// ListStudentAttendance returns a student's records, newest session first
func (r *AttendanceRepository) ListStudentAttendance(ctx context.Context, studentID string) ([]database.AttendanceRecord, error) {
	return r.listRecords(ctx, `
		SELECT ar.student_id, ar.session_id, ar.entry_time, ar.total_time_present,
		       ar.percentage_present, ar.status, ar.reconciled, ar.updated_at
		FROM attendance_records ar
		JOIN class_sessions cs ON cs.id = ar.session_id
		WHERE ar.student_id = $1
		ORDER BY cs.start_time DESC`, studentID)
}

// RecordArrival appends an entry and creates the attendance record if it is
// missing, both in one transaction.
func (r *AttendanceRepository) RecordArrival(ctx context.Context, ev database.MovementEvent) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO movement_logs (student_id, session_id, kind, ts) VALUES ($1, $2, 'entry', $3)",
		ev.StudentID, ev.SessionID, ev.Timestamp); err != nil {
		return false, fmt.Errorf("append entry: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, entry_time, status)
		VALUES ($1, $2, $3, 'present')
		ON CONFLICT (session_id, student_id) DO NOTHING
	`, ev.SessionID, ev.StudentID, ev.Timestamp)
	if err != nil {
		return false, fmt.Errorf("create attendance record: %w", err)
	}
	created, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit arrival: %w", err)
	}
	return created > 0, nil
}

// UpsertAttendanceRecord inserts or replaces a single record
func (r *AttendanceRepository) UpsertAttendanceRecord(ctx context.Context, rec database.AttendanceRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_records (session_id, student_id, entry_time, total_time_present,
			percentage_present, status, reconciled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			entry_time = EXCLUDED.entry_time,
			total_time_present = EXCLUDED.total_time_present,
			percentage_present = EXCLUDED.percentage_present,
			status = EXCLUDED.status,
			reconciled = EXCLUDED.reconciled,
			updated_at = NOW()
	`, rec.SessionID, rec.StudentID, rec.EntryTime, rec.TotalTimePresent,
		rec.PercentagePresent, string(rec.Status), rec.Reconciled)
	if err != nil {
		return fmt.Errorf("upsert attendance record: %w", err)
	}
	return nil
}

// ApplyReconciliation overwrites the reconciled figures of every record in
// one transaction.
func (r *AttendanceRepository) ApplyReconciliation(ctx context.Context, sessionID string, recs []database.AttendanceRecord) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE attendance_records
		SET total_time_present = $3, percentage_present = $4, status = $5,
		    reconciled = TRUE, updated_at = NOW()
		WHERE session_id = $1 AND student_id = $2
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		result, err := stmt.ExecContext(ctx, sessionID, rec.StudentID,
			rec.TotalTimePresent, rec.PercentagePresent, string(rec.Status))
		if err != nil {
			return fmt.Errorf("update attendance of %s: %w", rec.StudentID, err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("attendance record %s/%s: %w", sessionID, rec.StudentID, database.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reconciliation: %w", err)
	}
	return nil
}
