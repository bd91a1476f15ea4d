package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const recordColumns = `ar.student_id, ar.session_id, ar.entry_time, ar.total_time_present,
	ar.percentage_present, ar.status, ar.reconciled, ar.updated_at`

func scanRecord(row rowScanner) (*database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var status string
	if err := row.Scan(
		&rec.StudentID, &rec.SessionID, &rec.EntryTime, &rec.TotalTimePresent,
		&rec.PercentagePresent, &status, &rec.Reconciled, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = database.AttendanceStatus(status)
	return &rec, nil
}

func (s *Store) listRecords(ctx context.Context, query string, args ...any) ([]database.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *Store) GetAttendanceRecord(ctx context.Context, sessionID, studentID string) (*database.AttendanceRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM attendance_records ar WHERE ar.session_id = ? AND ar.student_id = ?",
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
func (s *Store) ListAttendanceRecords(ctx context.Context, sessionID string) ([]database.AttendanceRecord, error) {
	return s.listRecords(ctx,
		"SELECT "+recordColumns+" FROM attendance_records ar WHERE ar.session_id = ? ORDER BY ar.student_id", sessionID)
}

// ListStudentAttendance returns a student's records, newest session first
func (s *Store) ListStudentAttendance(ctx context.Context, studentID string) ([]database.AttendanceRecord, error) {
	return s.listRecords(ctx, "SELECT "+recordColumns+`
		FROM attendance_records ar
		JOIN class_sessions cs ON cs.id = ar.session_id
		WHERE ar.student_id = ?
		ORDER BY cs.start_time DESC`, studentID)
}

// RecordArrival appends an entry and creates the attendance record if it is
// missing, in one transaction. A duplicate key on the record means the
// student arrived before; InnoDB keeps the transaction usable after it.
func (s *Store) RecordArrival(ctx context.Context, ev database.MovementEvent) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO movement_logs (student_id, session_id, kind, ts) VALUES (?, ?, 'entry', ?)",
		ev.StudentID, ev.SessionID, ev.Timestamp); err != nil {
		return false, fmt.Errorf("append entry: %w", err)
	}

	created := true
	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, entry_time, status, updated_at)
		VALUES (?, ?, ?, 'present', UTC_TIMESTAMP(6))
	`, ev.SessionID, ev.StudentID, ev.Timestamp)
	switch {
	case isDuplicate(err):
		created = false
	case err != nil:
		return false, fmt.Errorf("create attendance record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit arrival: %w", err)
	}
	return created, nil
}

// UpsertAttendanceRecord inserts or replaces a single record
func (s *Store) UpsertAttendanceRecord(ctx context.Context, rec database.AttendanceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, entry_time, total_time_present,
			percentage_present, status, reconciled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, UTC_TIMESTAMP(6))
		ON DUPLICATE KEY UPDATE
			entry_time = VALUES(entry_time),
			total_time_present = VALUES(total_time_present),
			percentage_present = VALUES(percentage_present),
			status = VALUES(status),
			reconciled = VALUES(reconciled),
			updated_at = VALUES(updated_at)
	`, rec.SessionID, rec.StudentID, rec.EntryTime, rec.TotalTimePresent,
		rec.PercentagePresent, string(rec.Status), rec.Reconciled)
	if err != nil {
		return fmt.Errorf("upsert attendance record: %w", err)
	}
	return nil
}

// ApplyReconciliation overwrites the reconciled figures of every record in
// one transaction.
func (s *Store) ApplyReconciliation(ctx context.Context, sessionID string, recs []database.AttendanceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(tx)

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE attendance_records
		SET total_time_present = ?, percentage_present = ?, status = ?,
		    reconciled = TRUE, updated_at = UTC_TIMESTAMP(6)
		WHERE session_id = ? AND student_id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		result, err := stmt.ExecContext(ctx, rec.TotalTimePresent, rec.PercentagePresent,
			string(rec.Status), sessionID, rec.StudentID)
		if err != nil {
			return fmt.Errorf("update attendance of %s: %w", rec.StudentID, err)
		}
		// ClientFoundRows makes this count matched rows, so unchanged values still report 1.
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("attendance record %s/%s: %w", sessionID, rec.StudentID, database.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reconciliation: %w", err)
	}
	return nil
}
