package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by writers when the row they target does not exist.
// Readers return (nil, nil) instead.
var ErrNotFound = errors.New("not found")

// MovementLedger is the append-only store of entry/exit events.
type MovementLedger interface {
	// AppendMovement durably appends one event; it has been committed when this returns nil
	AppendMovement(ctx context.Context, ev MovementEvent) error
	// ListMovements returns a session's events ordered by timestamp, then insertion order
	ListMovements(ctx context.Context, sessionID string) ([]MovementEvent, error)
}

// AttendanceReader provides read-only access to attendance records
type AttendanceReader interface {
	// GetAttendanceRecord returns nil if the student has no record for the session
	GetAttendanceRecord(ctx context.Context, sessionID, studentID string) (*AttendanceRecord, error)
	// ListAttendanceRecords returns all records of a session ordered by student ID
	ListAttendanceRecords(ctx context.Context, sessionID string) ([]AttendanceRecord, error)
	// ListStudentAttendance returns all records of a student
	ListStudentAttendance(ctx context.Context, studentID string) ([]AttendanceRecord, error)
}

// AttendanceWriter provides write access to attendance records
type AttendanceWriter interface {
	AttendanceReader

	// RecordArrival appends an entry event and, if the student has no attendance
	// record for the session yet, creates one with EntryTime = ev.Timestamp and
	// status present. Both happen in one transaction. Reports whether the record
	// was created.
	RecordArrival(ctx context.Context, ev MovementEvent) (bool, error)

	// UpsertAttendanceRecord inserts or replaces a single record
	UpsertAttendanceRecord(ctx context.Context, rec AttendanceRecord) error

	// ApplyReconciliation overwrites the reconciled fields of every given record
	// in a single transaction. Either all records are updated or none.
	ApplyReconciliation(ctx context.Context, sessionID string, recs []AttendanceRecord) error
}

// SessionReader provides read-only access to class sessions
type SessionReader interface {
	// GetSession returns nil if the session does not exist
	GetSession(ctx context.Context, id string) (*ClassSession, error)
	// ListSessions returns sessions, newest start time first
	ListSessions(ctx context.Context) ([]ClassSession, error)
	// ListLiveSessions returns sessions that were started and not stopped
	ListLiveSessions(ctx context.Context) ([]ClassSession, error)
}

// SessionWriter provides write access to class sessions
type SessionWriter interface {
	SessionReader

	CreateSession(ctx context.Context, s *ClassSession) error
	MarkSessionLive(ctx context.Context, id string, at time.Time) error
	MarkSessionStopped(ctx context.Context, id string, at time.Time) error

	// PurgeSessionData removes a session's movements and attendance records
	PurgeSessionData(ctx context.Context, id string) error
	// DeleteSession removes the session together with its data
	DeleteSession(ctx context.Context, id string) error
	// PurgeReports removes all movements and attendance records
	PurgeReports(ctx context.Context) error
	// PurgeSessions removes every session with its movements and records
	PurgeSessions(ctx context.Context) error
}

// StudentReader provides read-only access to students and their face gallery
type StudentReader interface {
	// GetStudent returns nil if the student does not exist
	GetStudent(ctx context.Context, id string) (*Student, error)
	ListStudents(ctx context.Context) ([]Student, error)
	// FindStudentsByName matches on the normalized name (see facematch.NormalizeStudentName)
	FindStudentsByName(ctx context.Context, normalizedName string) ([]Student, error)
	// ListEncodings returns every stored face encoding, used to build the gallery
	ListEncodings(ctx context.Context) ([]StoredEncoding, error)
}

// StudentWriter provides write access to students and their face gallery
type StudentWriter interface {
	StudentReader

	CreateStudent(ctx context.Context, s *Student) error
	// DeleteStudent removes the student, their encodings and attendance history
	DeleteStudent(ctx context.Context, id string) error
	// SaveEncodings appends encodings for a student and returns them with IDs set
	SaveEncodings(ctx context.Context, studentID string, embeddings [][]float32) ([]StoredEncoding, error)
}

// ReportReader provides the aggregated attendance reports
type ReportReader interface {
	MonthlyReport(ctx context.Context, studentID string, year, month int) (*MonthlyReport, error)
	// LowAttendance returns students with at least one class whose percentage is below threshold
	LowAttendance(ctx context.Context, threshold float64) ([]StudentAttendanceStats, error)
	// AttendanceStats returns stats for every student, ordered by name
	AttendanceStats(ctx context.Context) ([]StudentAttendanceStats, error)
	// DashboardStats returns overall counts, per-department totals ordered by
	// name, and the activity between since and until
	DashboardStats(ctx context.Context, since, until time.Time) (*DashboardStats, error)
}

// Store is the full persistence contract implemented by every backend.
type Store interface {
	MovementLedger
	AttendanceWriter
	SessionWriter
	StudentWriter
	ReportReader

	Ping(ctx context.Context) error
}

// EncodingMatch is a stored encoding with its cosine distance to a query.
type EncodingMatch struct {
	Encoding StoredEncoding
	Distance float64
}

// NearestEncodingFinder is implemented by backends that can search encodings
// server side (pgvector). Results are ordered by distance.
type NearestEncodingFinder interface {
	FindNearestEncodings(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]EncodingMatch, error)
}
