package database

import (
	"time"
)

// MovementKind is the kind of a ledger entry.
type MovementKind string

// Movement kinds recorded in the ledger.
const (
	MovementEntry MovementKind = "entry"
	MovementExit  MovementKind = "exit"
)

// Valid reports whether k is one of the known movement kinds.
func (k MovementKind) Valid() bool {
	return k == MovementEntry || k == MovementExit
}

// AttendanceStatus is the reconciled outcome for a student in a session.
type AttendanceStatus string

// Attendance statuses. A freshly created record is provisionally "present".
const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	StatusPartial AttendanceStatus = "partial"
)

// Attended reports whether the status counts as attended in reports.
func (s AttendanceStatus) Attended() bool {
	return s == StatusPresent || s == StatusLate
}

// ClassSession is a bounded window during which presence is tracked.
type ClassSession struct {
	ID              string
	Subject         string
	Instructor      string
	Classroom       string
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	LiveSince       *time.Time // set while the session is being tracked
	StoppedAt       *time.Time // set once tracking was stopped
	CreatedAt       time.Time
}

// IsLive reports whether the session was started and not stopped since.
func (s *ClassSession) IsLive() bool {
	if s.LiveSince == nil {
		return false
	}
	return s.StoppedAt == nil || s.StoppedAt.Before(*s.LiveSince)
}

// DurationFromWindow returns the whole minutes between start and end.
func DurationFromWindow(start, end time.Time) int {
	return int(end.Sub(start).Minutes())
}

// Student is a registered identity with a face gallery.
type Student struct {
	ID             string
	Name           string
	StudentCode    string
	Department     string
	NormalizedName string // lowercase, no diacritics, used for search
	CreatedAt      time.Time
}

// StoredEncoding is one face signature of a student.
type StoredEncoding struct {
	ID        int64
	StudentID string
	Embedding []float32
	CreatedAt time.Time
}

// MovementEvent is one ledger entry.
type MovementEvent struct {
	ID        int64 // assigned by the store, preserves insertion order
	StudentID string
	SessionID string
	Kind      MovementKind
	Timestamp time.Time
}

// AttendanceRecord is the per (student, session) presence summary.
type AttendanceRecord struct {
	StudentID         string
	SessionID         string
	EntryTime         time.Time
	TotalTimePresent  float64 // minutes
	PercentagePresent float64
	Status            AttendanceStatus
	Reconciled        bool
	UpdatedAt         time.Time
}

// MonthlyReport summarizes one student's attendance for a calendar month.
type MonthlyReport struct {
	StudentID    string
	Year         int
	Month        int
	TotalClasses int
	Attended     int
	Percentage   float64
}

// StudentAttendanceStats aggregates a student's attendance over all sessions.
type StudentAttendanceStats struct {
	Student              Student
	TotalClasses         int
	Attended             int
	AttendancePercentage float64
}

// DepartmentStats summarizes one department for the dashboard.
type DepartmentStats struct {
	Name           string
	TotalStudents  int
	ActiveStudents int // students with at least one attended session
	// AverageAttendance averages percentage_present over the department's
	// records; a student without records counts once as 0.
	AverageAttendance float64
}

// DashboardStats is the overview shown on the admin dashboard. The activity
// counters cover the window passed to ReportReader.DashboardStats.
type DashboardStats struct {
	TotalStudents    int
	TotalSessions    int
	TotalDepartments int
	Departments      []DepartmentStats

	NewRegistrations  int
	SessionsCompleted int
	// AverageAttendance averages percentage_present over sessions that
	// started inside the window.
	AverageAttendance float64
}

// Standing labels a student's overall attendance for the stats report.
func (s StudentAttendanceStats) Standing() string {
	switch {
	case s.TotalClasses == 0:
		return "No Attendance Records"
	case s.AttendancePercentage >= 75:
		return "Good"
	case s.AttendancePercentage >= 60:
		return "Warning"
	default:
		return "Critical"
	}
}
