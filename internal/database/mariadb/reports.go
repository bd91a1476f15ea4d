package mariadb

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const studentStatsQuery = `
	SELECT s.id, s.name, COALESCE(s.student_code, ''), s.department, s.normalized_name, s.created_at,
	       COALESCE(st.total_classes, 0),
	       COALESCE(st.attended, 0),
	       COALESCE(st.attended * 100.0 / NULLIF(st.total_classes, 0), 0) AS attendance_percentage
	FROM students s
	LEFT JOIN (
		SELECT student_id,
		       COUNT(DISTINCT session_id) AS total_classes,
		       COUNT(DISTINCT CASE WHEN status IN ('present', 'late') THEN session_id END) AS attended
		FROM attendance_records
		GROUP BY student_id
	) st ON st.student_id = s.id
`

func (s *Store) listStats(ctx context.Context, query string, args ...any) ([]database.StudentAttendanceStats, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance stats: %w", err)
	}
	defer rows.Close()

	var stats []database.StudentAttendanceStats
	for rows.Next() {
		var st database.StudentAttendanceStats
		if err := rows.Scan(
			&st.Student.ID, &st.Student.Name, &st.Student.StudentCode, &st.Student.Department,
			&st.Student.NormalizedName, &st.Student.CreatedAt,
			&st.TotalClasses, &st.Attended, &st.AttendancePercentage,
		); err != nil {
			return nil, fmt.Errorf("scan attendance stats: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance stats: %w", err)
	}
	return stats, nil
}

// MonthlyReport counts the month's sessions and the ones the student attended
func (s *Store) MonthlyReport(ctx context.Context, studentID string, year, month int) (*database.MonthlyReport, error) {
	query := `
		SELECT COUNT(DISTINCT cs.id),
		       COUNT(DISTINCT CASE WHEN ar.status IN ('present', 'late') THEN cs.id END)
		FROM class_sessions cs
		LEFT JOIN attendance_records ar ON ar.session_id = cs.id AND ar.student_id = ?
		WHERE YEAR(cs.start_time) = ? AND MONTH(cs.start_time) = ?
	`
	report := &database.MonthlyReport{StudentID: studentID, Year: year, Month: month}
	if err := s.db.QueryRowContext(ctx, query, studentID, year, month).Scan(&report.TotalClasses, &report.Attended); err != nil {
		return nil, fmt.Errorf("monthly report: %w", err)
	}
	if report.TotalClasses > 0 {
		report.Percentage = float64(report.Attended) * 100 / float64(report.TotalClasses)
	}
	return report, nil
}

// LowAttendance returns students below threshold, lowest first
func (s *Store) LowAttendance(ctx context.Context, threshold float64) ([]database.StudentAttendanceStats, error) {
	return s.listStats(ctx, studentStatsQuery+`
		WHERE st.total_classes > 0 AND st.attended * 100.0 / st.total_classes < ?
		ORDER BY attendance_percentage ASC, s.name`, threshold)
}

// AttendanceStats returns stats for all students ordered by name
func (s *Store) AttendanceStats(ctx context.Context) ([]database.StudentAttendanceStats, error) {
	return s.listStats(ctx, studentStatsQuery+" ORDER BY s.name, s.id")
}

// DashboardStats aggregates departments and the activity between since and until
func (s *Store) DashboardStats(ctx context.Context, since, until time.Time) (*database.DashboardStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.department,
		       COUNT(DISTINCT s.id),
		       COUNT(DISTINCT CASE WHEN ar.status IN ('present', 'late') THEN s.id END),
		       COALESCE(AVG(COALESCE(ar.percentage_present, 0)), 0)
		FROM students s
		LEFT JOIN attendance_records ar ON ar.student_id = s.id
		WHERE s.department <> ''
		GROUP BY s.department
		ORDER BY s.department`)
	if err != nil {
		return nil, fmt.Errorf("query department stats: %w", err)
	}
	defer rows.Close()

	stats := &database.DashboardStats{}
	for rows.Next() {
		var d database.DepartmentStats
		if err := rows.Scan(&d.Name, &d.TotalStudents, &d.ActiveStudents, &d.AverageAttendance); err != nil {
			return nil, fmt.Errorf("scan department stats: %w", err)
		}
		stats.Departments = append(stats.Departments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate department stats: %w", err)
	}
	stats.TotalDepartments = len(stats.Departments)

	since, until = since.UTC(), until.UTC()
	err = s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM students),
		       (SELECT COUNT(*) FROM class_sessions),
		       (SELECT COUNT(*) FROM students WHERE created_at BETWEEN ? AND ?),
		       (SELECT COUNT(*) FROM class_sessions WHERE end_time BETWEEN ? AND ?),
		       (SELECT COALESCE(AVG(ar.percentage_present), 0)
		          FROM attendance_records ar
		          JOIN class_sessions cs ON cs.id = ar.session_id
		         WHERE cs.start_time BETWEEN ? AND ?)`,
		since, until, since, until, since, until).Scan(
		&stats.TotalStudents,
		&stats.TotalSessions,
		&stats.NewRegistrations,
		&stats.SessionsCompleted,
		&stats.AverageAttendance,
	)
	if err != nil {
		return nil, fmt.Errorf("dashboard totals: %w", err)
	}
	return stats, nil
}
