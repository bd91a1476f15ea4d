package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// ReportRepository computes attendance reports in PostgreSQL
type ReportRepository struct {
	pool *Pool
}

// NewReportRepository creates a new PostgreSQL report repository
func NewReportRepository(pool *Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// attendedStatuses binds the statuses that count as attended.
func attendedStatuses() any {
	return pq.Array([]string{string(database.StatusPresent), string(database.StatusLate)})
}

// studentStatsQuery joins every student with their attended/total counts.
// $1 is attendedStatuses.
const studentStatsQuery = `
	SELECT s.id, s.name, COALESCE(s.student_code, ''), s.department, s.normalized_name, s.created_at,
	       COALESCE(st.total_classes, 0),
	       COALESCE(st.attended, 0),
	       COALESCE(st.attendance_percentage, 0)
	FROM students s
	LEFT JOIN (
		SELECT student_id,
		       COUNT(DISTINCT session_id) AS total_classes,
		       COUNT(DISTINCT session_id) FILTER (WHERE status = ANY($1)) AS attended,
		       COUNT(DISTINCT session_id) FILTER (WHERE status = ANY($1)) * 100.0
		           / NULLIF(COUNT(DISTINCT session_id), 0) AS attendance_percentage
		FROM attendance_records
		GROUP BY student_id
	) st ON st.student_id = s.id
`

func (r *ReportRepository) listStats(ctx context.Context, query string, args ...any) ([]database.StudentAttendanceStats, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance stats: %w", err)
	}
	defer rows.Close()

	var stats []database.StudentAttendanceStats
	for rows.Next() {
		var st database.StudentAttendanceStats
		if err := rows.Scan(
			&st.Student.ID,
			&st.Student.Name,
			&st.Student.StudentCode,
			&st.Student.Department,
			&st.Student.NormalizedName,
			&st.Student.CreatedAt,
			&st.TotalClasses,
			&st.Attended,
			&st.AttendancePercentage,
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
func (r *ReportRepository) MonthlyReport(ctx context.Context, studentID string, year, month int) (*database.MonthlyReport, error) {
	query := `
		SELECT COUNT(DISTINCT cs.id),
		       COUNT(DISTINCT cs.id) FILTER (WHERE ar.status = ANY($4))
		FROM class_sessions cs
		LEFT JOIN attendance_records ar ON ar.session_id = cs.id AND ar.student_id = $1
		WHERE EXTRACT(YEAR FROM cs.start_time) = $2 AND EXTRACT(MONTH FROM cs.start_time) = $3
	`
	report := &database.MonthlyReport{StudentID: studentID, Year: year, Month: month}
	if err := r.pool.QueryRow(ctx, query, studentID, year, month, attendedStatuses()).Scan(&report.TotalClasses, &report.Attended); err != nil {
		return nil, fmt.Errorf("monthly report: %w", err)
	}
	if report.TotalClasses > 0 {
		report.Percentage = float64(report.Attended) * 100 / float64(report.TotalClasses)
	}
	return report, nil
}

// LowAttendance returns students below threshold, lowest first
func (r *ReportRepository) LowAttendance(ctx context.Context, threshold float64) ([]database.StudentAttendanceStats, error) {
	return r.listStats(ctx, studentStatsQuery+`
		WHERE st.total_classes > 0 AND st.attendance_percentage < $2
		ORDER BY st.attendance_percentage ASC, s.name`, attendedStatuses(), threshold)
}

// AttendanceStats returns stats for all students ordered by name
func (r *ReportRepository) AttendanceStats(ctx context.Context) ([]database.StudentAttendanceStats, error) {
	return r.listStats(ctx, studentStatsQuery+" ORDER BY s.name, s.id", attendedStatuses())
}

// DashboardStats aggregates departments and the activity between since and until
func (r *ReportRepository) DashboardStats(ctx context.Context, since, until time.Time) (*database.DashboardStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.department,
		       COUNT(DISTINCT s.id),
		       COUNT(DISTINCT s.id) FILTER (WHERE ar.status = ANY($1)),
		       COALESCE(AVG(COALESCE(ar.percentage_present, 0)), 0)
		FROM students s
		LEFT JOIN attendance_records ar ON ar.student_id = s.id
		WHERE s.department <> ''
		GROUP BY s.department
		ORDER BY s.department`, attendedStatuses())
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

	err = r.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM students),
		       (SELECT COUNT(*) FROM class_sessions),
		       (SELECT COUNT(*) FROM students WHERE created_at BETWEEN $1 AND $2),
		       (SELECT COUNT(*) FROM class_sessions WHERE end_time BETWEEN $1 AND $2),
		       (SELECT COALESCE(AVG(ar.percentage_present), 0)
		          FROM attendance_records ar
		          JOIN class_sessions cs ON cs.id = ar.session_id
		         WHERE cs.start_time BETWEEN $1 AND $2)`, since, until).Scan(
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
