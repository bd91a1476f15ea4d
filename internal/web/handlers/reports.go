package handlers

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/tracking"
)

// ReportsHandler handles attendance report endpoints
type ReportsHandler struct {
	tracker      *tracking.Tracker
	lowThreshold float64
	now          func() time.Time
}

// NewReportsHandler creates a new reports handler. lowThreshold is the
// default cutoff of the low-attendance report.
func NewReportsHandler(tracker *tracking.Tracker, lowThreshold float64) *ReportsHandler {
	if lowThreshold <= 0 {
		lowThreshold = constants.DefaultLowAttendanceThreshold
	}
	return &ReportsHandler{tracker: tracker, lowThreshold: lowThreshold, now: time.Now}
}

type studentStatsResponse struct {
	Student              studentResponse `json:"student"`
	TotalClasses         int             `json:"total_classes"`
	Attended             int             `json:"attended"`
	AttendancePercentage float64         `json:"attendance_percentage"`
	Standing             string          `json:"standing"`
}

func toStatsResponses(stats []database.StudentAttendanceStats) []studentStatsResponse {
	resp := make([]studentStatsResponse, len(stats))
	for i := range stats {
		resp[i] = studentStatsResponse{
			Student:              toStudentResponse(&stats[i].Student),
			TotalClasses:         stats[i].TotalClasses,
			Attended:             stats[i].Attended,
			AttendancePercentage: stats[i].AttendancePercentage,
			Standing:             stats[i].Standing(),
		}
	}
	return resp
}

// Monthly returns one student's attendance for ?year=&month= (default: current month)
func (h *ReportsHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	year, month := now.Year(), int(now.Month())

	if s := r.URL.Query().Get("year"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1970 || v > 9999 {
			respondError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = v
	}
	if s := r.URL.Query().Get("month"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 12 {
			respondError(w, http.StatusBadRequest, "invalid month")
			return
		}
		month = v
	}

	store := getStore(w, r)
	if store == nil {
		return
	}
	studentID := chi.URLParam(r, "studentId")
	student, err := store.GetStudent(r.Context(), studentID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if student == nil {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}

	report, err := store.MonthlyReport(r.Context(), studentID, year, month)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"student":       toStudentResponse(student),
		"year":          report.Year,
		"month":         report.Month,
		"total_classes": report.TotalClasses,
		"attended":      report.Attended,
		"percentage":    report.Percentage,
	})
}

// LowAttendance lists students below ?threshold= percent
func (h *ReportsHandler) LowAttendance(w http.ResponseWriter, r *http.Request) {
	threshold := h.lowThreshold
	if s := r.URL.Query().Get("threshold"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 || v > 100 {
			respondError(w, http.StatusBadRequest, "threshold must be in (0, 100]")
			return
		}
		threshold = v
	}

	store := getStore(w, r)
	if store == nil {
		return
	}
	stats, err := store.LowAttendance(r.Context(), threshold)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"threshold": threshold,
		"students":  toStatsResponses(stats),
	})
}

// Stats returns attendance statistics of every student
func (h *ReportsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	store := getStore(w, r)
	if store == nil {
		return
	}
	stats, err := store.AttendanceStats(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStatsResponses(stats))
}

type departmentResponse struct {
	Name              string  `json:"name"`
	TotalStudents     int     `json:"total_students"`
	ActiveStudents    int     `json:"active_students"`
	AverageAttendance float64 `json:"average_attendance"`
}

type recentActivityResponse struct {
	NewRegistrationsToday  int     `json:"new_registrations_today"`
	SessionsCompletedToday int     `json:"sessions_completed_today"`
	AverageDailyAttendance float64 `json:"average_daily_attendance"`
}

type dashboardResponse struct {
	TotalDepartments int                    `json:"total_departments"`
	TotalStudents    int                    `json:"total_students"`
	TotalSessions    int                    `json:"total_sessions"`
	ActiveSessions   int                    `json:"active_sessions"`
	Departments      []departmentResponse   `json:"departments"`
	RecentActivity   recentActivityResponse `json:"recent_activity"`
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Dashboard returns department totals and today's activity
func (h *ReportsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	store := getStore(w, r)
	if store == nil {
		return
	}

	now := h.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	stats, err := store.DashboardStats(r.Context(), midnight, now)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	resp := dashboardResponse{
		TotalDepartments: stats.TotalDepartments,
		TotalStudents:    stats.TotalStudents,
		TotalSessions:    stats.TotalSessions,
		ActiveSessions:   len(h.tracker.ActiveSessions()),
		Departments:      make([]departmentResponse, len(stats.Departments)),
		RecentActivity: recentActivityResponse{
			NewRegistrationsToday:  stats.NewRegistrations,
			SessionsCompletedToday: stats.SessionsCompleted,
			AverageDailyAttendance: round1(stats.AverageAttendance),
		},
	}
	for i, d := range stats.Departments {
		resp.Departments[i] = departmentResponse{
			Name:              d.Name,
			TotalStudents:     d.TotalStudents,
			ActiveStudents:    d.ActiveStudents,
			AverageAttendance: round1(d.AverageAttendance),
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
