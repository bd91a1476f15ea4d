package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

func TestReportsHandler_Monthly(t *testing.T) {
	store := setupMockStore(t)
	store.AddRecord(database.AttendanceRecord{StudentID: "alice", SessionID: "s1", Status: database.StatusPresent})
	h := NewReportsHandler(noLiveSessions(), 0)

	rec := httptest.NewRecorder()
	h.Monthly(rec, jsonRequest(t, http.MethodGet, "/?year=2026&month=3", nil, map[string]string{"studentId": "alice"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		TotalClasses int     `json:"total_classes"`
		Attended     int     `json:"attended"`
		Percentage   float64 `json:"percentage"`
	}
	decodeBody(t, rec, &resp)
	if resp.TotalClasses != 1 || resp.Attended != 1 || resp.Percentage != 100 {
		t.Errorf("unexpected report: %+v", resp)
	}

	tests := []struct {
		name  string
		query string
		id    string
		want  int
	}{
		{"bad month", "?year=2026&month=13", "alice", http.StatusBadRequest},
		{"bad year", "?year=abc", "alice", http.StatusBadRequest},
		{"unknown student", "", "nobody", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Monthly(rec, jsonRequest(t, http.MethodGet, "/"+tc.query, nil, map[string]string{"studentId": tc.id}))
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestReportsHandler_LowAttendance(t *testing.T) {
	store := setupMockStore(t)
	store.AddRecord(database.AttendanceRecord{StudentID: "alice", SessionID: "s1", Status: database.StatusPresent})
	store.AddRecord(database.AttendanceRecord{StudentID: "bob", SessionID: "s1", Status: database.StatusPartial})
	h := NewReportsHandler(noLiveSessions(), 75)

	rec := httptest.NewRecorder()
	h.LowAttendance(rec, jsonRequest(t, http.MethodGet, "/", nil, nil))
	var resp struct {
		Threshold float64                `json:"threshold"`
		Students  []studentStatsResponse `json:"students"`
	}
	decodeBody(t, rec, &resp)
	if resp.Threshold != 75 || len(resp.Students) != 1 || resp.Students[0].Student.ID != "bob" {
		t.Errorf("unexpected report: %+v", resp)
	}
	if resp.Students[0].Standing != "Critical" {
		t.Errorf("expected Critical standing, got %q", resp.Students[0].Standing)
	}

	for _, q := range []string{"?threshold=0", "?threshold=101", "?threshold=x"} {
		rec := httptest.NewRecorder()
		h.LowAttendance(rec, jsonRequest(t, http.MethodGet, "/"+q, nil, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestReportsHandler_Stats(t *testing.T) {
	store := setupMockStore(t)
	store.AddRecord(database.AttendanceRecord{StudentID: "alice", SessionID: "s1", Status: database.StatusLate})
	h := NewReportsHandler(noLiveSessions(), 0)

	rec := httptest.NewRecorder()
	h.Stats(rec, jsonRequest(t, http.MethodGet, "/", nil, nil))
	var stats []studentStatsResponse
	decodeBody(t, rec, &stats)
	if len(stats) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(stats))
	}
	if stats[0].Student.ID != "alice" || stats[0].Standing != "Good" {
		t.Errorf("unexpected first row: %+v", stats[0])
	}
	if stats[1].Standing != "No Attendance Records" {
		t.Errorf("unexpected second row: %+v", stats[1])
	}

	store.ReportError = errors.New("connection reset")
	rec = httptest.NewRecorder()
	h.Stats(rec, jsonRequest(t, http.MethodGet, "/", nil, nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestReportsHandler_Dashboard(t *testing.T) {
	store := setupMockStore(t)
	store.AddStudent(database.Student{ID: "carol", Name: "Carol Malá", Department: "Informatics", NormalizedName: "carol mala"})
	store.AddStudent(database.Student{ID: "dan", Name: "Dan Malý", Department: "Informatics", NormalizedName: "dan maly"})
	store.AddStudent(database.Student{ID: "eva", Name: "Eva Horká", Department: "Chemistry", NormalizedName: "eva horka"})
	store.AddRecord(database.AttendanceRecord{StudentID: "carol", SessionID: "s1", PercentagePresent: 95, Status: database.StatusPresent})
	store.AddRecord(database.AttendanceRecord{StudentID: "dan", SessionID: "s1", PercentagePresent: 40.04, Status: database.StatusPartial})

	tr, _ := newTestTracker(store, nil)
	if err := tr.StartSession(t.Context(), "s1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	h := NewReportsHandler(tr, 0)
	h.now = func() time.Time { return testSessionStart.Add(2 * time.Hour) }

	rec := httptest.NewRecorder()
	h.Dashboard(rec, jsonRequest(t, http.MethodGet, "/api/v1/dashboard/stats", nil, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp dashboardResponse
	decodeBody(t, rec, &resp)

	if resp.TotalStudents != 5 || resp.TotalSessions != 1 || resp.TotalDepartments != 2 || resp.ActiveSessions != 1 {
		t.Errorf("unexpected totals: %+v", resp)
	}
	want := []departmentResponse{
		{Name: "Chemistry", TotalStudents: 1, ActiveStudents: 0, AverageAttendance: 0},
		{Name: "Informatics", TotalStudents: 2, ActiveStudents: 1, AverageAttendance: 67.5},
	}
	if len(resp.Departments) != len(want) {
		t.Fatalf("expected %d departments, got %+v", len(want), resp.Departments)
	}
	for i := range want {
		if resp.Departments[i] != want[i] {
			t.Errorf("department %d: expected %+v, got %+v", i, want[i], resp.Departments[i])
		}
	}
	// s1 ended at 10:00, inside today's window at 11:00.
	if resp.RecentActivity.SessionsCompletedToday != 1 || resp.RecentActivity.AverageDailyAttendance != 67.5 {
		t.Errorf("unexpected activity: %+v", resp.RecentActivity)
	}

	store.ReportError = errors.New("db down")
	rec = httptest.NewRecorder()
	h.Dashboard(rec, jsonRequest(t, http.MethodGet, "/api/v1/dashboard/stats", nil, nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
