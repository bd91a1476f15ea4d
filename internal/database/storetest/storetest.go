// Package storetest holds the behavioral checks every database.Store backend
// must pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Run exercises store against the persistence contract. The store must be
// empty when passed in.
func Run(t *testing.T, store database.Store) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	session := &database.ClassSession{
		ID:              "sess-math",
		Subject:         "Mathematics",
		Instructor:      "Dr. Novak",
		Classroom:       "B204",
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		DurationMinutes: 60,
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for _, s := range []*database.Student{
		{ID: "stu-1", Name: "Jana Dvořáková", StudentCode: "A001", Department: "Informatics", NormalizedName: "jana dvorakova"},
		{ID: "stu-2", Name: "Petr Svoboda", Department: "Physics", NormalizedName: "petr svoboda"},
	} {
		if err := store.CreateStudent(ctx, s); err != nil {
			t.Fatalf("CreateStudent %s: %v", s.ID, err)
		}
	}

	t.Run("Ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})

	t.Run("Sessions", func(t *testing.T) {
		got, err := store.GetSession(ctx, "sess-math")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got == nil {
			t.Fatal("expected session, got nil")
		}
		if got.Subject != "Mathematics" || got.DurationMinutes != 60 {
			t.Errorf("unexpected session: %+v", got)
		}
		if !got.StartTime.Equal(start) {
			t.Errorf("expected start %v, got %v", start, got.StartTime)
		}
		if got.LiveSince != nil || got.StoppedAt != nil {
			t.Error("new session should not be live")
		}

		missing, err := store.GetSession(ctx, "nope")
		if err != nil {
			t.Fatalf("GetSession missing: %v", err)
		}
		if missing != nil {
			t.Error("expected nil for missing session")
		}
	})

	t.Run("LiveState", func(t *testing.T) {
		if err := store.MarkSessionLive(ctx, "sess-math", start); err != nil {
			t.Fatalf("MarkSessionLive: %v", err)
		}
		live, err := store.ListLiveSessions(ctx)
		if err != nil {
			t.Fatalf("ListLiveSessions: %v", err)
		}
		if len(live) != 1 || live[0].ID != "sess-math" {
			t.Fatalf("expected sess-math live, got %+v", live)
		}

		if err := store.MarkSessionStopped(ctx, "sess-math", start.Add(time.Hour)); err != nil {
			t.Fatalf("MarkSessionStopped: %v", err)
		}
		live, err = store.ListLiveSessions(ctx)
		if err != nil {
			t.Fatalf("ListLiveSessions: %v", err)
		}
		if len(live) != 0 {
			t.Errorf("expected no live sessions, got %d", len(live))
		}

		if err := store.MarkSessionLive(ctx, "nope", start); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Students", func(t *testing.T) {
		got, err := store.GetStudent(ctx, "stu-1")
		if err != nil {
			t.Fatalf("GetStudent: %v", err)
		}
		if got == nil || got.StudentCode != "A001" {
			t.Fatalf("unexpected student: %+v", got)
		}

		byName, err := store.FindStudentsByName(ctx, "petr svoboda")
		if err != nil {
			t.Fatalf("FindStudentsByName: %v", err)
		}
		if len(byName) != 1 || byName[0].ID != "stu-2" {
			t.Errorf("expected stu-2, got %+v", byName)
		}

		all, err := store.ListStudents(ctx)
		if err != nil {
			t.Fatalf("ListStudents: %v", err)
		}
		if len(all) != 2 || all[0].ID != "stu-1" {
			t.Errorf("expected students ordered by name, got %+v", all)
		}
	})

	t.Run("Encodings", func(t *testing.T) {
		emb := make([]float32, 128)
		emb[0] = 1
		saved, err := store.SaveEncodings(ctx, "stu-1", [][]float32{emb, emb})
		if err != nil {
			t.Fatalf("SaveEncodings: %v", err)
		}
		if len(saved) != 2 || saved[0].ID == 0 || saved[1].ID <= saved[0].ID {
			t.Fatalf("expected increasing IDs, got %+v", saved)
		}

		all, err := store.ListEncodings(ctx)
		if err != nil {
			t.Fatalf("ListEncodings: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected 2 encodings, got %d", len(all))
		}
		if len(all[0].Embedding) != 128 || all[0].Embedding[0] != 1 {
			t.Errorf("embedding not round-tripped: len=%d", len(all[0].Embedding))
		}

		if _, err := store.SaveEncodings(ctx, "nope", [][]float32{emb}); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown student, got %v", err)
		}
	})

	t.Run("Ledger", func(t *testing.T) {
		created, err := store.RecordArrival(ctx, database.MovementEvent{
			StudentID: "stu-1", SessionID: "sess-math", Kind: database.MovementEntry, Timestamp: start,
		})
		if err != nil {
			t.Fatalf("RecordArrival: %v", err)
		}
		if !created {
			t.Error("first arrival should create the record")
		}

		// Same timestamp as the re-entry below; insertion order must break the tie.
		at := start.Add(20 * time.Minute)
		if err := store.AppendMovement(ctx, database.MovementEvent{
			StudentID: "stu-1", SessionID: "sess-math", Kind: database.MovementExit, Timestamp: at,
		}); err != nil {
			t.Fatalf("AppendMovement: %v", err)
		}
		created, err = store.RecordArrival(ctx, database.MovementEvent{
			StudentID: "stu-1", SessionID: "sess-math", Kind: database.MovementEntry, Timestamp: at,
		})
		if err != nil {
			t.Fatalf("RecordArrival re-entry: %v", err)
		}
		if created {
			t.Error("re-entry must not create a second record")
		}

		err = store.AppendMovement(ctx, database.MovementEvent{
			StudentID: "stu-1", SessionID: "sess-math", Kind: "teleport", Timestamp: at,
		})
		if err == nil {
			t.Error("expected error for invalid kind")
		}

		events, err := store.ListMovements(ctx, "sess-math")
		if err != nil {
			t.Fatalf("ListMovements: %v", err)
		}
		kinds := make([]database.MovementKind, len(events))
		for i, ev := range events {
			kinds[i] = ev.Kind
		}
		want := []database.MovementKind{database.MovementEntry, database.MovementExit, database.MovementEntry}
		if len(kinds) != len(want) {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
		for i := range want {
			if kinds[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, kinds)
			}
		}

		rec, err := store.GetAttendanceRecord(ctx, "sess-math", "stu-1")
		if err != nil {
			t.Fatalf("GetAttendanceRecord: %v", err)
		}
		if rec == nil {
			t.Fatal("expected record")
		}
		if !rec.EntryTime.Equal(start) {
			t.Errorf("entry time should stay at first arrival, got %v", rec.EntryTime)
		}
		if rec.Status != database.StatusPresent || rec.Reconciled {
			t.Errorf("unexpected provisional record: %+v", rec)
		}
	})

	t.Run("ApplyReconciliation", func(t *testing.T) {
		err := store.ApplyReconciliation(ctx, "sess-math", []database.AttendanceRecord{
			{StudentID: "stu-1", TotalTimePresent: 55, PercentagePresent: 91.5, Status: database.StatusPresent},
		})
		if err != nil {
			t.Fatalf("ApplyReconciliation: %v", err)
		}
		rec, err := store.GetAttendanceRecord(ctx, "sess-math", "stu-1")
		if err != nil {
			t.Fatalf("GetAttendanceRecord: %v", err)
		}
		if !rec.Reconciled || rec.TotalTimePresent != 55 || rec.PercentagePresent != 91.5 {
			t.Errorf("reconciliation not applied: %+v", rec)
		}

		// A missing record aborts the whole batch.
		err = store.ApplyReconciliation(ctx, "sess-math", []database.AttendanceRecord{
			{StudentID: "stu-1", TotalTimePresent: 1, PercentagePresent: 1, Status: database.StatusPartial},
			{StudentID: "stu-2", TotalTimePresent: 1, PercentagePresent: 1, Status: database.StatusPartial},
		})
		if !errors.Is(err, database.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		rec, _ = store.GetAttendanceRecord(ctx, "sess-math", "stu-1")
		if rec.Status != database.StatusPresent || rec.TotalTimePresent != 55 {
			t.Errorf("failed batch must not change records, got %+v", rec)
		}
	})

	t.Run("Reports", func(t *testing.T) {
		second := &database.ClassSession{
			ID: "sess-phys", Subject: "Physics",
			StartTime: start.Add(24 * time.Hour), EndTime: start.Add(25 * time.Hour), DurationMinutes: 60,
		}
		if err := store.CreateSession(ctx, second); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if err := store.UpsertAttendanceRecord(ctx, database.AttendanceRecord{
			StudentID: "stu-1", SessionID: "sess-phys", EntryTime: second.StartTime,
			Status: database.StatusPartial, Reconciled: true,
		}); err != nil {
			t.Fatalf("UpsertAttendanceRecord: %v", err)
		}

		report, err := store.MonthlyReport(ctx, "stu-1", 2026, 3)
		if err != nil {
			t.Fatalf("MonthlyReport: %v", err)
		}
		if report.TotalClasses != 2 || report.Attended != 1 || report.Percentage != 50 {
			t.Errorf("unexpected monthly report: %+v", report)
		}

		low, err := store.LowAttendance(ctx, 75)
		if err != nil {
			t.Fatalf("LowAttendance: %v", err)
		}
		if len(low) != 1 || low[0].Student.ID != "stu-1" {
			t.Errorf("expected stu-1 below 75%%, got %+v", low)
		}

		stats, err := store.AttendanceStats(ctx)
		if err != nil {
			t.Fatalf("AttendanceStats: %v", err)
		}
		if len(stats) != 2 {
			t.Fatalf("expected stats for 2 students, got %d", len(stats))
		}
		if stats[1].Student.ID != "stu-2" || stats[1].Standing() != "No Attendance Records" {
			t.Errorf("unexpected stats for stu-2: %+v", stats[1])
		}
	})

	t.Run("Dashboard", func(t *testing.T) {
		day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		stats, err := store.DashboardStats(ctx, day, day.Add(12*time.Hour))
		if err != nil {
			t.Fatalf("DashboardStats: %v", err)
		}
		if stats.TotalStudents != 2 || stats.TotalSessions != 2 || stats.TotalDepartments != 2 {
			t.Errorf("unexpected totals: %+v", stats)
		}
		if len(stats.Departments) != 2 {
			t.Fatalf("expected 2 departments, got %+v", stats.Departments)
		}
		inf, phys := stats.Departments[0], stats.Departments[1]
		if inf.Name != "Informatics" || inf.TotalStudents != 1 || inf.ActiveStudents != 1 || math.Abs(inf.AverageAttendance-45.75) > 1e-9 {
			t.Errorf("unexpected Informatics stats: %+v", inf)
		}
		if phys.Name != "Physics" || phys.TotalStudents != 1 || phys.ActiveStudents != 0 || phys.AverageAttendance != 0 {
			t.Errorf("unexpected Physics stats: %+v", phys)
		}
		if stats.SessionsCompleted != 1 || math.Abs(stats.AverageAttendance-91.5) > 1e-9 {
			t.Errorf("unexpected activity for the session day: %+v", stats)
		}

		now := time.Now()
		recent, err := store.DashboardStats(ctx, now.Add(-time.Hour), now.Add(time.Hour))
		if err != nil {
			t.Fatalf("DashboardStats: %v", err)
		}
		if recent.NewRegistrations != 2 {
			t.Errorf("expected 2 registrations in the last hour, got %d", recent.NewRegistrations)
		}
	})

	t.Run("Purge", func(t *testing.T) {
		if err := store.PurgeSessionData(ctx, "sess-math"); err != nil {
			t.Fatalf("PurgeSessionData: %v", err)
		}
		events, err := store.ListMovements(ctx, "sess-math")
		if err != nil {
			t.Fatalf("ListMovements: %v", err)
		}
		if len(events) != 0 {
			t.Errorf("expected no movements, got %d", len(events))
		}
		if s, _ := store.GetSession(ctx, "sess-math"); s == nil {
			t.Error("purge must keep the session")
		}

		if err := store.DeleteSession(ctx, "sess-phys"); err != nil {
			t.Fatalf("DeleteSession: %v", err)
		}
		if err := store.DeleteSession(ctx, "sess-phys"); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := store.PurgeReports(ctx); err != nil {
			t.Fatalf("PurgeReports: %v", err)
		}

		if err := store.DeleteStudent(ctx, "stu-1"); err != nil {
			t.Fatalf("DeleteStudent: %v", err)
		}
		encodings, err := store.ListEncodings(ctx)
		if err != nil {
			t.Fatalf("ListEncodings: %v", err)
		}
		if len(encodings) != 0 {
			t.Errorf("encodings should be removed with the student, got %d", len(encodings))
		}

		if err := store.PurgeSessions(ctx); err != nil {
			t.Fatalf("PurgeSessions: %v", err)
		}
		sessions, err := store.ListSessions(ctx)
		if err != nil {
			t.Fatalf("ListSessions: %v", err)
		}
		if len(sessions) != 0 {
			t.Errorf("expected no sessions after purge, got %d", len(sessions))
		}
		if s, _ := store.GetStudent(ctx, "stu-2"); s == nil {
			t.Error("students must survive a session purge")
		}
	})
}
