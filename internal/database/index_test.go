package database

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func unitVector(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"scaled encoding", []float32{0.2, 0.4}, []float32{2, 4}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1}, MaxEncodingDistance},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, MaxEncodingDistance},
		{"empty", nil, nil, MaxEncodingDistance},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineDistance(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("CosineDistance = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestEncodingIndex_SearchFindsNearest(t *testing.T) {
	idx := NewEncodingIndex()
	idx.Build([]StoredEncoding{
		{ID: 1, StudentID: "alice", Embedding: unitVector(8, 0)},
		{ID: 2, StudentID: "bob", Embedding: unitVector(8, 3)},
		{ID: 3, StudentID: "carol", Embedding: unitVector(8, 6)},
	})

	if idx.Count() != 3 {
		t.Fatalf("expected 3 encodings, got %d", idx.Count())
	}

	ids, distances, err := idx.Search(unitVector(8, 3), 1)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("expected nearest id 2, got %v", ids)
	}
	if distances[0] > 1e-6 {
		t.Errorf("expected distance ~0, got %f", distances[0])
	}
	if enc := idx.Get(2); enc == nil || enc.StudentID != "bob" {
		t.Errorf("expected encoding of bob, got %+v", enc)
	}
}

func TestEncodingIndex_EmptySearchFails(t *testing.T) {
	idx := NewEncodingIndex()
	if !idx.IsEmpty() {
		t.Fatal("expected empty index")
	}
	if _, _, err := idx.Search(unitVector(4, 0), 1); err == nil {
		t.Fatal("expected error searching an empty index")
	}
}

func TestEncodingIndex_DeleteStudentFiltersResults(t *testing.T) {
	idx := NewEncodingIndex()
	idx.Add(
		StoredEncoding{ID: 1, StudentID: "alice", Embedding: unitVector(8, 0)},
		StoredEncoding{ID: 2, StudentID: "alice", Embedding: unitVector(8, 1)},
		StoredEncoding{ID: 3, StudentID: "bob", Embedding: unitVector(8, 4)},
	)

	if removed := idx.DeleteStudent("alice"); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	ids, _, err := idx.Search(unitVector(8, 0), 3)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	for _, id := range ids {
		if id == 1 || id == 2 {
			t.Errorf("deleted encoding %d returned by search", id)
		}
	}
}

func TestEncodingIndex_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.hnsw")

	idx := NewEncodingIndex()
	idx.Build([]StoredEncoding{
		{ID: 10, StudentID: "alice", Embedding: unitVector(8, 0), CreatedAt: time.Now()},
		{ID: 11, StudentID: "bob", Embedding: unitVector(8, 5), CreatedAt: time.Now()},
	})
	if err := idx.SaveWithEncodings(path); err != nil {
		t.Fatalf("SaveWithEncodings returned error: %v", err)
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("LoadHNSWMetadata returned error: %v", err)
	}
	if meta.EncodingCount != 2 || meta.MaxEncodingID != 11 {
		t.Errorf("unexpected metadata %+v", meta)
	}

	loaded := NewEncodingIndex()
	if err := loaded.LoadWithEncodings(path); err != nil {
		t.Fatalf("LoadWithEncodings returned error: %v", err)
	}
	ids, _, err := loaded.Search(unitVector(8, 5), 1)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(ids) != 1 || ids[0] != 11 {
		t.Errorf("expected id 11 after reload, got %v", ids)
	}
}

func TestClassSession_IsLive(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	stop := start.Add(time.Hour)
	restart := stop.Add(time.Minute)

	tests := []struct {
		name    string
		session ClassSession
		want    bool
	}{
		{"never started", ClassSession{}, false},
		{"started", ClassSession{LiveSince: &start}, true},
		{"stopped", ClassSession{LiveSince: &start, StoppedAt: &stop}, false},
		{"restarted", ClassSession{LiveSince: &restart, StoppedAt: &stop}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.session.IsLive(); got != tc.want {
				t.Errorf("IsLive() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDurationFromWindow(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if got := DurationFromWindow(start, start.Add(90*time.Minute)); got != 90 {
		t.Errorf("expected 90 minutes, got %d", got)
	}
}

func TestStudentAttendanceStats_Standing(t *testing.T) {
	tests := []struct {
		stats StudentAttendanceStats
		want  string
	}{
		{StudentAttendanceStats{}, "No Attendance Records"},
		{StudentAttendanceStats{TotalClasses: 4, AttendancePercentage: 75}, "Good"},
		{StudentAttendanceStats{TotalClasses: 5, AttendancePercentage: 60}, "Warning"},
		{StudentAttendanceStats{TotalClasses: 5, AttendancePercentage: 40}, "Critical"},
	}
	for _, tc := range tests {
		if got := tc.stats.Standing(); got != tc.want {
			t.Errorf("Standing(%+v) = %q, want %q", tc.stats, got, tc.want)
		}
	}
}
