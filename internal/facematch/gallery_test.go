package facematch

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

// arc returns a unit vector at angle i*step in the first two dimensions.
func arc(i int, step float64) []float32 {
	v := make([]float32, database.FaceEncodingDim)
	v[0] = float32(math.Cos(float64(i) * step))
	v[1] = float32(math.Sin(float64(i) * step))
	return v
}

func enroll(t *testing.T, store *mock.MockStore, studentID string, embeddings ...[]float32) {
	t.Helper()
	ctx := context.Background()
	if s, _ := store.GetStudent(ctx, studentID); s == nil {
		store.AddStudent(database.Student{ID: studentID, Name: studentID})
	}
	if _, err := store.SaveEncodings(ctx, studentID, embeddings); err != nil {
		t.Fatalf("SaveEncodings: %v", err)
	}
}

func TestGallery_MatchSmallGallery(t *testing.T) {
	store := mock.NewMockStore()
	enroll(t, store, "alice", arc(0, 0.5))
	enroll(t, store, "bob", arc(3, 0.5))

	g := NewGallery(store, Options{})
	if err := g.Enable(context.Background()); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}
	if g.Count() != 2 {
		t.Fatalf("expected 2 encodings, got %d", g.Count())
	}

	m, ok, err := g.Match(context.Background(), arc(3, 0.5))
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	if m.StudentID != "bob" || m.Distance > 1e-6 || math.Abs(m.Confidence-1) > 1e-6 {
		t.Errorf("unexpected match %+v", m)
	}
}

func TestGallery_NoMatchBeyondThreshold(t *testing.T) {
	store := mock.NewMockStore()
	enroll(t, store, "alice", arc(0, 1))

	g := NewGallery(store, Options{DistanceThreshold: 0.3})
	if err := g.Enable(context.Background()); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}
	// cos(1 rad) ~ 0.54, distance ~ 0.46
	if _, ok, _ := g.Match(context.Background(), arc(1, 1)); ok {
		t.Error("expected no match beyond the threshold")
	}
	if _, ok, _ := NewGallery(store, Options{}).Match(context.Background(), arc(1, 1)); ok {
		t.Error("expected no match from an empty gallery")
	}
}

func TestGallery_DimensionMismatch(t *testing.T) {
	g := NewGallery(mock.NewMockStore(), Options{})
	if _, _, err := g.Match(context.Background(), []float32{1, 2, 3}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestGallery_LargeGalleryUsesIndex(t *testing.T) {
	store := mock.NewMockStore()
	const n = 150
	step := math.Pi / n
	for i := 0; i < n; i++ {
		enroll(t, store, "student-"+string(rune('A'+i%26))+string(rune('a'+i/26)), arc(i, step))
	}

	g := NewGallery(store, Options{DistanceThreshold: 0.01})
	if err := g.Enable(context.Background()); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}
	if g.Count() <= bruteForceLimit {
		t.Fatalf("gallery too small to exercise the index: %d", g.Count())
	}

	query := arc(42, step)
	m, ok, err := g.Match(context.Background(), query)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	want := "student-" + string(rune('A'+42%26)) + string(rune('a'+42/26))
	if m.StudentID != want {
		t.Errorf("expected %s, got %+v", want, m)
	}
}

func TestGallery_AddAndRemoveStudent(t *testing.T) {
	store := mock.NewMockStore()
	g := NewGallery(store, Options{})
	ctx := context.Background()

	g.Add(database.StoredEncoding{ID: 7, StudentID: "carol", Embedding: arc(2, 0.7)})
	if _, ok, _ := g.Match(ctx, arc(2, 0.7)); !ok {
		t.Fatal("expected added encoding to match")
	}
	if removed := g.RemoveStudent("carol"); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok, _ := g.Match(ctx, arc(2, 0.7)); ok {
		t.Error("removed student must not match")
	}
}

func TestGallery_MatchAllDeduplicatesStudents(t *testing.T) {
	store := mock.NewMockStore()
	enroll(t, store, "alice", arc(0, 0.8))
	enroll(t, store, "bob", arc(2, 0.8))

	g := NewGallery(store, Options{})
	if err := g.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild returned error: %v", err)
	}

	slightlyOff := arc(0, 0.8)
	slightlyOff[2] = 0.1
	matches, err := g.MatchAll(context.Background(), [][]float32{slightlyOff, arc(0, 0.8), arc(2, 0.8), arc(5, 0.8)})
	if err != nil {
		t.Fatalf("MatchAll returned error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected alice and bob once each, got %+v", matches)
	}
	for _, m := range matches {
		if m.Distance > 1e-6 {
			t.Errorf("expected the exact encoding to win for %s, got distance %f", m.StudentID, m.Distance)
		}
	}
}

func TestGallery_EnableLoadsCachedIndex(t *testing.T) {
	store := mock.NewMockStore()
	enroll(t, store, "alice", arc(0, 0.5), arc(1, 0.5))
	path := filepath.Join(t.TempDir(), "gallery.hnsw")
	ctx := context.Background()

	first := NewGallery(store, Options{IndexPath: path})
	if err := first.Enable(ctx); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}
	meta, err := database.LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("expected index saved on first enable: %v", err)
	}
	if meta.EncodingCount != 2 {
		t.Errorf("expected 2 cached encodings, got %d", meta.EncodingCount)
	}

	second := NewGallery(store, Options{IndexPath: path})
	if err := second.Enable(ctx); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}
	if second.Count() != 2 {
		t.Errorf("expected 2 encodings after load, got %d", second.Count())
	}

	// A new enrollment makes the cache stale.
	enroll(t, store, "bob", arc(4, 0.5))
	third := NewGallery(store, Options{IndexPath: path})
	if err := third.Enable(ctx); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}
	if third.Count() != 3 {
		t.Errorf("expected rebuild with 3 encodings, got %d", third.Count())
	}
}

type vectorStore struct {
	*mock.MockStore
	calls int
}

func (s *vectorStore) FindNearestEncodings(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.EncodingMatch, error) {
	s.calls++
	return []database.EncodingMatch{{
		Encoding: database.StoredEncoding{ID: 3, StudentID: "dave"},
		Distance: 0.2,
	}}, nil
}

func TestGallery_StoreSearch(t *testing.T) {
	store := &vectorStore{MockStore: mock.NewMockStore()}
	g := NewGallery(store, Options{StoreSearch: true})
	if err := g.Enable(context.Background()); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}

	m, ok, err := g.Match(context.Background(), arc(0, 1))
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	if store.calls != 1 || m.StudentID != "dave" || math.Abs(m.Confidence-0.8) > 1e-9 {
		t.Errorf("unexpected match %+v after %d calls", m, store.calls)
	}
}
