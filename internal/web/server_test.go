package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/reconcile"
	"github.com/kozaktomas/face-attendance/internal/tracking"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

const testToken = "secret-token"

func newTestServer(t *testing.T) (*Server, *mock.MockStore) {
	t.Helper()
	store := mock.NewMockStore()
	database.RegisterBackend("mock", func() database.Store { return store })
	t.Cleanup(database.ResetBackend)

	broadcaster := handlers.NewEventBroadcaster()
	cfg := &config.Config{
		Web:        config.WebConfig{Host: "127.0.0.1", Port: 0, APIToken: testToken},
		Attendance: config.AttendanceConfig{LowThreshold: 75},
		Matching:   config.MatchingConfig{EmbeddingDim: database.FaceEncodingDim},
	}
	srv := NewServer(cfg, Deps{
		Tracker:     tracking.New(store, tracking.Options{Notifier: broadcaster}),
		Reconciler:  reconcile.New(store, reconcile.Options{}),
		Gallery:     facematch.NewGallery(store, facematch.Options{}),
		Broadcaster: broadcaster,
	})
	return srv, store
}

func do(t *testing.T, srv *Server, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthWithoutToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestAPIRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	if rec := do(t, srv, http.MethodGet, "/api/v1/sessions", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("without token: expected 401, got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/v1/sessions", nil, "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: expected 401, got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/v1/sessions", nil, testToken); rec.Code != http.StatusOK {
		t.Errorf("with token: expected 200, got %d", rec.Code)
	}
}

func TestSessionFlowThroughRouter(t *testing.T) {
	srv, store := newTestServer(t)
	start := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)

	store.AddStudent(database.Student{ID: "alice", Name: "Alice", NormalizedName: "alice"})

	rec := do(t, srv, http.MethodPost, "/api/v1/sessions", map[string]any{
		"id":         "s1",
		"subject":    "Biology",
		"start_time": start,
		"end_time":   start.Add(time.Hour),
	}, testToken)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	steps := []struct {
		method string
		path   string
		body   any
		want   int
	}{
		{http.MethodPost, "/api/v1/sessions/s1/observations", []map[string]any{{"student_id": "alice", "confidence": 0.9}}, http.StatusConflict},
		{http.MethodPost, "/api/v1/sessions/s1/start", nil, http.StatusOK},
		{http.MethodPost, "/api/v1/sessions/s1/observations", []map[string]any{{"student_id": "alice", "confidence": 0.9}}, http.StatusOK},
		{http.MethodGet, "/api/v1/sessions/s1/presence", nil, http.StatusOK},
		{http.MethodDelete, "/api/v1/admin/reports", nil, http.StatusConflict},
		{http.MethodDelete, "/api/v1/students/alice", nil, http.StatusConflict},
		{http.MethodPost, "/api/v1/sessions/s1/stop", nil, http.StatusOK},
		{http.MethodPost, "/api/v1/sessions/s1/reconcile", nil, http.StatusOK},
		{http.MethodGet, "/api/v1/sessions/s1/attendance", nil, http.StatusOK},
		{http.MethodGet, "/api/v1/sessions/s1/movements", nil, http.StatusOK},
		{http.MethodGet, "/api/v1/reports/stats", nil, http.StatusOK},
		{http.MethodGet, "/api/v1/dashboard/stats", nil, http.StatusOK},
		{http.MethodPost, "/api/v1/admin/rebuild-index", nil, http.StatusServiceUnavailable},
	}
	for _, step := range steps {
		rec := do(t, srv, step.method, step.path, step.body, testToken)
		if rec.Code != step.want {
			t.Fatalf("%s %s: expected %d, got %d: %s", step.method, step.path, step.want, rec.Code, rec.Body.String())
		}
	}

	moves := store.Movements()
	if len(moves) != 2 || moves[0].Kind != database.MovementEntry || moves[1].Kind != database.MovementExit {
		t.Errorf("expected entry then exit, got %+v", moves)
	}
}
