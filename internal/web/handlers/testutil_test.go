package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/tracking"
)

var testSessionStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// testClock is a settable tracking.Clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// setupMockStore registers a mock store as the active backend with one
// session "s1" (60 minutes) and students "alice" and "bob".
func setupMockStore(t *testing.T) *mock.MockStore {
	t.Helper()
	store := mock.NewMockStore()
	store.AddSession(database.ClassSession{
		ID:              "s1",
		Subject:         "Mathematics",
		StartTime:       testSessionStart,
		EndTime:         testSessionStart.Add(time.Hour),
		DurationMinutes: 60,
	})
	store.AddStudent(database.Student{ID: "alice", Name: "Alice Nováková", NormalizedName: "alice novakova"})
	store.AddStudent(database.Student{ID: "bob", Name: "Bob Dvořák", NormalizedName: "bob dvorak"})

	database.RegisterBackend("mock", func() database.Store { return store })
	t.Cleanup(database.ResetBackend)
	return store
}

// newTestTracker creates a tracker over store with a fake clock at session start
func newTestTracker(store tracking.Store, notifier tracking.Notifier) (*tracking.Tracker, *testClock) {
	clock := &testClock{now: testSessionStart}
	tr := tracking.New(store, tracking.Options{Clock: clock, Notifier: notifier})
	return tr, clock
}

// noLiveSessions returns a tracker with no sessions
func noLiveSessions() *tracking.Tracker {
	return tracking.New(mock.NewMockStore(), tracking.Options{})
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest builds a request with a JSON body and chi params
func jsonRequest(t *testing.T, method, path string, body any, params map[string]string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return requestWithChiParams(req, params)
}

// decodeBody unmarshals the recorder body into dst
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", rec.Body.String(), err)
	}
}
