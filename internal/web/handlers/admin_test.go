package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/tracking"
)

func TestRebuildIndex(t *testing.T) {
	store := setupMockStore(t)

	rec := httptest.NewRecorder()
	RebuildIndex(rec, jsonRequest(t, http.MethodPost, "/", nil, nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("without gallery: expected 503, got %d", rec.Code)
	}

	if _, err := store.SaveEncodings(t.Context(), "alice", [][]float32{axis(0), axis(1)}); err != nil {
		t.Fatalf("SaveEncodings: %v", err)
	}
	gallery := facematch.NewGallery(store, facematch.Options{})
	database.RegisterGalleryRebuilder(gallery)

	rec = httptest.NewRecorder()
	RebuildIndex(rec, jsonRequest(t, http.MethodPost, "/", nil, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp RebuildIndexResponse
	decodeBody(t, rec, &resp)
	if !resp.Success || resp.EncodingCount != 2 || gallery.Count() != 2 {
		t.Errorf("unexpected response %+v (gallery %d)", resp, gallery.Count())
	}
}

func TestAdminHandler_PurgeReports(t *testing.T) {
	store := setupMockStore(t)
	seedLedger(store)
	h := NewAdminHandler(noLiveSessions())

	rec := httptest.NewRecorder()
	h.PurgeReports(rec, jsonRequest(t, http.MethodDelete, "/", nil, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if n := len(store.Movements()); n != 0 {
		t.Errorf("expected empty ledger, got %d events", n)
	}
	if s, _ := store.GetSession(t.Context(), "s1"); s == nil {
		t.Error("sessions must survive a purge")
	}
}

func TestAdminHandler_PurgeRefusedWhileLive(t *testing.T) {
	store := setupMockStore(t)
	tr, _ := newTestTracker(store, nil)
	if err := tr.StartSession(t.Context(), "s1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := tr.ObserveMatch(t.Context(), tracking.Observation{SessionID: "s1", StudentID: "alice"}); err != nil {
		t.Fatalf("ObserveMatch: %v", err)
	}
	h := NewAdminHandler(tr)

	for name, purge := range map[string]http.HandlerFunc{
		"reports":  h.PurgeReports,
		"sessions": h.PurgeSessions,
	} {
		rec := httptest.NewRecorder()
		purge(rec, jsonRequest(t, http.MethodDelete, "/", nil, nil))
		if rec.Code != http.StatusConflict {
			t.Errorf("%s: expected 409 while live, got %d", name, rec.Code)
		}
	}
	if n := len(store.Movements()); n != 1 {
		t.Fatalf("ledger must be untouched, got %d events", n)
	}

	// After the stop the ledger holds entry and exit and a purge goes through.
	if err := tr.StopSession(t.Context(), "s1"); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	rec := httptest.NewRecorder()
	h.PurgeReports(rec, jsonRequest(t, http.MethodDelete, "/", nil, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 after stop, got %d", rec.Code)
	}
}

func TestAdminHandler_PurgeRefusedWhileStopPending(t *testing.T) {
	store := setupMockStore(t)
	tr, _ := newTestTracker(store, nil)
	if err := tr.StartSession(t.Context(), "s1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := tr.ObserveMatch(t.Context(), tracking.Observation{SessionID: "s1", StudentID: "alice"}); err != nil {
		t.Fatalf("ObserveMatch: %v", err)
	}
	store.AppendError = errors.New("ledger unavailable")
	if err := tr.StopSession(t.Context(), "s1"); err == nil {
		t.Fatal("expected StopSession to fail")
	}

	rec := httptest.NewRecorder()
	NewAdminHandler(tr).PurgeSessions(rec, jsonRequest(t, http.MethodDelete, "/", nil, nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 while the stop is pending, got %d", rec.Code)
	}
}

func TestAdminHandler_PurgeSessions(t *testing.T) {
	store := setupMockStore(t)
	seedLedger(store)
	h := NewAdminHandler(noLiveSessions())

	rec := httptest.NewRecorder()
	h.PurgeSessions(rec, jsonRequest(t, http.MethodDelete, "/", nil, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	sessions, _ := store.ListSessions(t.Context())
	if len(sessions) != 0 || len(store.Movements()) != 0 {
		t.Errorf("expected sessions and ledger gone, got %d sessions %d events", len(sessions), len(store.Movements()))
	}
	if s, _ := store.GetStudent(t.Context(), "alice"); s == nil {
		t.Error("students must survive a session purge")
	}
}
