package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/reconcile"
)

func seedLedger(store interface {
	AddMovement(database.MovementEvent)
	AddRecord(database.AttendanceRecord)
}) {
	at := func(min int) time.Time { return testSessionStart.Add(time.Duration(min) * time.Minute) }

	// alice: in the whole session
	store.AddMovement(database.MovementEvent{StudentID: "alice", SessionID: "s1", Kind: database.MovementEntry, Timestamp: at(0)})
	store.AddMovement(database.MovementEvent{StudentID: "alice", SessionID: "s1", Kind: database.MovementExit, Timestamp: at(60)})
	store.AddRecord(database.AttendanceRecord{StudentID: "alice", SessionID: "s1", EntryTime: at(0), Status: database.StatusPresent})

	// bob: out for 20 minutes
	store.AddMovement(database.MovementEvent{StudentID: "bob", SessionID: "s1", Kind: database.MovementEntry, Timestamp: at(0)})
	store.AddMovement(database.MovementEvent{StudentID: "bob", SessionID: "s1", Kind: database.MovementExit, Timestamp: at(20)})
	store.AddMovement(database.MovementEvent{StudentID: "bob", SessionID: "s1", Kind: database.MovementEntry, Timestamp: at(40)})
	store.AddMovement(database.MovementEvent{StudentID: "bob", SessionID: "s1", Kind: database.MovementExit, Timestamp: at(60)})
	store.AddRecord(database.AttendanceRecord{StudentID: "bob", SessionID: "s1", EntryTime: at(0), Status: database.StatusPresent})
}

func TestAttendanceHandler_Reconcile(t *testing.T) {
	store := setupMockStore(t)
	seedLedger(store)
	r := reconcile.New(store, reconcile.Options{Now: func() time.Time { return testSessionStart.Add(2 * time.Hour) }})
	h := NewAttendanceHandler(r)
	params := map[string]string{"id": "s1"}

	for range 2 {
		rec := httptest.NewRecorder()
		h.Reconcile(rec, jsonRequest(t, http.MethodPost, "/api/v1/sessions/s1/reconcile", nil, params))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	h.List(rec, jsonRequest(t, http.MethodGet, "/api/v1/sessions/s1/attendance", nil, params))
	var records []attendanceRecordResponse
	decodeBody(t, rec, &records)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	byStudent := map[string]attendanceRecordResponse{}
	for _, r := range records {
		byStudent[r.StudentID] = r
	}
	if a := byStudent["alice"]; a.Status != "present" || a.PercentagePresent != 100 || !a.Reconciled {
		t.Errorf("alice: unexpected %+v", a)
	}
	if b := byStudent["bob"]; b.Status != "partial" || b.TotalTimePresent != 40 {
		t.Errorf("bob: unexpected %+v", b)
	}
}

func TestAttendanceHandler_ReconcileErrors(t *testing.T) {
	store := setupMockStore(t)
	store.AddSession(database.ClassSession{ID: "zero", Subject: "x", StartTime: testSessionStart, EndTime: testSessionStart})
	h := NewAttendanceHandler(reconcile.New(store, reconcile.Options{}))

	tests := []struct {
		id   string
		want int
	}{
		{"missing", http.StatusNotFound},
		{"zero", http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Reconcile(rec, jsonRequest(t, http.MethodPost, "/", nil, map[string]string{"id": tc.id}))
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestAttendanceHandler_Movements(t *testing.T) {
	store := setupMockStore(t)
	seedLedger(store)
	h := NewAttendanceHandler(reconcile.New(store, reconcile.Options{}))

	rec := httptest.NewRecorder()
	h.Movements(rec, jsonRequest(t, http.MethodGet, "/", nil, map[string]string{"id": "s1"}))
	var moves []movementResponse
	decodeBody(t, rec, &moves)
	if len(moves) != 6 {
		t.Fatalf("expected 6 movements, got %d", len(moves))
	}
	for i := 1; i < len(moves); i++ {
		if moves[i].Timestamp < moves[i-1].Timestamp {
			t.Errorf("movements out of order at %d", i)
		}
	}

	rec = httptest.NewRecorder()
	h.Movements(rec, jsonRequest(t, http.MethodGet, "/", nil, map[string]string{"id": "missing"}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
