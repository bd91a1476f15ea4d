package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/reconcile"
)

// SessionReconciler recomputes a session's attendance records.
type SessionReconciler interface {
	Reconcile(ctx context.Context, sessionID string) ([]reconcile.StudentResult, error)
}

// AttendanceHandler handles reconciliation and attendance record endpoints
type AttendanceHandler struct {
	reconciler SessionReconciler
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(reconciler SessionReconciler) *AttendanceHandler {
	return &AttendanceHandler{reconciler: reconciler}
}

type attendanceRecordResponse struct {
	StudentID         string  `json:"student_id"`
	SessionID         string  `json:"session_id"`
	EntryTime         string  `json:"entry_time"`
	TotalTimePresent  float64 `json:"total_time_present"`
	PercentagePresent float64 `json:"percentage_present"`
	Status            string  `json:"status"`
	Reconciled        bool    `json:"reconciled"`
	UpdatedAt         string  `json:"updated_at"`
}

func toRecordResponses(records []database.AttendanceRecord) []attendanceRecordResponse {
	resp := make([]attendanceRecordResponse, len(records))
	for i, rec := range records {
		resp[i] = attendanceRecordResponse{
			StudentID:         rec.StudentID,
			SessionID:         rec.SessionID,
			EntryTime:         formatTime(rec.EntryTime),
			TotalTimePresent:  rec.TotalTimePresent,
			PercentagePresent: rec.PercentagePresent,
			Status:            string(rec.Status),
			Reconciled:        rec.Reconciled,
			UpdatedAt:         formatTime(rec.UpdatedAt),
		}
	}
	return resp
}

type movementResponse struct {
	ID        int64  `json:"id"`
	StudentID string `json:"student_id"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

// Reconcile recomputes the session's attendance from the ledger
func (h *AttendanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	results, err := h.reconciler.Reconcile(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "students": results})
}

// List returns the session's attendance records
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	store := getStore(w, r)
	if store == nil {
		return
	}
	id := chi.URLParam(r, "id")
	if !sessionExists(w, r, store, id) {
		return
	}
	records, err := store.ListAttendanceRecords(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toRecordResponses(records))
}

// Movements returns the session's ledger in order
func (h *AttendanceHandler) Movements(w http.ResponseWriter, r *http.Request) {
	store := getStore(w, r)
	if store == nil {
		return
	}
	id := chi.URLParam(r, "id")
	if !sessionExists(w, r, store, id) {
		return
	}
	events, err := store.ListMovements(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	resp := make([]movementResponse, len(events))
	for i, ev := range events {
		resp[i] = movementResponse{
			ID:        ev.ID,
			StudentID: ev.StudentID,
			Kind:      string(ev.Kind),
			Timestamp: formatTime(ev.Timestamp),
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func sessionExists(w http.ResponseWriter, r *http.Request, store database.SessionReader, id string) bool {
	session, err := store.GetSession(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return false
	}
	if session == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return false
	}
	return true
}
