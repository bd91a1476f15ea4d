package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/tracking"
)

// RebuildIndexResponse represents the response from the gallery rebuild endpoint
type RebuildIndexResponse struct {
	Success       bool  `json:"success"`
	EncodingCount int   `json:"encoding_count"`
	DurationMs    int64 `json:"duration_ms"`
}

// AdminHandler handles destructive maintenance endpoints
type AdminHandler struct {
	tracker *tracking.Tracker
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(tracker *tracking.Tracker) *AdminHandler {
	return &AdminHandler{tracker: tracker}
}

// refuseWhileLive writes 409 when any session is tracked. Purging under a
// live table would leave it out of step with the ledger.
func (h *AdminHandler) refuseWhileLive(w http.ResponseWriter) bool {
	live := h.tracker.TrackedSessions()
	if len(live) == 0 {
		return false
	}
	respondError(w, http.StatusConflict,
		fmt.Sprintf("sessions are live (%s), stop them first", strings.Join(live, ", ")))
	return true
}

// PurgeReports removes every movement and attendance record. Sessions and
// students are kept.
func (h *AdminHandler) PurgeReports(w http.ResponseWriter, r *http.Request) {
	if h.refuseWhileLive(w) {
		return
	}
	store := getStore(w, r)
	if store == nil {
		return
	}
	if err := store.PurgeReports(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	slog.Warn("attendance reports purged")
	w.WriteHeader(http.StatusNoContent)
}

// PurgeSessions removes every session with its movements and records
func (h *AdminHandler) PurgeSessions(w http.ResponseWriter, r *http.Request) {
	if h.refuseWhileLive(w) {
		return
	}
	store := getStore(w, r)
	if store == nil {
		return
	}
	if err := store.PurgeSessions(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	slog.Warn("all sessions purged")
	w.WriteHeader(http.StatusNoContent)
}

// RebuildIndex reloads the face gallery from the store and saves it to disk
// when a path is configured.
func RebuildIndex(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	rebuilder := database.GetGalleryRebuilder()
	if rebuilder == nil {
		respondError(w, http.StatusServiceUnavailable, "face gallery not registered")
		return
	}
	if err := rebuilder.Rebuild(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if err := rebuilder.Save(); err != nil {
		// The rebuilt gallery is usable in memory.
		slog.Warn("failed to save face gallery", "error", err)
	}

	respondJSON(w, http.StatusOK, RebuildIndexResponse{
		Success:       true,
		EncodingCount: rebuilder.Count(),
		DurationMs:    time.Since(startTime).Milliseconds(),
	})
}
