package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/tracking"
)

// SessionsHandler handles class session lifecycle endpoints
type SessionsHandler struct {
	tracker     *tracking.Tracker
	broadcaster *EventBroadcaster
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(tracker *tracking.Tracker, broadcaster *EventBroadcaster) *SessionsHandler {
	return &SessionsHandler{tracker: tracker, broadcaster: broadcaster}
}

type sessionResponse struct {
	ID              string  `json:"id"`
	Subject         string  `json:"subject"`
	Instructor      string  `json:"instructor"`
	Classroom       string  `json:"classroom"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	DurationMinutes int     `json:"duration_minutes"`
	Active          bool    `json:"active"`
	LiveSince       *string `json:"live_since,omitempty"`
	StoppedAt       *string `json:"stopped_at,omitempty"`
}

func (h *SessionsHandler) toResponse(s *database.ClassSession) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		Subject:         s.Subject,
		Instructor:      s.Instructor,
		Classroom:       s.Classroom,
		StartTime:       formatTime(s.StartTime),
		EndTime:         formatTime(s.EndTime),
		DurationMinutes: s.DurationMinutes,
		Active:          h.tracker.IsActive(s.ID),
		LiveSince:       formatTimePtr(s.LiveSince),
		StoppedAt:       formatTimePtr(s.StoppedAt),
	}
}

type createSessionRequest struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Instructor string    `json:"instructor"`
	Classroom  string    `json:"classroom"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// List returns all sessions, newest first
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	store := getStore(w, r)
	if store == nil {
		return
	}
	sessions, err := store.ListSessions(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	resp := make([]sessionResponse, len(sessions))
	for i := range sessions {
		resp[i] = h.toResponse(&sessions[i])
	}
	respondJSON(w, http.StatusOK, resp)
}

// Create stores a new session. The duration is derived from the window.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		respondError(w, http.StatusBadRequest, "subject is required")
		return
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		respondError(w, http.StatusBadRequest, "start_time and end_time are required")
		return
	}
	duration := database.DurationFromWindow(req.StartTime, req.EndTime)
	if duration <= 0 {
		respondError(w, http.StatusUnprocessableEntity, "session must end at least one minute after it starts")
		return
	}

	store := getStore(w, r)
	if store == nil {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if existing, err := store.GetSession(r.Context(), req.ID); err != nil {
		respondServiceError(w, r, err)
		return
	} else if existing != nil {
		respondError(w, http.StatusConflict, "session already exists")
		return
	}

	session := &database.ClassSession{
		ID:              req.ID,
		Subject:         req.Subject,
		Instructor:      strings.TrimSpace(req.Instructor),
		Classroom:       strings.TrimSpace(req.Classroom),
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		DurationMinutes: duration,
	}
	if err := store.CreateSession(r.Context(), session); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.toResponse(session))
}

// Get returns one session
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	store := getStore(w, r)
	if store == nil {
		return
	}
	session, err := store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if session == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, h.toResponse(session))
}

// Active lists the sessions tracked by this process
func (h *SessionsHandler) Active(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"sessions": h.tracker.ActiveSessions()})
}

// Start begins live tracking of a session
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.tracker.StartSession(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	slog.Info("session started", "session_id", sanitizeForLog(id))
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "active": true})
}

// Stop ends live tracking and flushes exits for everyone still present
func (h *SessionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.tracker.StopSession(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	slog.Info("session stopped", "session_id", sanitizeForLog(id))
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "active": false})
}

// Presence returns who is currently in the room
func (h *SessionsHandler) Presence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	present, err := h.tracker.Snapshot(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "present": present, "count": len(present)})
}

// Events streams presence changes of a live session via SSE
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Subscribe before the snapshot so no change falls between the two.
	eventCh := h.broadcaster.AddListener(id)
	defer h.broadcaster.RemoveListener(id, eventCh)

	present, err := h.tracker.Snapshot(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	streamPresenceEvents(w, r, eventCh, map[string]any{"session_id": id, "present": present})
}

// Delete removes a session and its data. Live sessions, including one whose
// stop has not completed, must be stopped first.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.tracker.Tracked(id) {
		respondError(w, http.StatusConflict, "session is live, stop it first")
		return
	}
	store := getStore(w, r)
	if store == nil {
		return
	}
	if err := store.DeleteSession(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
