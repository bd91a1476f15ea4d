package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps a classified error to an HTTP status. Errors without a
// kind are store or internal failures.
func statusForError(err error) int {
	var classified interface{ ErrorKind() string }
	if errors.As(err, &classified) {
		switch classified.ErrorKind() {
		case "no_active_session", "conflict":
			return http.StatusConflict
		case "not_found":
			return http.StatusNotFound
		case "validation":
			return http.StatusBadRequest
		case "invalid_session":
			return http.StatusUnprocessableEntity
		}
	}
	if errors.Is(err, database.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// respondServiceError writes err with its mapped status. Internal failures
// are logged and reported without detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", sanitizeForLog(r.URL.Path), "error", err)
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// getStore returns the registered store or writes a 503.
func getStore(w http.ResponseWriter, r *http.Request) database.Store {
	store, err := database.GetStore(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage not available")
		return nil
	}
	return store
}

// HealthCheck handles the health check endpoint. It pings the store when one
// is registered.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if database.IsInitialized() {
		resp["database"] = database.BackendName()
		store, err := database.GetStore(r.Context())
		if err == nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			err = store.Ping(ctx)
		}
		if err != nil {
			resp["status"] = "degraded"
			resp["error"] = "database unreachable"
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
