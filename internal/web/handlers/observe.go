package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/tracking"
)

// Matcher resolves face encodings to students.
type Matcher interface {
	MatchAll(ctx context.Context, queries [][]float32) ([]facematch.Match, error)
}

// IngestHandler feeds recognitions into the tracker
type IngestHandler struct {
	tracker *tracking.Tracker
	matcher Matcher
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(tracker *tracking.Tracker, matcher Matcher) *IngestHandler {
	return &IngestHandler{tracker: tracker, matcher: matcher}
}

type observationRequest struct {
	StudentID  string     `json:"student_id"`
	Confidence float64    `json:"confidence"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

type observationResult struct {
	StudentID string                `json:"student_id"`
	Outcome   tracking.EventOutcome `json:"outcome,omitempty"`
	Error     string                `json:"error,omitempty"`
}

type frameRequest struct {
	Encodings  [][]float32 `json:"encodings"`
	ObservedAt *time.Time  `json:"observed_at,omitempty"`
}

type recognizedStudent struct {
	StudentID  string                `json:"student_id"`
	Confidence float64               `json:"confidence"`
	Distance   float64               `json:"distance"`
	Outcome    tracking.EventOutcome `json:"outcome"`
}

type frameResponse struct {
	SessionID  string              `json:"session_id"`
	TotalFaces int                 `json:"total_faces"`
	Recognized []recognizedStudent `json:"recognized"`
	Unknown    int                 `json:"unknown"`
}

func observedAt(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// observe runs one observation.
func (h *IngestHandler) observe(ctx context.Context, obs tracking.Observation) (tracking.EventOutcome, error) {
	outcome, err := h.tracker.ObserveMatch(ctx, obs)
	if err != nil {
		return "", fmt.Errorf("observe %s: %w", obs.StudentID, err)
	}
	return outcome, nil
}

// validationError returns the tracker's validation error wrapped in err.
func validationError(err error) (error, bool) {
	var classified interface {
		error
		ErrorKind() string
	}
	if errors.As(err, &classified) && classified.ErrorKind() == "validation" {
		return classified, true
	}
	return nil, false
}

// Observations accepts already recognized students. Items are applied in
// order and validation errors are reported per item. Any other failure
// aborts the request with earlier items already applied; resending the
// batch is safe because those now count as heartbeats.
func (h *IngestHandler) Observations(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	var req []observationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req) == 0 {
		respondError(w, http.StatusBadRequest, "no observations")
		return
	}
	if len(req) > constants.MaxObservationsPerRequest {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d observations per request", constants.MaxObservationsPerRequest))
		return
	}

	results := make([]observationResult, 0, len(req))
	for _, o := range req {
		outcome, err := h.observe(r.Context(), tracking.Observation{
			SessionID:  sessionID,
			StudentID:  o.StudentID,
			Confidence: o.Confidence,
			ObservedAt: observedAt(o.ObservedAt),
		})
		if verr, ok := validationError(err); ok {
			results = append(results, observationResult{StudentID: o.StudentID, Error: verr.Error()})
			continue
		}
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		results = append(results, observationResult{StudentID: o.StudentID, Outcome: outcome})
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "results": results})
}

// Frame matches the face encodings of one camera frame against the gallery
// and observes every recognized student.
func (h *IngestHandler) Frame(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	var req frameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Encodings) > constants.MaxEncodingsPerFrame {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d encodings per frame", constants.MaxEncodingsPerFrame))
		return
	}
	if !h.tracker.IsActive(sessionID) {
		respondServiceError(w, r, tracking.ErrNoActiveSession)
		return
	}

	resp := frameResponse{SessionID: sessionID, TotalFaces: len(req.Encodings), Recognized: []recognizedStudent{}}
	if len(req.Encodings) == 0 {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	matches, err := h.matcher.MatchAll(r.Context(), req.Encodings)
	if errors.Is(err, facematch.ErrDimensionMismatch) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	at := observedAt(req.ObservedAt)
	for _, m := range matches {
		outcome, err := h.observe(r.Context(), tracking.Observation{
			SessionID:  sessionID,
			StudentID:  m.StudentID,
			Confidence: m.Confidence,
			ObservedAt: at,
		})
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		resp.Recognized = append(resp.Recognized, recognizedStudent{
			StudentID:  m.StudentID,
			Confidence: m.Confidence,
			Distance:   m.Distance,
			Outcome:    outcome,
		})
	}
	resp.Unknown = resp.TotalFaces - len(resp.Recognized)
	if resp.Unknown < 0 {
		resp.Unknown = 0
	}
	respondJSON(w, http.StatusOK, resp)
}
