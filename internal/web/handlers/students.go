package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/tracking"
)

// GalleryUpdater keeps the in-memory face gallery in sync with enrollment.
type GalleryUpdater interface {
	Add(encodings ...database.StoredEncoding)
	RemoveStudent(studentID string) int
}

// StudentsHandler handles student registration and enrollment endpoints
type StudentsHandler struct {
	tracker     *tracking.Tracker
	gallery     GalleryUpdater
	encodingDim int
}

// NewStudentsHandler creates a new students handler
func NewStudentsHandler(tracker *tracking.Tracker, gallery GalleryUpdater, encodingDim int) *StudentsHandler {
	if encodingDim <= 0 {
		encodingDim = database.FaceEncodingDim
	}
	return &StudentsHandler{tracker: tracker, gallery: gallery, encodingDim: encodingDim}
}

type studentResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	StudentCode string `json:"student_code,omitempty"`
	Department  string `json:"department"`
	CreatedAt   string `json:"created_at"`
}

type studentDetailResponse struct {
	studentResponse
	Attendance []attendanceRecordResponse `json:"attendance"`
}

func toStudentResponse(s *database.Student) studentResponse {
	return studentResponse{
		ID:          s.ID,
		Name:        s.Name,
		StudentCode: s.StudentCode,
		Department:  s.Department,
		CreatedAt:   formatTime(s.CreatedAt),
	}
}

type createStudentRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	StudentCode string `json:"student_code"`
	Department  string `json:"department"`
}

type encodingsRequest struct {
	Encodings [][]float32 `json:"encodings"`
}

// List returns all students, or those matching ?name= (diacritics ignored)
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	store := getStore(w, r)
	if store == nil {
		return
	}

	var (
		students []database.Student
		err      error
	)
	if name := r.URL.Query().Get("name"); name != "" {
		students, err = store.FindStudentsByName(r.Context(), facematch.NormalizeStudentName(name))
	} else {
		students, err = store.ListStudents(r.Context())
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	resp := make([]studentResponse, len(students))
	for i := range students {
		resp[i] = toStudentResponse(&students[i])
	}
	respondJSON(w, http.StatusOK, resp)
}

// Create registers a student
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	store := getStore(w, r)
	if store == nil {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if existing, err := store.GetStudent(r.Context(), req.ID); err != nil {
		respondServiceError(w, r, err)
		return
	} else if existing != nil {
		respondError(w, http.StatusConflict, "student already exists")
		return
	}

	student := &database.Student{
		ID:             req.ID,
		Name:           req.Name,
		StudentCode:    strings.TrimSpace(req.StudentCode),
		Department:     strings.TrimSpace(req.Department),
		NormalizedName: facematch.NormalizeStudentName(req.Name),
	}

	// Same name is allowed only with a distinguishing student code.
	namesakes, err := store.FindStudentsByName(r.Context(), student.NormalizedName)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	for _, other := range namesakes {
		if other.StudentCode == student.StudentCode {
			respondError(w, http.StatusConflict, fmt.Sprintf("student %q already registered as %s", req.Name, other.ID))
			return
		}
	}
	if err := store.CreateStudent(r.Context(), student); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toStudentResponse(student))
}

// Get returns a student with their attendance history
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	store := getStore(w, r)
	if store == nil {
		return
	}
	id := chi.URLParam(r, "id")
	student, err := store.GetStudent(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if student == nil {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	records, err := store.ListStudentAttendance(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, studentDetailResponse{
		studentResponse: toStudentResponse(student),
		Attendance:      toRecordResponses(records),
	})
}

// Delete removes a student and drops them from the gallery. A student who is
// present in a live session cannot be deleted.
func (h *StudentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	store := getStore(w, r)
	if store == nil {
		return
	}
	id := chi.URLParam(r, "id")
	if sessions := h.tracker.PresentIn(id); len(sessions) > 0 {
		respondServiceError(w, r, fmt.Errorf("%w: %s", tracking.ErrStudentPresent, strings.Join(sessions, ", ")))
		return
	}
	if err := store.DeleteStudent(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	// An arrival that raced the delete has no rows left to close.
	h.tracker.ForgetStudent(id)
	removed := h.gallery.RemoveStudent(id)
	slog.Info("student deleted", "student_id", sanitizeForLog(id), "encodings_removed", removed)
	w.WriteHeader(http.StatusNoContent)
}

// AddEncodings enrolls face encodings for a student
func (h *StudentsHandler) AddEncodings(w http.ResponseWriter, r *http.Request) {
	var req encodingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Encodings) == 0 {
		respondError(w, http.StatusBadRequest, "no encodings")
		return
	}
	for i, enc := range req.Encodings {
		if len(enc) != h.encodingDim {
			respondError(w, http.StatusBadRequest,
				fmt.Sprintf("encoding %d has %d values, expected %d", i, len(enc), h.encodingDim))
			return
		}
	}

	store := getStore(w, r)
	if store == nil {
		return
	}
	id := chi.URLParam(r, "id")
	saved, err := store.SaveEncodings(r.Context(), id, req.Encodings)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.gallery.Add(saved...)

	ids := make([]int64, len(saved))
	for i, enc := range saved {
		ids[i] = enc.ID
	}
	respondJSON(w, http.StatusCreated, map[string]any{"student_id": id, "encoding_ids": ids})
}
