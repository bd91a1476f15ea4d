package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

// requestTimeout bounds every request except event streams.
const requestTimeout = 30 * time.Second

func (s *Server) setupRoutes() {
	sessionsHandler := handlers.NewSessionsHandler(s.deps.Tracker, s.deps.Broadcaster)
	ingestHandler := handlers.NewIngestHandler(s.deps.Tracker, s.deps.Gallery)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Reconciler)
	studentsHandler := handlers.NewStudentsHandler(s.deps.Tracker, s.deps.Gallery, s.config.Matching.EmbeddingDim)
	reportsHandler := handlers.NewReportsHandler(s.deps.Tracker, s.config.Attendance.LowThreshold)
	adminHandler := handlers.NewAdminHandler(s.deps.Tracker)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		// Long-lived SSE stream, outside the request timeout
		r.Get("/sessions/{id}/events", sessionsHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))

			// Sessions
			r.Get("/sessions", sessionsHandler.List)
			r.Post("/sessions", sessionsHandler.Create)
			r.Get("/sessions/active", sessionsHandler.Active)
			r.Get("/sessions/{id}", sessionsHandler.Get)
			r.Delete("/sessions/{id}", sessionsHandler.Delete)
			r.Post("/sessions/{id}/start", sessionsHandler.Start)
			r.Post("/sessions/{id}/stop", sessionsHandler.Stop)
			r.Get("/sessions/{id}/presence", sessionsHandler.Presence)

			// Ingest
			r.Post("/sessions/{id}/observations", ingestHandler.Observations)
			r.Post("/sessions/{id}/frames", ingestHandler.Frame)

			// Attendance
			r.Post("/sessions/{id}/reconcile", attendanceHandler.Reconcile)
			r.Get("/sessions/{id}/attendance", attendanceHandler.List)
			r.Get("/sessions/{id}/movements", attendanceHandler.Movements)

			// Students
			r.Get("/students", studentsHandler.List)
			r.Post("/students", studentsHandler.Create)
			r.Get("/students/{id}", studentsHandler.Get)
			r.Delete("/students/{id}", studentsHandler.Delete)
			r.Post("/students/{id}/encodings", studentsHandler.AddEncodings)

			// Reports
			r.Get("/reports/monthly/{studentId}", reportsHandler.Monthly)
			r.Get("/reports/low-attendance", reportsHandler.LowAttendance)
			r.Get("/reports/stats", reportsHandler.Stats)
			r.Get("/dashboard/stats", reportsHandler.Dashboard)

			// Admin
			r.Delete("/admin/reports", adminHandler.PurgeReports)
			r.Delete("/admin/sessions", adminHandler.PurgeSessions)
			r.Post("/admin/rebuild-index", handlers.RebuildIndex)
		})
	})
}
