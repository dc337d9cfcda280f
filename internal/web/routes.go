package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	authHandler := handlers.NewAuthHandler(s.auth)
	identitiesHandler := handlers.NewIdentitiesHandler(s.deps.Samples, s.deps.Detector, s.deps.Jobs)
	recognitionHandler := handlers.NewRecognitionHandler(s.config.Recognition, s.config.Storage.ModelPath, s.deps.Samples)
	jobsHandler := handlers.NewJobsHandler(s.deps.Jobs)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Ledger)
	liveHandler := handlers.NewLiveHandler(s.hub, middleware.OriginChecker(s.config.Web.AllowedOrigins))

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Get("/auth/status", authHandler.Status)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.auth))

			// Streams stay open for the whole job.
			r.Get("/sessions/{jobId}/events", jobsHandler.Events)
			r.Get("/ws", liveHandler.Serve)

			r.Group(func(r chi.Router) {
				r.Use(chiMiddleware.Timeout(5 * time.Minute))

				// Enrollment
				r.Get("/identities", identitiesHandler.List)
				r.Post("/identities", identitiesHandler.Create)
				r.Delete("/identities/{label}", identitiesHandler.Delete)
				r.Post("/identities/{label}/samples", identitiesHandler.UploadSamples)

				// Model
				r.Get("/model", recognitionHandler.Backends)
				r.Post("/train", recognitionHandler.Train)
				r.Post("/calibrate", recognitionHandler.Calibrate)

				// Sessions and collection jobs
				r.Get("/sessions", jobsHandler.List)
				r.Post("/sessions", jobsHandler.StartSession)
				r.Get("/sessions/{jobId}", jobsHandler.Status)
				r.Delete("/sessions/{jobId}", jobsHandler.Stop)

				// Attendance ledger
				r.Get("/attendance", attendanceHandler.List)
				r.Get("/attendance/today", attendanceHandler.Today)
				r.Get("/attendance/export", attendanceHandler.Export)
				r.Post("/attendance", attendanceHandler.Create)
				r.Post("/attendance/import", attendanceHandler.Import)
				r.Put("/attendance/{row}", attendanceHandler.Update)
				r.Delete("/attendance/{row}", attendanceHandler.Delete)
				r.Delete("/attendance", attendanceHandler.Clear)
			})
		})
	})
}
