package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.bodySizeLimitMiddleware)

		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Accounts
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Get("/registered", s.handleRegistered)
		r.Post("/validate", s.handleValidate)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{id}", s.handleGetDevice)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Put("/{id}", s.handleConfigureDevice)
				r.Delete("/{id}", s.handleDeleteDevice)
			})
		})

		r.Route("/plants", func(r chi.Router) {
			r.Get("/", s.handleListPlants)
			r.Get("/updates/{amount}", s.handlePlantUpdates)
			if s.plantInfo != nil {
				r.Get("/lookup/{search}", s.handlePlantLookup)
			}
			r.Get("/{id}", s.handleGetPlant)
			r.Get("/{id}/readings/{amount}", s.handlePlantReadings)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Post("/", s.handleCreatePlant)
				r.Put("/{id}", s.handleUpdatePlant)
				r.Delete("/{id}", s.handleDeletePlant)
			})
		})

		r.Get("/readings/{amount}", s.handleRecentReadings)
		r.Get("/config/{mac}", s.handleGetConfig)
	})

	// Uploads carry their own, larger body limit.
	if s.images != nil {
		r.With(s.authMiddleware).Post("/upload", s.handleUploadImage)
		r.Get("/image/{filename}", s.handleGetImage)
	}

	path := s.wsCfg.Path
	if path == "" {
		path = "/ws"
	}
	r.Get(path, s.handleWebSocket)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
