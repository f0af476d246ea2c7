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

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Device registry (read-only surface over MQTT-owned state)
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/telemetry", s.handleDeviceTelemetry)

				// Push endpoints publish to the device over MQTT.
				r.Post("/config", s.handlePushConfig)
				r.Post("/ota", s.handlePushUpdateNotice)
				r.Post("/apps", s.handlePushAppCommand)
			})
		})

		// OTA catalog
		r.Route("/ota", func(r chi.Router) {
			r.Get("/", s.handleListUpdates)
			r.Get("/check/{deviceID}", s.handleCheckUpdate)
			r.Post("/upload", s.handleUploadUpdate)
		})

		// Mesh log
		r.Get("/mesh/history", s.handleMeshHistory)
	})

	// Binary download outside the /api JSON surface.
	r.Get("/ota/download/{filename}", s.handleDownloadUpdate)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
