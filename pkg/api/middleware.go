// Package api exposes the underwriting service over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/underwriter"
)

// maxRequestBytes caps evaluation request bodies.
const maxRequestBytes = 32 << 20

// NewRouter builds the chi router for the service.
func NewRouter(svc *underwriter.Service) http.Handler {
	evaluations := NewEvaluationsHandler(svc)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/evaluations", func(r chi.Router) {
			r.Get("/", evaluations.List)
			r.Post("/", evaluations.Create)
			r.Get("/{id}", evaluations.Get)
			r.Get("/{id}/input", evaluations.Input)
			r.Delete("/{id}", evaluations.Delete)
		})
	})

	return r
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, error, description string) {
	writeJSON(w, status, ErrorResponse{
		Error:            error,
		ErrorDescription: description,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
