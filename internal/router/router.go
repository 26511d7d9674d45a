// Package router wires HTTP routes to handlers with the middleware chain
// the teacher's server uses: security headers, request logging, CORS,
// Prometheus monitoring, then per-group auth and rate limiting.
package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/biorag/engine/internal/handler"
	"github.com/biorag/engine/internal/middleware"
)

// Dependencies holds everything the router needs to wire routes.
type Dependencies struct {
	DB                 handler.DBPinger
	FrontendURL        string
	Version            string
	Metrics            *middleware.Metrics
	MetricsReg         *prometheus.Registry
	InternalAuthSecret string

	RAG      handler.RAGDeps
	Ontology handler.OntologyDeps
	PDF      handler.PDFDeps

	GeneralRateLimiter  *middleware.RateLimiter
	QuestionRateLimiter *middleware.RateLimiter
}

// New creates and configures the Chi router with all routes.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	// Public routes — no auth.
	r.Get("/api/health", handler.Health(deps.DB, deps.Version))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalAuth(deps.InternalAuthSecret))
		if deps.GeneralRateLimiter != nil {
			r.Use(middleware.RateLimit(deps.GeneralRateLimiter))
		}

		timeout30s := middleware.Timeout(30 * time.Second)

		// Ontology ingestion.
		r.With(timeout30s).Get("/api/ontology/ingestions", handler.ListOntologyIngestions(deps.Ontology))
		r.With(timeout30s).Get("/api/ontology/ingestions/{type}/{source_id}", handler.GetOntologyIngestion(deps.Ontology))
		r.With(middleware.Timeout(120 * time.Second)).Post("/api/ontology/ingestions", handler.TriggerOntologyIngest(deps.Ontology))
		r.With(middleware.Timeout(120 * time.Second)).Post("/api/ontology/ingestions/{type}/{source_id}/embeddings", handler.TriggerOntologyEmbed(deps.Ontology))

		// PDF ingestion.
		r.With(timeout30s).Get("/api/pdf/ingestions/{pdf_id}", handler.GetPDFIngestion(deps.PDF))
		r.With(middleware.Timeout(120 * time.Second)).Post("/api/pdf/ingestions", handler.TriggerPDFIngest(deps.PDF))
		r.With(middleware.Timeout(120 * time.Second)).Post("/api/pdf/ingestions/{pdf_id}/embeddings", handler.TriggerPDFEmbed(deps.PDF))

		// RAG sessions and questions — question asking is SSE-capable, so it
		// gets no write timeout and its own (looser) rate limit.
		r.With(timeout30s).Post("/api/rag/sessions", handler.CreateSession(deps.RAG))
		if deps.QuestionRateLimiter != nil {
			r.With(middleware.RateLimit(deps.QuestionRateLimiter)).Post("/api/rag/sessions/{id}/question", handler.AskQuestion(deps.RAG))
		} else {
			r.Post("/api/rag/sessions/{id}/question", handler.AskQuestion(deps.RAG))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "route not found",
		})
	})

	return r
}
