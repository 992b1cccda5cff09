// Package api provides the HTTP surface of the economic-layer engine.
// Transport only: every handler delegates to an application service and
// maps domain errors to status codes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/layerline/layerd/internal/app/bridge"
	"github.com/layerline/layerd/internal/app/community"
	"github.com/layerline/layerd/internal/app/exchange"
	"github.com/layerline/layerd/internal/app/migration"
	"github.com/layerline/layerd/internal/domain"
)

// Server is the layer engine HTTP API server.
type Server struct {
	layers         domain.LayerStore
	executor       *migration.Executor
	aggregator     *community.Aggregator
	exchange       *exchange.Service
	celebrations   *exchange.Celebrations
	bridge         *bridge.Service
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(layers domain.LayerStore, executor *migration.Executor, aggregator *community.Aggregator,
	ex *exchange.Service, celebrations *exchange.Celebrations, br *bridge.Service) *Server {
	return &Server{
		layers:       layers,
		executor:     executor,
		aggregator:   aggregator,
		exchange:     ex,
		celebrations: celebrations,
		bridge:       br,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Users and migrations
		r.Post("/users", s.handleRegisterUser)
		r.Get("/users/{id}/layer", s.handleGetUserLayer)
		r.Get("/users/{id}/migrations", s.handleMigrationHistory)
		r.Post("/users/{id}/migrate", s.handleMigrate)

		// Stats
		r.Get("/layers/stats", s.handleLayerStats)

		// Community config + threshold
		r.Get("/communities/{id}/layer-config", s.handleGetCommunityConfig)
		r.Patch("/communities/{id}/layer-config", s.handlePatchCommunityConfig)
		r.Get("/communities/{id}/gift-threshold", s.handleGiftThreshold)

		// Abundance
		r.Post("/abundance", s.handleAnnounceAbundance)
		r.Get("/abundance", s.handleAbundanceFeed)
		r.Post("/abundance/{id}/take", s.handleTakeAbundance)

		// Needs
		r.Post("/needs", s.handleExpressNeed)
		r.Get("/needs", s.handleNeedsFeed)
		r.Post("/needs/{id}/fulfill", s.handleFulfillNeed)

		// Celebrations
		r.Get("/celebrations", s.handleCelebrations)

		// Bridge events
		r.Post("/bridge-events", s.handleCreateBridgeEvent)
		r.Get("/bridge-events/active", s.handleActiveBridgeEvents)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Response Helpers ───────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps domain sentinel errors to status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrUnsupportedTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrAlreadyFulfilled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, domain.ErrUnknownMode), errors.Is(err, domain.ErrMissingField):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
