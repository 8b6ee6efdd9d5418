package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avensora/strata/internal/engine"
	"github.com/avensora/strata/internal/models"
	"github.com/avensora/strata/internal/retrieval"
	"github.com/avensora/strata/internal/store"
)

// Server is an HTTP API server that exposes the memory boundary
// operations.
type Server struct {
	engine    *engine.Engine
	logger    *slog.Logger
	authToken string       // empty = no auth required
	metrics   http.Handler // nil = no /metrics endpoint
}

// NewServer creates a new Server with the given dependencies. metrics may
// be nil when the binary runs without a Prometheus registry.
func NewServer(eng *engine.Engine, logger *slog.Logger, authToken string, metrics http.Handler) *Server {
	return &Server{
		engine:    eng,
		logger:    logger,
		authToken: authToken,
		metrics:   metrics,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics scrape, no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	// Memory operations, wrapped with auth middleware.
	mux.HandleFunc("POST /v1/interactions", s.auth(s.handleIngest))
	mux.HandleFunc("POST /v1/retrieve", s.auth(s.handleRetrieve))
	mux.HandleFunc("GET /v1/recent", s.auth(s.handleRecent))
	mux.HandleFunc("GET /v1/status", s.auth(s.handleStatus))
	mux.HandleFunc("POST /v1/facts", s.auth(s.handleFact))
	mux.HandleFunc("POST /v1/snapshot", s.auth(s.handleSnapshot))

	return mux
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingestResponse is returned by POST /v1/interactions.
type ingestResponse struct {
	ID      string `json:"id"`
	Stored  bool   `json:"stored"`
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var in models.Interaction
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, warning, err := s.engine.Ingest(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrEmptyPayload):
			s.writeError(w, http.StatusBadRequest, "input is required")
		case errors.Is(err, store.ErrClosed):
			s.writeError(w, http.StatusServiceUnavailable, "store is shutting down")
		default:
			s.logger.Error("failed to ingest interaction", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to ingest interaction")
		}
		return
	}

	resp := ingestResponse{ID: id, Stored: true}
	if warning != nil {
		resp.Warning = warning.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// retrieveRequest is the body accepted by POST /v1/retrieve.
type retrieveRequest struct {
	Query          string    `json:"query"`
	MaxResults     int       `json:"max_results"`
	MinSimilarity  float64   `json:"min_similarity"`
	Tiers          []string  `json:"tiers"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	IncludeContext bool      `json:"include_context"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	var tiers []models.Tier
	for _, t := range req.Tiers {
		tier := models.Tier(t)
		if !tier.IsValid() {
			s.writeError(w, http.StatusBadRequest, "invalid tier: "+t)
			return
		}
		tiers = append(tiers, tier)
	}

	result, err := s.engine.Retrieve(r.Context(), req.Query, retrieval.Options{
		MaxResults:     req.MaxResults,
		MinSimilarity:  req.MinSimilarity,
		Tiers:          tiers,
		From:           req.From,
		To:             req.To,
		IncludeContext: req.IncludeContext,
	})
	if err != nil {
		s.logger.Error("failed to retrieve memories", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve memories")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// recentResponse is returned by GET /v1/recent.
type recentResponse struct {
	Memories []models.RecordView `json:"memories"`
	Count    int                 `json:"count"`
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}

	views := s.engine.GetRecent(n)
	s.writeJSON(w, http.StatusOK, recentResponse{Memories: views, Count: len(views)})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

// factRequest is the body accepted by POST /v1/facts.
type factRequest struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// factResponse is returned by POST /v1/facts.
type factResponse struct {
	ID     string `json:"id"`
	Stored bool   `json:"stored"`
}

func (s *Server) handleFact(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req factRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Content == "" {
		s.writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Confidence == 0 {
		req.Confidence = 0.9
	}
	if req.Source == "" {
		req.Source = "api"
	}

	id, err := s.engine.StoreFact(r.Context(), req.Content, req.Confidence, req.Source)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrEmptyPayload):
			s.writeError(w, http.StatusBadRequest, "content is required")
		case errors.Is(err, store.ErrClosed):
			s.writeError(w, http.StatusServiceUnavailable, "store is shutting down")
		default:
			s.logger.Error("failed to store fact", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to store fact")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, factResponse{ID: id, Stored: true})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	if err := s.engine.SaveSnapshot(); err != nil {
		s.logger.Error("failed to save snapshot", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save snapshot")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

// --- helpers ---

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
