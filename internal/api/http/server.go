package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/arena-hub/arena-hub/internal/application/engine"
	"github.com/arena-hub/arena-hub/internal/application/registry"
	"github.com/arena-hub/arena-hub/internal/application/supervisor"
	"github.com/arena-hub/arena-hub/internal/api/ws"
	"github.com/arena-hub/arena-hub/internal/domain/combat"
	"github.com/arena-hub/arena-hub/internal/infrastructure/identity"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	registry   *registry.Service
	engine     *engine.Service
	supervisor *supervisor.Service
	verifier   identity.Verifier
	wsHandler  *ws.Handler
	archive    combat.ArchiveRepository
	ready      func(ctx context.Context) error
	logger     zerolog.Logger
}

// NewServer builds the HTTP surface. archive may be nil; instance reads
// then cover live instances only.
func NewServer(
	reg *registry.Service,
	eng *engine.Service,
	sup *supervisor.Service,
	verifier identity.Verifier,
	wsHandler *ws.Handler,
	archive combat.ArchiveRepository,
	logger zerolog.Logger,
) *Server {
	return &Server{
		registry:   reg,
		engine:     eng,
		supervisor: sup,
		verifier:   verifier,
		wsHandler:  wsHandler,
		archive:    archive,
		logger:     logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router. The websocket endpoint sits outside the
// timeout middleware because its connections are long-lived.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws/{channel}", s.wsHandler.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/healthz", s.health)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/stats", s.stats)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Route("/instances", func(r chi.Router) {
					r.Post("/", s.createInstance)
					r.Get("/{instanceId}", s.getInstance)
					r.Post("/{instanceId}/accept", s.acceptInstance)
					r.Post("/{instanceId}/join", s.joinInstance)
				})
			})
		})
	})

	return r
}

// SetReadiness registers a dependency check (the bus ping) consulted by
// the health endpoint.
func (s *Server) SetReadiness(check func(ctx context.Context) error) {
	s.ready = check
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.registry.Stats())
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}
