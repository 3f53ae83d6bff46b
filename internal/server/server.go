// Package server exposes a ChunkDepot over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"xsync-go/internal/auth"
	"xsync-go/internal/xsync"
)

// UserStore is the part of the registry that holds accounts.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) error
	FindUser(ctx context.Context, email string) (*xsync.User, error)
}

// Server routes the xsync HTTP API onto a ChunkDepot.
type Server struct {
	depot   *xsync.ChunkDepot
	users   UserStore
	tokens  *auth.TokenIssuer
	metrics *Metrics
	logger  xsync.Logger
	health  func(context.Context) error
	router  *mux.Router
}

// Option customizes a Server.
type Option func(*Server)

// WithHealthCheck sets the probe behind /healthz.
func WithHealthCheck(fn func(context.Context) error) Option {
	return func(s *Server) { s.health = fn }
}

func New(depot *xsync.ChunkDepot, users UserStore, tokens *auth.TokenIssuer, metrics *Metrics, logger xsync.Logger, opts ...Option) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &Server{
		depot:   depot,
		users:   users,
		tokens:  tokens,
		metrics: metrics,
		logger:  logger.With("component", "http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/user/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/user/login", s.handleLogin).Methods(http.MethodPost)

	chunks := r.PathPrefix("/chunk").Subrouter()
	chunks.Use(s.authenticate)
	chunks.HandleFunc("/upload/batch", s.handleUploadBatch).Methods(http.MethodPost)
	chunks.HandleFunc("/fetch/batch", s.handleFetchBatch).Methods(http.MethodPost)
	chunks.HandleFunc("/fetch/{hash}", s.handleFetchChunk).Methods(http.MethodGet)
	chunks.HandleFunc("/missing", s.handleMissing).Methods(http.MethodPost)

	meta := r.PathPrefix("/metadata").Subrouter()
	meta.Use(s.authenticate)
	meta.HandleFunc("/fetch", s.handleFetchMetadata).Methods(http.MethodGet)
	meta.HandleFunc("/upsert", s.handleUpsertMetadata).Methods(http.MethodPut)
	meta.HandleFunc("/delete", s.handleDeleteMetadata).Methods(http.MethodDelete)
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, "unhealthy")
			return
		}
	}
	writeJSON(w, http.StatusOK, "ok")
}
