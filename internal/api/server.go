// Package api serves the dashboard HTTP API. Every query is forwarded to a
// Backend, which in production is the matcher reached over NATS.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/nestmate/roommates/internal/protocol"
)

// Backend answers the queries the API exposes.
type Backend interface {
	Score(ctx context.Context, a, b string) (protocol.ScoreReply, error)
	Groups(ctx context.Context, owner string) (protocol.GroupsReply, error)
	Feed(ctx context.Context, viewer string, limit int) (protocol.FeedReply, error)
	Invite(ctx context.Context, owner, groupKey string) (protocol.InviteReply, error)
	Uninvite(ctx context.Context, owner, groupKey string) (protocol.UninviteReply, error)
	ExpressInterest(ctx context.Context, from, to string) (string, error)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	RequestTimeout time.Duration // deadline for each backend call
	FeedLimit      int           // feed size when the request sets none
	AllowedOrigins []string      // CORS origins
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		RequestTimeout: 5 * time.Second,
		FeedLimit:      20,
		AllowedOrigins: []string{"*"},
	}
}

// Server is the dashboard HTTP server.
type Server struct {
	config     ServerConfig
	backend    Backend
	handler    http.Handler
	httpServer *http.Server
	startedAt  time.Time
}

// NewServer builds the router and CORS middleware around backend.
func NewServer(config ServerConfig, backend Backend) *Server {
	s := &Server{config: config, backend: backend, startedAt: time.Now()}

	r := mux.NewRouter()
	r.Use(logRequests)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Routes sit on the root router: a subrouter answers a method mismatch
	// with 404 instead of 405.
	r.HandleFunc("/api/compatibility/{a}/{b}", s.handleScore).Methods(http.MethodGet)
	r.HandleFunc("/api/owners/{owner}/groups", s.handleGroups).Methods(http.MethodGet)
	r.HandleFunc("/api/owners/{owner}/groups/{key}/invite", s.handleInvite).Methods(http.MethodPost)
	r.HandleFunc("/api/owners/{owner}/groups/{key}/invite", s.handleUninvite).Methods(http.MethodDelete)
	r.HandleFunc("/api/users/{id}/feed", s.handleFeed).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{id}/interest/{target}", s.handleInterest).Methods(http.MethodPost)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(r)

	return s
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("[api] listening on %s", s.config.ListenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	log.Println("[api] shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[api] %s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}
