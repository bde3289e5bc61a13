// Package server provides the HTTP API for medichat.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"medichat/internal/auth"
	"medichat/internal/config"
	"medichat/internal/models"
	"medichat/internal/storage"
)

// Orchestrator produces assistant replies and cross-session summaries.
type Orchestrator interface {
	Reply(ctx context.Context, userInput string, history []models.Message, healthSummary string) (string, []models.Message)
	SummarizeHistory(ctx context.Context, chats []models.Chat) string
}

// Retriever reports the state of the literature index, for the status endpoint.
type Retriever interface {
	Size() int
}

// Server is the HTTP server for the medichat API.
type Server struct {
	storage      storage.Storage
	auth         *auth.Service
	orchestrator Orchestrator
	retriever    Retriever
	config       *config.Config
	logger       *zap.Logger
	summaries    *summaryStore
	server       *http.Server
}

// NewServer creates a server with the given dependencies. retriever may be
// nil when no index is configured.
func NewServer(
	store storage.Storage,
	authSvc *auth.Service,
	orchestrator Orchestrator,
	retriever Retriever,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		storage:      store,
		auth:         authSvc,
		orchestrator: orchestrator,
		retriever:    retriever,
		config:       cfg,
		logger:       logger,
		summaries:    newSummaryStore(),
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/register", s.handleRegister)
	r.Post("/api/v1/login", s.handleLogin)
	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/status", s.handleStatus)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/api/v1/logout", s.handleLogout)
		r.Post("/api/v1/chat", s.handleChat)
		r.Get("/api/v1/chats", s.handleListChats)
		r.Get("/api/v1/chats/{chat_id}", s.handleGetChat)
		r.Post("/api/v1/chats/new", s.handleNewChat)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
