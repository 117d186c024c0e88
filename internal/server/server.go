// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/wiserchat/internal/forwarder"
	"github.com/jeranaias/wiserchat/internal/tasks"
	"github.com/jeranaias/wiserchat/internal/workspace"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is where the server listens when none is given.
	DefaultAddr = "127.0.0.1:8080"

	// MaxMessageLength caps a single chat message.
	MaxMessageLength = 100000

	// MaxRequestBodySize caps JSON request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxImportSize caps workspace imports (20MB).
	MaxImportSize = 20 * 1024 * 1024
)

// Version is reported by /health; main overrides it at startup.
var Version = "1.0.0"

// ============================================================================
// SERVER STATS
// ============================================================================

// ServerStats counts forwards by outcome.
type ServerStats struct {
	TotalForwards int64     `json:"total_forwards"`
	Completed     int64     `json:"completed"`
	Stopped       int64     `json:"stopped"`
	Failed        int64     `json:"failed"`
	StartTime     time.Time `json:"start_time"`
}

// NewServerStats creates a new ServerStats instance.
func NewServerStats() *ServerStats {
	return &ServerStats{StartTime: time.Now()}
}

// RecordForward counts a finished forward.
func (s *ServerStats) RecordForward(status tasks.TaskStatus) {
	atomic.AddInt64(&s.TotalForwards, 1)
	switch status {
	case tasks.TaskStatusComplete:
		atomic.AddInt64(&s.Completed, 1)
	case tasks.TaskStatusStopped:
		atomic.AddInt64(&s.Stopped, 1)
	case tasks.TaskStatusFailed:
		atomic.AddInt64(&s.Failed, 1)
	}
}

// GetStats returns a copy of the current stats.
func (s *ServerStats) GetStats() ServerStats {
	return ServerStats{
		TotalForwards: atomic.LoadInt64(&s.TotalForwards),
		Completed:     atomic.LoadInt64(&s.Completed),
		Stopped:       atomic.LoadInt64(&s.Stopped),
		Failed:        atomic.LoadInt64(&s.Failed),
		StartTime:     s.StartTime,
	}
}

// Uptime returns the server uptime duration.
func (s *ServerStats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// ============================================================================
// SERVER
// ============================================================================

// Server serves the chat API and the embedded browser UI.
type Server struct {
	addr   string
	router *http.ServeMux
	server *http.Server

	forwarder *forwarder.Forwarder
	workspace *workspace.Workspace
	tasks     *tasks.Registry
	stats     *ServerStats

	auth    *AuthConfig
	cors    *CORSConfig
	limiter *RateLimiter
	logger  *log.Logger

	endpoint func() string

	done chan struct{}
	mu   sync.RWMutex
}

// NewServer creates a Server. An empty addr means DefaultAddr.
func NewServer(addr string, fwd *forwarder.Forwarder, ws *workspace.Workspace) *Server {
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		addr:      addr,
		router:    http.NewServeMux(),
		forwarder: fwd,
		workspace: ws,
		tasks:     tasks.NewRegistry(0),
		stats:     NewServerStats(),
		auth:      DefaultAuthConfig(),
		cors:      DefaultCORSConfig(),
		limiter:   DefaultRateLimiter(),
		logger:    log.Default(),
		done:      make(chan struct{}),
	}

	s.tasks.OnFinish(func(n tasks.TaskNotification) {
		s.stats.RecordForward(n.Status)
	})
	s.setupRoutes()
	return s
}

// WithAuth sets the authentication configuration.
func (s *Server) WithAuth(config *AuthConfig) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = config
	return s
}

// WithCORS sets the CORS configuration.
func (s *Server) WithCORS(config *CORSConfig) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cors = config
	return s
}

// WithRateLimiter sets the per-IP limiter. Nil disables rate limiting.
func (s *Server) WithRateLimiter(limiter *RateLimiter) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiter = limiter
	return s
}

// WithLogger sets the access logger.
func (s *Server) WithLogger(logger *log.Logger) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
	return s
}

// WithEndpoint reports the upstream endpoint on /health.
func (s *Server) WithEndpoint(fn func() string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoint = fn
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Tasks returns the task registry.
func (s *Server) Tasks() *tasks.Registry {
	return s.tasks
}

// ============================================================================
// ROUTES
// ============================================================================

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Browser UI
	s.router.HandleFunc("GET /{$}", s.handleIndex)
	s.router.Handle("GET /static/", staticHandler())

	// Health and stats
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)

	// Chat
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("POST /api/chat/stop", s.handleStop)
	s.router.HandleFunc("GET /api/tasks", s.handleTasks)

	// Conversations
	s.router.HandleFunc("GET /api/conversations", s.handleListConversations)
	s.router.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	s.router.HandleFunc("DELETE /api/conversations", s.handleClearConversations)
	s.router.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	s.router.HandleFunc("PUT /api/conversations/{id}", s.handleUpdateConversation)
	s.router.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	s.router.HandleFunc("GET /api/selected", s.handleGetSelected)
	s.router.HandleFunc("PUT /api/selected", s.handleSetSelected)
	s.router.HandleFunc("GET /api/search", s.handleSearch)

	// Folders
	s.router.HandleFunc("GET /api/folders", s.handleListFolders)
	s.router.HandleFunc("POST /api/folders", s.handleCreateFolder)
	s.router.HandleFunc("PUT /api/folders/{id}", s.handleRenameFolder)
	s.router.HandleFunc("DELETE /api/folders/{id}", s.handleDeleteFolder)

	// Prompts
	s.router.HandleFunc("GET /api/prompts", s.handleListPrompts)
	s.router.HandleFunc("POST /api/prompts", s.handleCreatePrompt)
	s.router.HandleFunc("PUT /api/prompts/{id}", s.handleUpdatePrompt)
	s.router.HandleFunc("DELETE /api/prompts/{id}", s.handleDeletePrompt)

	// Export / import
	s.router.HandleFunc("GET /api/export", s.handleExport)
	s.router.HandleFunc("POST /api/import", s.handleImport)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		CORSMiddleware(s.cors),
		LoggingMiddleware(s.logger),
	}
	if s.limiter != nil {
		middlewares = append(middlewares, RateLimitMiddleware(s.limiter))
	}
	if s.auth != nil && s.auth.Enabled {
		middlewares = append(middlewares, AuthMiddleware(s.auth))
	}
	return Chain(middlewares...)(s.router)
}

// ============================================================================
// HEALTH AND STATS
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Endpoint     string `json:"endpoint,omitempty"`
	ByteLimit    int    `json:"byte_limit"`
	HistoryScope string `json:"history_scope"`
	RunningTasks int    `json:"running_tasks"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	byteLimit, scope := s.forwarder.Settings()
	health := HealthResponse{
		Status:       "ok",
		Version:      Version,
		ByteLimit:    byteLimit,
		HistoryScope: string(scope),
		RunningTasks: s.tasks.RunningCount(),
	}

	s.mu.RLock()
	endpoint := s.endpoint
	s.mu.RUnlock()
	if endpoint != nil {
		health.Endpoint = endpoint()
	}

	writeJSON(w, http.StatusOK, health)
}

// StatsResponse represents the usage statistics response.
type StatsResponse struct {
	ServerStats
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.stats.GetStats()
	writeJSON(w, http.StatusOK, StatsResponse{
		ServerStats:   stats,
		UptimeSeconds: int64(stats.Uptime().Seconds()),
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	handler := s.Handler()

	s.mu.Lock()
	s.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write timeout: answers stream for as long as the upstream takes.
		IdleTimeout: 120 * time.Second,
	}
	srv := s.server
	limiter := s.limiter
	s.mu.Unlock()

	if limiter != nil {
		go s.cleanupLimiter(limiter)
	}

	log.Printf("SERVER_START | addr=%s version=%s", ln.Addr(), Version)
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// cleanupLimiter drops idle rate-limit buckets until shutdown.
func (s *Server) cleanupLimiter(limiter *RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := limiter.Cleanup(); n > 0 {
				log.Printf("RATE_LIMIT_CLEANUP | removed=%d", n)
			}
		}
	}
}

// Shutdown stops running forwards and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()

	stopped := s.tasks.StopAll()
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown stopped_tasks=%d", stopped)

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
