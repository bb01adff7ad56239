// Package server exposes the analysis and redaction pipeline over HTTP:
// analyze/apply/bulk endpoints, preset management, session history, and the
// dashboard WebSocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/veil-sh/veil/internal/config"
	"github.com/veil-sh/veil/internal/history"
	"github.com/veil-sh/veil/internal/logger"
	"github.com/veil-sh/veil/internal/pipeline"
	"github.com/veil-sh/veil/internal/preset"
	"github.com/veil-sh/veil/internal/websocket"
)

// Version is the server version reported by /info.
const Version = "0.1.0"

// Server is the main HTTP server.
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	pipeline  *pipeline.Pipeline
	presets   preset.Store
	history   *history.Store
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	limiter   *clientLimiter
	startTime time.Time
	done      chan struct{}
}

// New creates a server instance. history may be nil when session
// persistence is disabled.
func New(cfg *config.Config, log *logger.Logger, pl *pipeline.Pipeline, presets preset.Store, hist *history.Store) (*Server, error) {
	if pl == nil {
		return nil, fmt.Errorf("server requires a pipeline")
	}
	if presets == nil {
		return nil, fmt.Errorf("server requires a preset store")
	}

	hubConfig := &websocket.HubConfig{
		BroadcastDetections: cfg.WebSocket.Events.BroadcastDetections,
		BroadcastProgress:   cfg.WebSocket.Events.BroadcastProgress,
		BroadcastSystem:     cfg.WebSocket.Events.BroadcastSystem,
	}
	wsHub := websocket.NewHub(hubConfig, log.WithComponent("websocket").Logger)

	router := mux.NewRouter()

	server := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		pipeline:  pl,
		presets:   presets,
		history:   hist,
		router:    router,
		wsHub:     wsHub,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}

	if cfg.Server.RateLimit.Enabled {
		server.limiter = newClientLimiter(cfg.Server.RateLimit.RequestsPerMin, cfg.Server.RateLimit.Burst)
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Info endpoint
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Dashboard endpoint - static HTML
	s.router.HandleFunc("/", s.handleDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", s.handleDashboard).Methods("GET")

	// WebSocket endpoint for dashboard
	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	// API endpoints
	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	if s.limiter != nil {
		api.Use(s.rateLimitMiddleware)
	}

	api.HandleFunc("/analyze", s.handleAnalyze).Methods("POST")
	api.HandleFunc("/apply", s.handleApply).Methods("POST")
	api.HandleFunc("/bulk", s.handleBulk).Methods("POST")

	api.HandleFunc("/presets", s.handleListPresets).Methods("GET")
	api.HandleFunc("/presets", s.handleCreatePreset).Methods("POST")
	api.HandleFunc("/presets/{id}", s.handleGetPreset).Methods("GET")
	api.HandleFunc("/presets/{id}", s.handleUpdatePreset).Methods("PUT")
	api.HandleFunc("/presets/{id}", s.handleDeletePreset).Methods("DELETE")

	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}/records", s.handleListRecords).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting veil server",
		zap.Int("port", s.config.Server.Port),
		zap.String("active_preset", s.config.Detection.ActivePreset),
		zap.Bool("history_enabled", s.history != nil),
		zap.Bool("websocket_enabled", s.config.WebSocket.Enabled),
	)

	// Start WebSocket hub in a separate goroutine
	go s.wsHub.Run()
	go s.broadcastSystemStatus()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping veil server")
	close(s.done)
	return s.server.Shutdown(ctx)
}

// broadcastSystemStatus periodically pushes a status event to dashboard
// clients. The hub drops these when broadcast_system is disabled.
func (s *Server) broadcastSystemStatus() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.wsHub.BroadcastEvent(websocket.Event{
				Type:      websocket.EventTypeSystemStatus,
				Timestamp: time.Now(),
				Data:      s.systemStatus(),
			})
		}
	}
}

// systemStatus assembles the current status snapshot. History totals are
// zero when session persistence is disabled.
func (s *Server) systemStatus() websocket.SystemStatusEvent {
	hubStats := s.wsHub.GetStats()
	status := websocket.SystemStatusEvent{
		Status:         "healthy",
		Version:        Version,
		UptimeSeconds:  time.Since(s.startTime).Seconds(),
		ActiveSessions: int(hubStats.ActiveConnections),
	}

	if s.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if stats, err := s.history.GetStats(ctx); err == nil {
			status.TotalFiles = stats.TotalFiles
			status.TotalDetections = stats.TotalDetections
		}
	}

	return status
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	stats := s.wsHub.GetStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"veil",
		"version":%q,
		"active_preset":%q,
		"confidence_threshold":%g,
		"history_enabled":%t,
		"uptime_seconds":%.0f,
		"dashboard_clients":%d
	}`, Version, s.config.Detection.ActivePreset, s.config.Detection.ConfidenceThreshold,
		s.history != nil, time.Since(s.startTime).Seconds(), stats.ActiveConnections)
}

// handleWebSocket handles WebSocket connections for the dashboard
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}
