// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/position-dashboard/internal/circuitbreaker"
	"github.com/position-dashboard/internal/logging"
	"github.com/position-dashboard/internal/metrics"
	"github.com/position-dashboard/internal/types"
)

// SessionService defines the session operations the API exposes
type SessionService interface {
	Create() (*types.DisplayState, error)
	Connect(sessionID, publicKey string) (*types.DisplayState, error)
	Disconnect(sessionID string) (*types.DisplayState, error)
	State(sessionID string) (*types.DisplayState, error)
	Touch(sessionID string) bool
	Teardown(sessionID string) error
	Count() int
}

// HealthCheck probes one dependency
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	sessions    SessionService
	hub         *StreamHub
	checks      []HealthCheck
	breakers    []*circuitbreaker.CircuitBreaker
	metrics     *metrics.Metrics
	rateLimiter *RateLimiter
	upgrader    websocket.Upgrader
	config      *ServerConfig

	stopPrune chan struct{}
	pruneOnce sync.Once
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ClientRPS       int
	ClientBurst     int
	AllowedOrigins  []string
}

// ServerDeps wires the collaborators of a Server
type ServerDeps struct {
	Sessions SessionService
	Hub      *StreamHub
	Checks   []HealthCheck
	Breakers []*circuitbreaker.CircuitBreaker
	Metrics  *metrics.Metrics
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps ServerDeps) *Server {
	hub := deps.Hub
	if hub == nil {
		hub = NewStreamHub()
	}

	s := &Server{
		router:    mux.NewRouter(),
		sessions:  deps.Sessions,
		hub:       hub,
		checks:    deps.Checks,
		breakers:  deps.Breakers,
		metrics:   deps.Metrics,
		config:    config,
		stopPrune: make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(config.AllowedOrigins),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.rateLimiter = NewRateLimiter(s.config.ClientRPS, s.config.ClientBurst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware(s.config.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(s.rateLimiter))
	api.Use(CompressionMiddleware)

	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/wallet", s.handleConnectWallet).Methods("PUT")
	api.HandleFunc("/sessions/{id}/wallet", s.handleDisconnectWallet).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/sessions/{id}/stream", s.handleStream).Methods("GET")

	// Preflight requests need a matching route for the CORS middleware to run
	s.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
}

// healthResponse is the body of GET /health
type healthResponse struct {
	Status   string                  `json:"status"`
	Service  string                  `json:"service"`
	Sessions int                     `json:"sessions"`
	Checks   map[string]string       `json:"checks"`
	Breakers []*circuitbreaker.Stats `json:"breakers,omitempty"`
}

// handleHealth handles health check requests. Any failing dependency
// reports 503 so load balancers can route around the instance.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:   "healthy",
		Service:  "position-dashboard",
		Sessions: s.sessions.Count(),
		Checks:   make(map[string]string, len(s.checks)),
	}

	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			resp.Checks[c.Name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	for _, b := range s.breakers {
		stats := b.GetStats()
		if stats.State == circuitbreaker.StateOpen {
			resp.Status = "degraded"
		}
		resp.Breakers = append(resp.Breakers, stats)
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

// Hub returns the stream hub to register as a state sink
func (s *Server) Hub() *StreamHub {
	return s.hub
}

// Router exposes the handler for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	go s.pruneLoop()
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	s.pruneOnce.Do(func() { close(s.stopPrune) })
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) pruneLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopPrune:
			return
		case <-ticker.C:
			s.rateLimiter.Prune(10 * time.Minute)
		}
	}
}

func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
