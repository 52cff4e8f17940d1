package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptix/hub/internal/broadcast"
	"github.com/uptix/hub/internal/ingest"
	"github.com/uptix/hub/internal/store"
)

// AlertTester sends a test notification through the configured transport.
type AlertTester interface {
	SendTest(ctx context.Context) error
}

type Server struct {
	cfg           *Config
	store         store.Store
	ingest        *ingest.Coordinator
	hub           *broadcast.Hub
	alerts        AlertTester
	router        chi.Router
	httpServer    *http.Server
	logger        *slog.Logger
	reportLimiter *rateLimiter
	loginLimiter  *rateLimiter

	// Hijacked agent sockets outlive http.Server.Shutdown, so the server
	// tracks them and owns the context their ingests run under.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	agentWG    sync.WaitGroup

	mu              sync.Mutex // guards the fields below
	agents          map[*websocket.Conn]struct{}
	closing         bool
	challengeServer *http.Server // ACME HTTP-01 listener in autocert mode
}

func New(cfg *Config, st store.Store, coord *ingest.Coordinator, hub *broadcast.Hub, alerts AlertTester, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	baseCtx, cancelBase := context.WithCancel(context.Background())
	s := &Server{
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
		agents:     make(map[*websocket.Conn]struct{}),
		cfg:        cfg,
		store:      st,
		ingest:     coord,
		hub:        hub,
		alerts:     alerts,
		router:     r,
		logger:     logger,
		// 30 reports per minute per IP, generous for several agents behind one NAT
		reportLimiter: newRateLimiter(2*time.Second, 30),
		// 5 login attempts, then one every 12 seconds
		loginLimiter: newRateLimiter(12*time.Second, 5),
	}

	// Agent ingestion
	r.With(s.agentAuth).Get("/ws/agent", s.handleAgentSocket)

	// Live feed for dashboards
	r.With(s.requireAuth).Get("/ws/live", s.handleLiveSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.With(s.reportLimiter.middleware, s.agentAuth).Post("/report", s.handleReport)
		r.With(s.loginLimiter.middleware).Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/servers", s.handleListServers)
			r.Get("/servers/{id}", s.handleGetServer)
			r.Put("/servers/{id}/maintenance", s.handleSetMaintenance)
			r.Post("/alerts/test", s.handleTestAlert)
		})
	})

	// Health check and metrics (no auth)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("starting server", "addr", s.cfg.ListenAddr, "tls", s.cfg.TLSMode)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests,
// then closes agent sockets and waits for their handlers to return. Live
// viewer sockets are closed separately by closing the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	s.closing = true
	conns := make([]*websocket.Conn, 0, len(s.agents))
	for conn := range s.agents {
		conns = append(conns, conn)
	}
	challenge := s.challengeServer
	s.mu.Unlock()

	if challenge != nil {
		challenge.Shutdown(ctx)
	}

	s.cancelBase()
	deadline := time.Now().Add(writeWait)
	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub shutting down"), deadline)
		conn.Close()
	}
	if len(conns) > 0 {
		s.logger.Info("closed agent sockets", "count", len(conns))
	}

	done := make(chan struct{})
	go func() {
		s.agentWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// trackAgent registers an upgraded agent socket. It reports false once
// Shutdown has begun.
func (s *Server) trackAgent(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.agents[conn] = struct{}{}
	s.agentWG.Add(1)
	return true
}

func (s *Server) untrackAgent(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.agents, conn)
	s.mu.Unlock()
	s.agentWG.Done()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
