package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/P-eter-shi/compow/internal/config"
	"github.com/P-eter-shi/compow/internal/connection"
	"github.com/P-eter-shi/compow/internal/dispatch"
	"github.com/P-eter-shi/compow/internal/logger"
	"github.com/P-eter-shi/compow/internal/metrics"
	"github.com/P-eter-shi/compow/internal/presence"
)

// Server serves the WebSocket endpoint and the read-only HTTP ops surface
// (liveness, stats, metrics).
type Server struct {
	cfg        config.Config
	registry   *presence.Registry
	manager    *connection.Manager
	router     *Router
	collector  *metrics.Collector
	gatherer   prometheus.Gatherer
	httpServer *http.Server
	upgrader   websocket.Upgrader
	sem        chan struct{}
	started    time.Time

	pingInterval    time.Duration
	pongTimeout     time.Duration
	shutdownTimeout time.Duration
}

func NewServer(cfg config.Config, registry *presence.Registry, manager *connection.Manager, dispatcher *dispatch.Dispatcher, collector *metrics.Collector, gatherer prometheus.Gatherer) (*Server, error) {
	pingInterval, err := cfg.Server.PingIntervalDuration()
	if err != nil {
		return nil, err
	}
	pongTimeout, err := cfg.Server.PongTimeoutDuration()
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := cfg.Server.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:       cfg,
		registry:  registry,
		manager:   manager,
		router:    NewRouter(registry, manager, dispatcher, collector),
		collector: collector,
		gatherer:  gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the mobile client connects from arbitrary origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sem:             make(chan struct{}, cfg.Server.MaxConnections),
		pingInterval:    pingInterval,
		pongTimeout:     pongTimeout,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/ws", s.handleWS)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(s.gatherer))
	return r
}

// Start blocks serving until shutdown.
func (s *Server) Start() error {
	s.started = time.Now()
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.AppPort),
		Handler: s.routes(),
	}
	logger.InfoF("%s listening on port %d", s.cfg.AppName, s.cfg.AppPort)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ShutdownCallback stops accepting new connections and closes the live ones.
// WebSocket sessions are hijacked from the HTTP server, so they must be
// closed through the manager rather than by Shutdown itself.
type ShutdownCallback struct {
	server *Server
}

func (s *Server) ShutdownCallback() *ShutdownCallback {
	return &ShutdownCallback{server: s}
}

func (sc *ShutdownCallback) Invoke(ctx context.Context) error {
	s := sc.server
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	for _, device := range s.manager.All() {
		if conn, ok := device.(*connection.Connection); ok {
			conn.Close()
		}
	}
	return err
}

// handleWS upgrades the HTTP request and runs the session until the
// transport closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.WarnF("Connection limit of %d reached, refusing upgrade", s.cfg.Server.MaxConnections)
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		<-s.sem
		logger.WarnF("Fail to upgrade connection from %s, details: %v", r.RemoteAddr, err)
		return
	}

	conn := connection.New(ws, s.cfg.Server.WriteBuffer)
	logger.DebugF("[%s] Accepted new connection from %s", conn.ID(), r.RemoteAddr)
	s.collector.RecordConnectionOpened()
	s.manager.Add(conn)
	go conn.WritePump(s.pingInterval)

	limiter := rate.NewLimiter(rate.Limit(s.cfg.Server.EventRate), s.cfg.Server.EventBurst)
	handler := newConnectionHandler(conn, ws, s.router, limiter, s.cfg.Server.ReadLimitBytes, s.pongTimeout)
	handler.handleConnection()

	s.router.HandleClose(conn)
	s.manager.Remove(conn)
	conn.Close()
	s.collector.RecordConnectionClosed()
	logger.DebugF("[%s] Connection closed", conn.ID())
	<-s.sem
}

type healthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	ConnectedUsers   int    `json:"connectedUsers"`
	TotalConnections int    `json:"totalConnections"`
	Timestamp        string `json:"timestamp"`
}

type statsResponse struct {
	healthResponse
	Rooms  int     `json:"rooms"`
	Uptime float64 `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, healthResponse{
		Status:           "online",
		Service:          s.cfg.AppName,
		ConnectedUsers:   s.registry.UserCount(),
		TotalConnections: s.registry.ConnectionCount(),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, statsResponse{
		healthResponse: healthResponse{
			Status:           "online",
			Service:          s.cfg.AppName,
			ConnectedUsers:   s.registry.UserCount(),
			TotalConnections: s.registry.ConnectionCount(),
			Timestamp:        time.Now().UTC().Format(time.RFC3339),
		},
		Rooms:  s.registry.ConnectionCount(),
		Uptime: time.Since(s.started).Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorF("Fail to write response, details: %v", err)
	}
}
