package server

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/P-eter-shi/compow/internal/connection"
	"github.com/P-eter-shi/compow/internal/logger"
	"github.com/P-eter-shi/compow/internal/protocol"
)

var errRateLimited = errors.New("event rate limit exceeded")

// ConnectionHandler owns the read side of one WebSocket session: framing,
// keepalive deadlines, per-connection rate limiting and event decoding.
// Writes belong to the connection's write pump.
type ConnectionHandler struct {
	conn        *connection.Connection
	ws          *websocket.Conn
	router      *Router
	limiter     *rate.Limiter
	readLimit   int64
	pongTimeout time.Duration
}

func newConnectionHandler(conn *connection.Connection, ws *websocket.Conn, router *Router, limiter *rate.Limiter, readLimit int64, pongTimeout time.Duration) *ConnectionHandler {
	return &ConnectionHandler{
		conn:        conn,
		ws:          ws,
		router:      router,
		limiter:     limiter,
		readLimit:   readLimit,
		pongTimeout: pongTimeout,
	}
}

// handleConnection reads events until the transport closes. After it returns
// the connection is terminal: cleanup runs once and no further events are
// accepted.
func (h *ConnectionHandler) handleConnection() {
	h.ws.SetReadLimit(h.readLimit)
	_ = h.ws.SetReadDeadline(time.Now().Add(h.pongTimeout))
	h.ws.SetPongHandler(func(string) error {
		return h.ws.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})

	for {
		_, raw, err := h.ws.ReadMessage()
		if err != nil {
			handleReadError(h.conn.ID(), err)
			return
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			h.router.reject(h.conn, "", err)
			continue
		}

		logger.DebugF("[%s] Receive %s event", h.conn.ID(), env.Event)

		if !h.limiter.Allow() {
			// shed location updates without an error, the next
			// update supersedes the dropped one
			if env.Event != protocol.EventLiveLocationUpdate {
				h.router.reject(h.conn, env.Event, errRateLimited)
			}
			continue
		}

		h.router.Route(h.conn, env)
	}
}

func handleReadError(connID string, err error) {
	switch {
	case connection.IsNetClosedError(err), errors.Is(err, io.EOF):
		logger.InfoF("[%s] Client close connection", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	default:
		logger.ErrorF("[%s] Error occured while reading message, details: %v", connID, err)
	}
}
