package connection

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/P-eter-shi/compow/internal/logger"
)

const writeWait = 10 * time.Second

// Connection wraps one WebSocket session. All writes go through a buffered
// channel drained by WritePump, so fan-out never blocks on a slow client.
type Connection struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func New(ws *websocket.Conn, buffer int) *Connection {
	return &Connection{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *Connection) ID() string {
	return c.id
}

// Enqueue implements Device. A full buffer means the client is not keeping
// up; the frame is dropped for this device and fan-out continues elsewhere.
func (c *Connection) Enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		logger.WarnF("[%s] Outbound buffer full, dropping frame", c.id)
		return false
	}
}

// WritePump drains the outbound buffer and keeps the session alive with
// pings. It owns all writes to the underlying socket and closes it on exit,
// which in turn unblocks the read loop.
func (c *Connection) WritePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.ws.Close(); err != nil && !IsNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", c.id, err)
		}
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.DebugF("[%s] Fail to send data, details: %v", c.id, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.DebugF("[%s] Fail to send ping, details: %v", c.id, err)
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close stops the write pump and closes the socket. Safe to call more than
// once and from any goroutine.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}
