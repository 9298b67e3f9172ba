package connection

import (
	"errors"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/P-eter-shi/compow/internal/logger"
)

// Manager tracks every live connection, bound to a user or not. Presence
// broadcasts fan out over this set; the per-user view lives in the presence
// registry.
type Manager struct {
	mu    sync.RWMutex
	conns map[string]Device
}

func NewManager() *Manager {
	return &Manager{conns: make(map[string]Device)}
}

func (m *Manager) Add(conn Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn.ID()] = conn
	logger.DebugF("[%s] Connection tracked, %d total", conn.ID(), len(m.conns))
}

func (m *Manager) Remove(conn Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, conn.ID())
	logger.DebugF("[%s] Connection untracked, %d total", conn.ID(), len(m.conns))
}

func (m *Manager) Get(connID string) (Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

// All returns a snapshot of the live connections.
func (m *Manager) All() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := make([]Device, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func IsNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}
