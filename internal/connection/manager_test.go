package connection

import (
	"net"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type stubDevice struct{ id string }

func (d *stubDevice) ID() string          { return d.id }
func (d *stubDevice) Enqueue([]byte) bool { return true }

func TestManagerTracksConnections(t *testing.T) {
	req := require.New(t)
	m := NewManager()

	a := &stubDevice{id: "conn-a"}
	b := &stubDevice{id: "conn-b"}
	m.Add(a)
	m.Add(b)

	req.Equal(2, m.Count())
	got, ok := m.Get("conn-a")
	req.True(ok)
	req.Same(a, got)
	req.Len(m.All(), 2)

	m.Remove(a)
	req.Equal(1, m.Count())
	_, ok = m.Get("conn-a")
	req.False(ok)
}

func TestIsNetClosedError(t *testing.T) {
	req := require.New(t)

	req.True(IsNetClosedError(net.ErrClosed))
	req.True(IsNetClosedError(&websocket.CloseError{Code: websocket.CloseGoingAway}))
	req.False(IsNetClosedError(&websocket.CloseError{Code: websocket.CloseProtocolError}))
	req.False(IsNetClosedError(net.UnknownNetworkError("tcp9")))
}
