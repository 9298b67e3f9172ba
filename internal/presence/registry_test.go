package presence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	id string
}

func (d *fakeDevice) ID() string            { return d.id }
func (d *fakeDevice) Enqueue(_ []byte) bool { return true }

func TestRegisterFirstDevice(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := &fakeDevice{id: "c1"}

	count, cameOnline, rebound := registry.Register(conn, "u1", "Alice")

	req.Equal(1, count)
	req.True(cameOnline)
	req.Nil(rebound)
	req.True(registry.IsOnline("u1"))
	req.Len(registry.ConnectionsOf("u1"), 1)
	req.Equal(1, registry.UserCount())
	req.Equal(1, registry.ConnectionCount())
}

func TestRegisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := &fakeDevice{id: "c1"}

	registry.Register(conn, "u1", "Alice")
	count, cameOnline, rebound := registry.Register(conn, "u1", "Alice")

	req.Equal(1, count)
	req.False(cameOnline)
	req.Nil(rebound)
	req.Equal(1, registry.ConnectionCount())
}

func TestRegisterSecondDeviceIsNotAnOnlineTransition(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	_, first, _ := registry.Register(&fakeDevice{id: "c1"}, "u1", "Alice")
	count, second, _ := registry.Register(&fakeDevice{id: "c2"}, "u1", "Alice")

	req.True(first)
	req.False(second)
	req.Equal(2, count)
	req.Len(registry.ConnectionsOf("u1"), 2)
}

func TestRegisterUpdatesDisplayName(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	conn1 := &fakeDevice{id: "c1"}
	conn2 := &fakeDevice{id: "c2"}
	registry.Register(conn1, "u1", "Alice")
	registry.Register(conn2, "u1", "Alicia")
	registry.Unregister(conn2)
	off := registry.Unregister(conn1)

	req.NotNil(off)
	req.Equal("Alicia", off.DisplayName)
}

func TestUnregisterKeepsUserOnlineWhileDevicesRemain(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn1 := &fakeDevice{id: "c1"}
	conn2 := &fakeDevice{id: "c2"}
	registry.Register(conn1, "u1", "Alice")
	registry.Register(conn2, "u1", "Alice")

	off := registry.Unregister(conn1)

	req.Nil(off)
	req.True(registry.IsOnline("u1"))
	req.Len(registry.ConnectionsOf("u1"), 1)
}

func TestUnregisterLastDeviceSignalsOffline(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := &fakeDevice{id: "c1"}
	registry.Register(conn, "u1", "Alice")

	off := registry.Unregister(conn)

	req.NotNil(off)
	req.Equal("u1", off.UserID)
	req.Equal("Alice", off.DisplayName)
	req.False(registry.IsOnline("u1"))
	req.Nil(registry.ConnectionsOf("u1"))
	req.Equal(0, registry.UserCount())
	req.Equal(0, registry.ConnectionCount())
}

func TestUnregisterUnboundIsNoOp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := &fakeDevice{id: "c1"}

	req.Nil(registry.Unregister(conn))

	registry.Register(conn, "u1", "Alice")
	req.NotNil(registry.Unregister(conn))
	// close arriving twice
	req.Nil(registry.Unregister(conn))
}

func TestRebindMovesConnection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := &fakeDevice{id: "c1"}
	registry.Register(conn, "u1", "Alice")

	count, cameOnline, rebound := registry.Register(conn, "u2", "Bob")

	req.Equal(1, count)
	req.True(cameOnline)
	req.NotNil(rebound)
	req.Equal("u1", rebound.UserID)
	req.False(registry.IsOnline("u1"))
	req.True(registry.IsOnline("u2"))

	userID, ok := registry.BindingOf(conn)
	req.True(ok)
	req.Equal("u2", userID)
}

func TestRebindDoesNotSignalOfflineWhileOtherDevicesRemain(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn1 := &fakeDevice{id: "c1"}
	conn2 := &fakeDevice{id: "c2"}
	registry.Register(conn1, "u1", "Alice")
	registry.Register(conn2, "u1", "Alice")

	_, _, rebound := registry.Register(conn2, "u2", "Bob")

	req.Nil(rebound)
	req.True(registry.IsOnline("u1"))
	req.Len(registry.ConnectionsOf("u1"), 1)
	req.Len(registry.ConnectionsOf("u2"), 1)
}

func TestBidirectionalConsistency(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conns := []*fakeDevice{{id: "c1"}, {id: "c2"}, {id: "c3"}}
	registry.Register(conns[0], "u1", "Alice")
	registry.Register(conns[1], "u1", "Alice")
	registry.Register(conns[2], "u2", "Bob")

	for _, conn := range conns {
		userID, ok := registry.BindingOf(conn)
		req.True(ok)
		found := false
		for _, device := range registry.ConnectionsOf(userID) {
			if device.ID() == conn.ID() {
				found = true
			}
		}
		req.True(found, "connection %s missing from its bound user's set", conn.ID())
	}
}
