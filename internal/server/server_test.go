package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/P-eter-shi/compow/internal/config"
	"github.com/P-eter-shi/compow/internal/connection"
	"github.com/P-eter-shi/compow/internal/dispatch"
	"github.com/P-eter-shi/compow/internal/metrics"
	"github.com/P-eter-shi/compow/internal/presence"
	"github.com/P-eter-shi/compow/internal/protocol"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	registry := presence.NewRegistry()
	manager := connection.NewManager()
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry, registry)
	dispatcher := dispatch.NewDispatcher(registry, collector)

	srv, err := NewServer(config.DefaultConfig(), registry, manager, dispatcher, collector, promRegistry)
	require.NoError(t, err)
	srv.started = time.Now()

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := protocol.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func read(t *testing.T, ws *websocket.Conn) *protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(raw)
	require.NoError(t, err)
	return env
}

func TestJoinOverWebSocket(t *testing.T) {
	req := require.New(t)
	_, ts := newTestServer(t)
	ws := dial(t, ts)

	send(t, ws, protocol.EventJoinRoom, protocol.JoinRoom{UserID: "u1", UserName: "Alice"})

	env := read(t, ws)
	req.Equal(protocol.EventConnectionStatus, env.Event)
	var status protocol.ConnectionStatus
	req.NoError(env.Bind(&status))
	req.True(status.Success)
	req.Equal("u1", status.UserID)
	req.Equal(1, status.DeviceCount)
}

func TestAlertDeliveryOverWebSocket(t *testing.T) {
	req := require.New(t)
	_, ts := newTestServer(t)

	recipient := dial(t, ts)
	send(t, recipient, protocol.EventJoinRoom, protocol.JoinRoom{UserID: "A", UserName: "Anna"})
	read(t, recipient) // connection_status

	sender := dial(t, ts)
	send(t, sender, protocol.EventJoinRoom, protocol.JoinRoom{UserID: "S", UserName: "Sam"})
	read(t, sender)                // connection_status
	read(t, recipient)             // S came online
	send(t, sender, protocol.EventEmergencyAlert, protocol.EmergencyAlert{
		FromUserID:   "S",
		FromUserName: "Sam",
		Message:      "help",
		Latitude:     1,
		Longitude:    2,
		ContactIDs:   protocol.StringList{"A", "B"},
		Timestamp:    77,
	})

	env := read(t, sender)
	req.Equal(protocol.EventEmergencyAlertAck, env.Event)
	var summary protocol.DeliverySummary
	req.NoError(env.Bind(&summary))
	req.Equal(1, summary.Delivered)
	req.Equal(1, summary.Failed)
	req.Equal(2, summary.Total)

	env = read(t, recipient)
	req.Equal(protocol.EventEmergencyAlertReceived, env.Event)
	var received protocol.EmergencyAlertReceived
	req.NoError(env.Bind(&received))
	req.Equal("help", received.Message)
	req.Equal(protocol.AlertTypeEmergency, received.AlertType)
}

func TestHealthAndStatsEndpoints(t *testing.T) {
	req := require.New(t)
	srv, ts := newTestServer(t)

	ws := dial(t, ts)
	send(t, ws, protocol.EventJoinRoom, protocol.JoinRoom{UserID: "u1", UserName: "Alice"})
	read(t, ws)

	resp, err := http.Get(ts.URL + "/")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var health healthResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&health))
	req.Equal("online", health.Status)
	req.Equal(1, health.ConnectedUsers)
	req.Equal(1, health.TotalConnections)

	statsResp, err := http.Get(ts.URL + "/stats")
	req.NoError(err)
	defer statsResp.Body.Close()

	var stats statsResponse
	req.NoError(json.NewDecoder(statsResp.Body).Decode(&stats))
	req.Equal(1, stats.Rooms)
	req.GreaterOrEqual(stats.Uptime, 0.0)

	// closing the socket must eventually clear presence
	req.NoError(ws.Close())
	req.Eventually(func() bool {
		return srv.registry.UserCount() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMetricsEndpoint(t *testing.T) {
	req := require.New(t)
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
}

func TestMalformedFrameGetsDispatchError(t *testing.T) {
	req := require.New(t)
	_, ts := newTestServer(t)
	ws := dial(t, ts)

	req.NoError(ws.WriteMessage(websocket.TextMessage, []byte("not json")))

	env := read(t, ws)
	req.Equal(protocol.EventDispatchError, env.Event)
}
