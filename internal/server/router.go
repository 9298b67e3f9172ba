package server

import (
	"time"

	"github.com/P-eter-shi/compow/internal/connection"
	"github.com/P-eter-shi/compow/internal/dispatch"
	"github.com/P-eter-shi/compow/internal/logger"
	"github.com/P-eter-shi/compow/internal/metrics"
	"github.com/P-eter-shi/compow/internal/presence"
	"github.com/P-eter-shi/compow/internal/protocol"
)

// Router demultiplexes inbound events, owns all presence registry mutation
// and emits acknowledgements and presence broadcasts. The dispatcher only
// ever reads the registry.
type Router struct {
	registry   *presence.Registry
	manager    *connection.Manager
	dispatcher *dispatch.Dispatcher
	collector  *metrics.Collector
}

func NewRouter(registry *presence.Registry, manager *connection.Manager, dispatcher *dispatch.Dispatcher, collector *metrics.Collector) *Router {
	return &Router{
		registry:   registry,
		manager:    manager,
		dispatcher: dispatcher,
		collector:  collector,
	}
}

// Route handles one decoded event from conn.
func (r *Router) Route(conn connection.Device, env *protocol.Envelope) {
	switch env.Event {
	case protocol.EventJoinRoom:
		var p protocol.JoinRoom
		if err := env.Bind(&p); err != nil {
			r.emit(conn, protocol.EventConnectionStatus, protocol.ConnectionStatus{Success: false, Message: err.Error()})
			return
		}
		r.handleJoin(conn, &p)
	case protocol.EventLeaveRoom:
		r.handleLeave(conn)
	case protocol.EventEmergencyAlert:
		var p protocol.EmergencyAlert
		if err := env.Bind(&p); err != nil {
			r.reject(conn, env.Event, err)
			return
		}
		summary, err := r.dispatcher.Emergency(&p)
		if err != nil {
			r.reject(conn, env.Event, err)
			return
		}
		r.emit(conn, protocol.EventEmergencyAlertAck, summary)
	case protocol.EventSafeAlert:
		var p protocol.SafeAlert
		if err := env.Bind(&p); err != nil {
			r.reject(conn, env.Event, err)
			return
		}
		summary, err := r.dispatcher.Safe(&p)
		if err != nil {
			r.reject(conn, env.Event, err)
			return
		}
		r.emit(conn, protocol.EventSafeAlertAck, summary)
	case protocol.EventChatMessage:
		var p protocol.ChatMessage
		if err := env.Bind(&p); err != nil {
			r.reject(conn, env.Event, err)
			return
		}
		summary, err := r.dispatcher.Chat(&p)
		if err != nil {
			r.reject(conn, env.Event, err)
			return
		}
		r.emit(conn, protocol.EventChatMessageAck, summary)
	case protocol.EventLiveLocationUpdate:
		var p protocol.LiveLocationUpdate
		if err := env.Bind(&p); err != nil {
			r.reject(conn, env.Event, err)
			return
		}
		if err := r.dispatcher.LiveLocation(&p); err != nil {
			r.reject(conn, env.Event, err)
		}
	default:
		logger.WarnF("[%s] %s event has not been supported", conn.ID(), env.Event)
	}
}

// HandleClose runs the same registry cleanup as leave_room when the
// transport closes. Calling it for an unbound or already cleaned connection
// is a no-op.
func (r *Router) HandleClose(conn connection.Device) {
	if off := r.registry.Unregister(conn); off != nil {
		logger.InfoF("%s (%s) fully disconnected, all devices offline", off.DisplayName, off.UserID)
		r.broadcastStatus(conn, off.UserID, off.DisplayName, protocol.StatusOffline)
	}
}

func (r *Router) handleJoin(conn connection.Device, p *protocol.JoinRoom) {
	if err := p.Validate(); err != nil {
		r.emit(conn, protocol.EventConnectionStatus, protocol.ConnectionStatus{Success: false, Message: err.Error()})
		return
	}

	deviceCount, cameOnline, rebound := r.registry.Register(conn, p.UserID, p.UserName)
	r.collector.RecordJoin()
	logger.InfoF("%s (%s) joined - %d device(s) connected", p.UserName, p.UserID, deviceCount)

	r.emit(conn, protocol.EventConnectionStatus, protocol.ConnectionStatus{
		Success:     true,
		Message:     "Connected to ComPow relay",
		UserID:      p.UserID,
		DeviceCount: deviceCount,
	})

	// a rebind may have taken the previous identity fully offline
	if rebound != nil {
		r.broadcastStatus(conn, rebound.UserID, rebound.DisplayName, protocol.StatusOffline)
	}
	// a device-count increase is not an online transition
	if cameOnline {
		r.broadcastStatus(conn, p.UserID, p.UserName, protocol.StatusOnline)
	}
}

func (r *Router) handleLeave(conn connection.Device) {
	if off := r.registry.Unregister(conn); off != nil {
		logger.InfoF("User %s left, all devices offline", off.UserID)
		r.broadcastStatus(conn, off.UserID, off.DisplayName, protocol.StatusOffline)
	} else {
		logger.DebugF("[%s] Connection left or was not bound", conn.ID())
	}
}

// broadcastStatus tells every connection about a presence transition, except
// the triggering connection and any connection still bound to the subject.
func (r *Router) broadcastStatus(trigger connection.Device, userID, userName, status string) {
	frame, err := protocol.Encode(protocol.EventUserStatusChanged, protocol.UserStatusChanged{
		UserID:    userID,
		UserName:  userName,
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.ErrorF("Fail to encode %s broadcast, details: %v", protocol.EventUserStatusChanged, err)
		return
	}

	exclude := map[string]struct{}{trigger.ID(): {}}
	for _, device := range r.registry.ConnectionsOf(userID) {
		exclude[device.ID()] = struct{}{}
	}
	for _, device := range r.manager.All() {
		if _, skip := exclude[device.ID()]; skip {
			continue
		}
		device.Enqueue(frame)
	}
	r.collector.RecordPresenceBroadcast(status)
}

func (r *Router) reject(conn connection.Device, event string, err error) {
	logger.WarnF("[%s] Rejected %s request, details: %v", conn.ID(), event, err)
	r.collector.RecordDispatchError()
	r.emit(conn, protocol.EventDispatchError, protocol.DispatchError{Event: event, Reason: err.Error()})
}

func (r *Router) emit(conn connection.Device, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		logger.ErrorF("[%s] Fail to encode %s event, details: %v", conn.ID(), event, err)
		return
	}
	conn.Enqueue(frame)
}
