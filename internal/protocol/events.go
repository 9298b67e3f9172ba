// Package protocol defines the JSON wire protocol spoken over the WebSocket
// transport: event names, payload shapes and the envelope framing.
package protocol

// Inbound event names (client to server).
const (
	EventJoinRoom           = "join_room"
	EventLeaveRoom          = "leave_room"
	EventEmergencyAlert     = "emergency_alert"
	EventSafeAlert          = "safe_alert"
	EventChatMessage        = "chat_message"
	EventLiveLocationUpdate = "live_location_update"
)

// Outbound event names (server to client).
const (
	EventConnectionStatus       = "connection_status"
	EventEmergencyAlertReceived = "emergency_alert_received"
	EventSafeAlertReceived      = "safe_alert_received"
	EventChatMessageReceived    = "chat_message_received"
	EventContactLiveLocation    = "contact_live_location"
	EventUserStatusChanged      = "user_status_changed"
	EventEmergencyAlertAck      = "emergency_alert_ack"
	EventSafeAlertAck           = "safe_alert_ack"
	EventChatMessageAck         = "chat_message_ack"
	EventDispatchError          = "dispatch_error"
)

// Alert type markers carried by *_received events.
const (
	AlertTypeEmergency = "emergency"
	AlertTypeSafe      = "safe"
)

// Presence states carried by user_status_changed.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Per-recipient delivery outcomes.
const (
	DeliveryDelivered = "delivered"
	DeliveryOffline   = "offline"
)
