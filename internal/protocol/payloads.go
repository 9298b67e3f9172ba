package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedPayload = errors.New("malformed payload")

// StringList accepts both a JSON array of strings and a JSON string that
// itself encodes such an array. The mobile client sends contact lists in
// either shape depending on the code path.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: contact list is neither array nor string", ErrMalformedPayload)
	}
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		return fmt.Errorf("%w: contact list string is not a JSON array", ErrMalformedPayload)
	}
	*l = arr
	return nil
}

// JoinRoom binds a connection to a user identity. Repeating it from the same
// connection is an idempotent re-registration.
type JoinRoom struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (p *JoinRoom) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("%w: join_room requires userId", ErrMalformedPayload)
	}
	return nil
}

type LeaveRoom struct {
	UserID string `json:"userId"`
}

// EmergencyAlert carries a danger notification with the sender's position.
// Timestamps are unix milliseconds supplied by the client.
type EmergencyAlert struct {
	FromUserID   string     `json:"fromUserId"`
	FromUserName string     `json:"fromUserName"`
	Message      string     `json:"message"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	ContactIDs   StringList `json:"contactIds"`
	Timestamp    int64      `json:"timestamp"`
}

func (p *EmergencyAlert) Validate() error {
	return validateDispatch(p.FromUserID, p.ContactIDs)
}

type SafeAlert struct {
	FromUserID   string     `json:"fromUserId"`
	FromUserName string     `json:"fromUserName"`
	Message      string     `json:"message"`
	ContactIDs   StringList `json:"contactIds"`
	Timestamp    int64      `json:"timestamp"`
}

func (p *SafeAlert) Validate() error {
	return validateDispatch(p.FromUserID, p.ContactIDs)
}

type ChatMessage struct {
	FromUserID   string     `json:"fromUserId"`
	FromUserName string     `json:"fromUserName"`
	Message      string     `json:"message"`
	ContactIDs   StringList `json:"contactIds"`
	Timestamp    int64      `json:"timestamp"`
}

func (p *ChatMessage) Validate() error {
	return validateDispatch(p.FromUserID, p.ContactIDs)
}

// LiveLocationUpdate is fire-and-forget: no acknowledgement is ever sent for
// it. The server stamps the forwarded event with its own time.
type LiveLocationUpdate struct {
	FromUserID   string     `json:"fromUserId"`
	FromUserName string     `json:"fromUserName,omitempty"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	ContactIDs   StringList `json:"contactIds"`
}

func (p *LiveLocationUpdate) Validate() error {
	return validateDispatch(p.FromUserID, p.ContactIDs)
}

// validateDispatch rejects requests with no sender or no recipient list. An
// empty-but-present list is legal and simply fans out to nobody.
func validateDispatch(fromUserID string, contactIDs StringList) error {
	if fromUserID == "" {
		return fmt.Errorf("%w: missing fromUserId", ErrMalformedPayload)
	}
	if contactIDs == nil {
		return fmt.Errorf("%w: missing contactIds", ErrMalformedPayload)
	}
	return nil
}

// ConnectionStatus acknowledges a join_room to the joining connection only.
type ConnectionStatus struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	UserID      string `json:"userId,omitempty"`
	DeviceCount int    `json:"deviceCount,omitempty"`
}

type EmergencyAlertReceived struct {
	FromUserID   string  `json:"fromUserId"`
	FromUserName string  `json:"fromUserName"`
	Message      string  `json:"message"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Timestamp    int64   `json:"timestamp"`
	AlertType    string  `json:"alertType"`
}

type SafeAlertReceived struct {
	FromUserID   string `json:"fromUserId"`
	FromUserName string `json:"fromUserName"`
	Message      string `json:"message"`
	Timestamp    int64  `json:"timestamp"`
	AlertType    string `json:"alertType"`
}

type ChatMessageReceived struct {
	FromUserID   string `json:"fromUserId"`
	FromUserName string `json:"fromUserName"`
	Message      string `json:"message"`
	Timestamp    int64  `json:"timestamp"`
}

type ContactLiveLocation struct {
	FromUserID   string  `json:"fromUserId"`
	FromUserName string  `json:"fromUserName,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Timestamp    int64   `json:"timestamp"`
}

// UserStatusChanged is broadcast on true online/offline transitions only,
// never on device-count changes.
type UserStatusChanged struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// DeliveryRecord is the per-recipient entry of a delivery summary. Devices is
// only set for delivered recipients.
type DeliveryRecord struct {
	ContactID string `json:"contactId"`
	Status    string `json:"status"`
	Devices   int    `json:"devices,omitempty"`
}

// DeliverySummary acknowledges an alert or chat dispatch back to the sender.
type DeliverySummary struct {
	Success        bool             `json:"success"`
	Delivered      int              `json:"delivered"`
	Failed         int              `json:"failed"`
	Total          int              `json:"total"`
	DeliveryStatus []DeliveryRecord `json:"deliveryStatus"`
	Message        string           `json:"message"`
}

// DispatchError reports a synchronously rejected request to the sender.
type DispatchError struct {
	Event  string `json:"event"`
	Reason string `json:"reason"`
}
