package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidEnvelope = errors.New("invalid event envelope")
	ErrMissingEvent    = errors.New("envelope carries no event name")
)

// Envelope frames every message in both directions as
// {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.Event == "" {
		return nil, ErrMissingEvent
	}
	return &env, nil
}

// Encode frames a payload for the wire. Marshal failure here means the
// payload itself is unserializable, which the dispatcher treats as a
// malformed request.
func Encode(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("fail to encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: payload})
}

// Bind unmarshals the envelope data into the given payload struct.
func (e *Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s carries no data", ErrInvalidEnvelope, e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return nil
}
