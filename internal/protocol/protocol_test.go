package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		event   string
		wantErr bool
	}{
		{"valid", `{"event":"join_room","data":{"userId":"u1"}}`, "join_room", false},
		{"no data", `{"event":"leave_room"}`, "leave_room", false},
		{"missing event", `{"data":{}}`, "", true},
		{"not json", `hello`, "", true},
		{"wrong shape", `[1,2,3]`, "", true},
	}

	for _, test := range tests {
		env, err := Decode([]byte(test.raw))
		if test.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got nil", test.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", test.name, err)
			continue
		}
		if env.Event != test.event {
			t.Errorf("%s: expected event %q, got %q", test.name, test.event, env.Event)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	raw, err := Encode(EventConnectionStatus, ConnectionStatus{
		Success:     true,
		Message:     "Connected",
		UserID:      "u1",
		DeviceCount: 2,
	})
	if err != nil {
		t.Fatalf("Encode: unexpected error %v", err)
	}

	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: unexpected error %v", err)
	}
	if env.Event != EventConnectionStatus {
		t.Errorf("expected event %q, got %q", EventConnectionStatus, env.Event)
	}

	var status ConnectionStatus
	if err := env.Bind(&status); err != nil {
		t.Fatalf("Bind: unexpected error %v", err)
	}
	if status.UserID != "u1" || status.DeviceCount != 2 {
		t.Errorf("round trip lost data: %+v", status)
	}
}

func TestStringListArray(t *testing.T) {
	var list StringList
	if err := json.Unmarshal([]byte(`["a","b","a"]`), &list); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(list) != 3 || list[0] != "a" || list[2] != "a" {
		t.Errorf("expected [a b a], got %v", list)
	}
}

func TestStringListEncodedString(t *testing.T) {
	var list StringList
	if err := json.Unmarshal([]byte(`"[\"a\",\"b\"]"`), &list); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(list) != 2 || list[1] != "b" {
		t.Errorf("expected [a b], got %v", list)
	}
}

func TestStringListInvalid(t *testing.T) {
	tests := []string{`42`, `"not a list"`, `{"a":1}`}
	for _, raw := range tests {
		var list StringList
		err := json.Unmarshal([]byte(raw), &list)
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("%s: expected ErrMalformedPayload, got %v", raw, err)
		}
	}
}

func TestDispatchValidation(t *testing.T) {
	alert := EmergencyAlert{FromUserID: "u1", ContactIDs: StringList{}}
	if err := alert.Validate(); err != nil {
		t.Errorf("empty contact list should be valid, got %v", err)
	}

	alert = EmergencyAlert{FromUserID: "u1"}
	if err := alert.Validate(); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("missing contactIds: expected ErrMalformedPayload, got %v", err)
	}

	alert = EmergencyAlert{ContactIDs: StringList{"a"}}
	if err := alert.Validate(); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("missing fromUserId: expected ErrMalformedPayload, got %v", err)
	}

	join := JoinRoom{}
	if err := join.Validate(); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("missing userId: expected ErrMalformedPayload, got %v", err)
	}
}
