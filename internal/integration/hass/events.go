package hass

import (
	"context"
	"encoding/json"
	"fmt"
)

// ServerEvent is the typed payload of an `event` frame from the server.
type ServerEvent struct {
	EventType string          `json:"event_type"`
	TimeFired string          `json:"time_fired"`
	Origin    string          `json:"origin"`
	Context   json.RawMessage `json:"context"`
	Data      json.RawMessage `json:"data"`
}

// StateChange is the decoded data payload of a state_changed event. Payloads
// of other event types stay raw.
type StateChange struct {
	EntityID string                     `json:"entity_id"`
	OldState map[string]json.RawMessage `json:"old_state"`
	NewState map[string]json.RawMessage `json:"new_state"`
}

// StateChange decodes the event's data when the event is a state change.
// The second return is false for every other event type.
func (e *ServerEvent) StateChange() (*StateChange, bool) {
	if e.EventType != "state_changed" {
		return nil, false
	}
	var change StateChange
	if err := json.Unmarshal(e.Data, &change); err != nil {
		return nil, false
	}
	if change.EntityID == "" || change.NewState == nil || change.OldState == nil {
		return nil, false
	}
	return &change, true
}

// stringField extracts a top-level string out of a raw state object.
func stringField(state map[string]json.RawMessage, name string) string {
	raw, ok := state[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// EventStream yields the server's events after a successful subscription.
type EventStream struct {
	command *Command
}

// Next blocks for the next event frame. Any other frame type on the
// subscription is a protocol violation.
func (s *EventStream) Next(ctx context.Context) (*ServerEvent, error) {
	f, err := s.command.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if f.Type != "event" {
		return nil, fmt.Errorf("expected event frame, got %q", f.Type)
	}

	var event ServerEvent
	if err := f.field("event", &event); err != nil {
		return nil, fmt.Errorf("event frame has no decodable event payload: %w", err)
	}
	return &event, nil
}

// Close stops routing events to this stream.
func (s *EventStream) Close() {
	s.command.Close()
}
