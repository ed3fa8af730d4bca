// Package wire defines the chat protocol events exchanged between the hub
// and its clients. Every frame on the wire is one JSON envelope of the form
// {"event": <kind>, "data": <payload>}.
package wire

import (
	"encoding/json"
	"fmt"
)

// Event kinds understood by the protocol.
const (
	EventJoin        = "join"
	EventSendMessage = "send-message"
	EventUserList    = "user-list"
	EventUserJoined  = "user-joined"
	EventUserLeft    = "user-left"
	EventNewMessage  = "new-message"
)

// Event is the envelope carried by every frame. Data is left raw so that the
// receiver can bind it to the payload type matching the event kind, and so
// that a payload of an unexpected shape fails at bind time instead of
// poisoning the whole frame.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Join is sent by a client directly after connecting.
type Join struct {
	DisplayName string `json:"displayName"`
}

// SendMessage is sent by a client to publish a chat message.
type SendMessage struct {
	Text string `json:"text"`
}

// UserList is sent by the hub to a joining client only. DisplayNames is
// ordered by join time.
type UserList struct {
	DisplayNames []string `json:"displayNames"`
}

// UserJoined is broadcast by the hub to every connection after a join.
type UserJoined struct {
	DisplayName  string `json:"displayName"`
	ConnectionID string `json:"connectionId"`
	TotalUsers   int    `json:"totalUsers"`
}

// UserLeft is broadcast by the hub to every connection after a joined
// connection closes.
type UserLeft struct {
	DisplayName string `json:"displayName"`
	TotalUsers  int    `json:"totalUsers"`
}

// ChatMessage is broadcast by the hub for every accepted send-message,
// including back to the sender. ID and Timestamp are assigned by the hub;
// client-supplied values are never trusted. A ChatMessage is immutable once
// constructed.
type ChatMessage struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Encode builds the wire frame for one event.
func Encode(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", name, err)
	}
	frame, err := json.Marshal(Event{Name: name, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", name, err)
	}
	return frame, nil
}

// Decode parses a wire frame into its envelope. A frame that is not a JSON
// object or carries no event kind is an error; callers drop such frames.
func Decode(frame []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Name == "" {
		return nil, fmt.Errorf("event kind missing")
	}
	return &ev, nil
}

// Bind unmarshals the event payload into v. A payload whose fields have the
// wrong JSON type (for example a numeric "text") is an error, which the
// receiver treats as a malformed frame and drops.
func (e *Event) Bind(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: payload missing", e.Name)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", e.Name, err)
	}
	return nil
}
