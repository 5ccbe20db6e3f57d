package types

import (
	"encoding/json"
)

type EventType string

// Client -> server.
const (
	EventJoinRoom     EventType = "join-room"
	EventSendMessage  EventType = "send-message"
	EventTyping       EventType = "typing"
	EventFetchHistory EventType = "fetch-history"
)

// Server -> client.
const (
	EventMessage        EventType = "message"
	EventMessageHistory EventType = "message-history"
	EventUserTyping     EventType = "user-typing"
	EventError          EventType = "error"
)

// Envelope frames every event on both transports.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// IsStaff on inbound payloads is accepted for wire compatibility but ignored;
// staff status comes from the connection's credential.
type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
	IsStaff  bool   `json:"isStaff,omitempty"`
}

type SendMessagePayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
	Message  string `json:"message"`
	IsStaff  bool   `json:"isStaff,omitempty"`
}

type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

type FetchHistoryPayload struct {
	RoomID string `json:"roomId"`
}

type UserTypingPayload struct {
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode builds a wire frame for an outbound event.
func Encode(event EventType, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
