package models

import (
	"time"
)

// Sender identifies who wrote a message. ID is the transport connection id
// for participants and "system" for relay announcements.
type Sender struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsStaff bool   `json:"isStaff"`
}

// Message is one persisted chat entry. ID and Timestamp are assigned by the store.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    Sender    `json:"sender"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	// Read is kept for schema compatibility; nothing sets it.
	Read bool `json:"read"`
}
