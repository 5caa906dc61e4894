package models

import "time"

// MessageType categorises driver/admin messages
type MessageType string

const (
	MessageTypeAnnouncement MessageType = "announcement"
	MessageTypeAlert        MessageType = "alert"
	MessageTypeInfo         MessageType = "info"
)

// MaxMessageLength is the maximum number of characters in a message body
const MaxMessageLength = 200

// IsValid reports whether t is a known message type
func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeAnnouncement, MessageTypeAlert, MessageTypeInfo:
		return true
	}
	return false
}

// Message is an immutable driver/admin broadcast scoped to a bus or route
type Message struct {
	ID         string      `json:"id"`
	Content    string      `json:"content"`
	SenderID   string      `json:"sender"`
	SenderRole Role        `json:"senderRole"`
	Type       MessageType `json:"type"`
	BusID      string      `json:"busId,omitempty"`
	RouteID    string      `json:"routeId,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// SendMessageRequest is the inbound sendMessage payload
type SendMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
	BusID   string `json:"busId,omitempty"`
	RouteID string `json:"routeId,omitempty"`
}
