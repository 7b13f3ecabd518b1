package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType is the content kind of a chat message
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// Message is a persisted chat message. Exactly one of ReceiverID and GroupID is set.
// Maps to CockroachDB messages table
type Message struct {
	MessageID  uuid.UUID   `json:"id" db:"message_id"`
	SenderID   uuid.UUID   `json:"senderId" db:"sender_id"`
	ReceiverID *uuid.UUID  `json:"receiverId,omitempty" db:"receiver_id"`
	GroupID    *uuid.UUID  `json:"groupId,omitempty" db:"group_id"`
	Content    string      `json:"content" db:"content"`
	Type       MessageType `json:"type" db:"message_type"`
	Edited     bool        `json:"edited" db:"edited"`
	Deleted    bool        `json:"deleted" db:"deleted"`
	Read       bool        `json:"read" db:"read"`
	ReadAt     *time.Time  `json:"readAt,omitempty" db:"read_at"`
	CreatedAt  time.Time   `json:"createdAt" db:"created_at"`
}

// IsGroup reports whether the message targets a group
func (m *Message) IsGroup() bool {
	return m.GroupID != nil
}
