package ws

import (
	"encoding/json"

	"github.com/google/uuid"

	"pulsechat-backend/internal/domain"
)

// Envelope is one inbound JSON text frame
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outboundFrame is one outbound JSON text frame
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type typingPayload struct {
	ReceiverID *uuid.UUID `json:"receiverId"`
	GroupID    *uuid.UUID `json:"groupId"`
}

type callInitiatePayload struct {
	ToUserID uuid.UUID       `json:"toUserId"`
	Type     domain.CallType `json:"type"`
	CallID   string          `json:"callId"`
	Duration int             `json:"duration"`
}

type callPayload struct {
	CallID string `json:"callId"`
}

type callRejectPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}

type offerPayload struct {
	CallID string          `json:"callId"`
	Offer  json.RawMessage `json:"offer"`
}

type answerPayload struct {
	CallID string          `json:"callId"`
	Answer json.RawMessage `json:"answer"`
}

// candidatePayload may carry fromRole; the sender's role is derived from
// the connection instead.
type candidatePayload struct {
	CallID    string          `json:"callId"`
	Candidate json.RawMessage `json:"candidate"`
}

type messageSendPayload struct {
	ReceiverID *uuid.UUID         `json:"receiverId"`
	GroupID    *uuid.UUID         `json:"groupId"`
	Content    string             `json:"content"`
	Type       domain.MessageType `json:"type"`
}

type messageReadPayload struct {
	MessageID uuid.UUID `json:"messageId"`
}

// decode unmarshals an event body. A missing body decodes as {}.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
