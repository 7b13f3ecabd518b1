package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Inbound socket events
const (
	EventTypingStart  = "typing:start"
	EventTypingStop   = "typing:stop"
	EventCallInitiate = "call:initiate"
	EventCallAccept   = "call:accept"
	EventCallReject   = "call:reject"
	EventCallCancel   = "call:cancel"
	EventCallEnd      = "call:end"
	EventWebRTCOffer  = "webrtc:offer"
	EventWebRTCAnswer = "webrtc:answer"
	EventWebRTCICE    = "webrtc:ice-candidate"
	EventMessageSend  = "message:send"
	EventMessageRead  = "message:read"
)

// Outbound socket events. typing:*, webrtc:* and message:read share the
// inbound names.
const (
	EventUserStatus      = "user:status"
	EventCallIncoming    = "call:incoming"
	EventCallInitiated   = "call:initiated"
	EventCallAccepted    = "call:accepted"
	EventCallRejected    = "call:rejected"
	EventCallCancelled   = "call:cancelled"
	EventCallEnded       = "call:ended"
	EventCallError       = "call:error"
	EventMessageReceive  = "message:receive"
	EventMessageSent     = "message:sent"
	EventMessageError    = "message:error"
	EventSessionReplaced = "session:replaced"
)

// StatusEvent is the payload of user:status
type StatusEvent struct {
	UserID uuid.UUID  `json:"userId"`
	Status UserStatus `json:"status"`
}

// TypingEvent is the payload of typing:start and typing:stop. Never stored.
type TypingEvent struct {
	UserID  uuid.UUID  `json:"userId"`
	GroupID *uuid.UUID `json:"groupId,omitempty"`
}

// CallIncomingEvent is sent to the receiver of a new call
type CallIncomingEvent struct {
	CallID     string    `json:"callId"`
	FromUserID uuid.UUID `json:"fromUserId"`
	Type       CallType  `json:"type"`
	Duration   int       `json:"duration"`
}

// CallInitiatedEvent acknowledges a new call to the caller
type CallInitiatedEvent struct {
	CallID   string    `json:"callId"`
	ToUserID uuid.UUID `json:"toUserId"`
	Type     CallType  `json:"type"`
	Duration int       `json:"duration"`
}

// CallEvent carries only the call id (call:accepted, call:cancelled)
type CallEvent struct {
	CallID string `json:"callId"`
}

// CallRejectedEvent is sent to the caller when the receiver declines
type CallRejectedEvent struct {
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}

// CallEndedEvent is sent to the parties of a finished call. Reason is empty
// when a party ended the call explicitly.
type CallEndedEvent struct {
	CallID string        `json:"callId"`
	Reason CallEndReason `json:"reason,omitempty"`
}

// ErrorEvent is the payload of call:error and message:error
type ErrorEvent struct {
	Message string `json:"message"`
}

// OfferEvent forwards an SDP offer verbatim
type OfferEvent struct {
	CallID string          `json:"callId"`
	Offer  json.RawMessage `json:"offer"`
}

// AnswerEvent forwards an SDP answer verbatim
type AnswerEvent struct {
	CallID string          `json:"callId"`
	Answer json.RawMessage `json:"answer"`
}

// CandidateEvent forwards an ICE candidate verbatim
type CandidateEvent struct {
	CallID    string          `json:"callId"`
	Candidate json.RawMessage `json:"candidate"`
}

// MessageEvent is the payload of message:receive and message:sent
type MessageEvent struct {
	Message *Message `json:"message"`
}

// ReadReceiptEvent is the payload of message:read sent to the original sender
type ReadReceiptEvent struct {
	MessageID uuid.UUID `json:"messageId"`
	Read      bool      `json:"read"`
	ReadAt    time.Time `json:"readAt"`
}

// SessionReplacedEvent tells a connection it was displaced by a newer one
type SessionReplacedEvent struct{}
