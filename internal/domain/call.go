package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType is the media kind requested by the caller
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// CallState is the in-memory lifecycle state of a call session
type CallState string

const (
	CallStateRinging  CallState = "ringing"
	CallStateAccepted CallState = "accepted"
	CallStateEnded    CallState = "ended"
)

// CallEndReason is carried by call:ended when the server ends a call
type CallEndReason string

const (
	CallEndTimeout          CallEndReason = "timeout"
	CallEndPeerDisconnected CallEndReason = "peer_disconnected"
)

// DefaultRejectReason is sent with call:rejected when the receiver gives none
const DefaultRejectReason = "declined"

// CallSession is a live call between exactly two users. Held only in memory.
type CallSession struct {
	CallID          string
	CallerID        uuid.UUID
	ReceiverID      uuid.UUID
	Type            CallType
	State           CallState
	DurationMinutes int
	StartedAt       time.Time
	AcceptedAt      *time.Time
}

// HasParty reports whether userID is the caller or the receiver
func (s *CallSession) HasParty(userID uuid.UUID) bool {
	return userID == s.CallerID || userID == s.ReceiverID
}

// Counterpart returns the other party of the call
func (s *CallSession) Counterpart(userID uuid.UUID) uuid.UUID {
	if userID == s.CallerID {
		return s.ReceiverID
	}
	return s.CallerID
}

// Duration returns the configured maximum call length
func (s *CallSession) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// CallLogStatus is the terminal outcome recorded in call history
type CallLogStatus string

const (
	CallLogCompleted CallLogStatus = "completed"
	CallLogMissed    CallLogStatus = "missed"
	CallLogDeclined  CallLogStatus = "declined"
	CallLogCancelled CallLogStatus = "cancelled"
	CallLogFailed    CallLogStatus = "failed"
)

// CallLog is a finished call as written to call history (Cassandra call_logs)
type CallLog struct {
	CallID          string        `json:"callId"`
	CallerID        uuid.UUID     `json:"callerId"`
	ReceiverID      uuid.UUID     `json:"receiverId"`
	Type            CallType      `json:"type"`
	Status          CallLogStatus `json:"status"`
	Reason          string        `json:"reason,omitempty"`
	DurationMinutes int           `json:"durationMinutes"`
	StartedAt       time.Time     `json:"startedAt"`
	AcceptedAt      *time.Time    `json:"acceptedAt,omitempty"`
	EndedAt         time.Time     `json:"endedAt"`
	TalkSeconds     int           `json:"talkSeconds"`
}

// ActiveCall is the read-only view of a session returned by the HTTP API
type ActiveCall struct {
	CallID          string     `json:"callId"`
	CallerID        uuid.UUID  `json:"callerId"`
	ReceiverID      uuid.UUID  `json:"receiverId"`
	Type            CallType   `json:"type"`
	State           CallState  `json:"state"`
	DurationMinutes int        `json:"duration"`
	StartedAt       time.Time  `json:"startedAt"`
	AcceptedAt      *time.Time `json:"acceptedAt,omitempty"`
}
