// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// StoreTimeout bounds a single collaborator call made on behalf of a socket event
	StoreTimeout = 5 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// WebSocket constants
const (
	// WebSocketPongWait is how long the read pump waits for a pong
	WebSocketPongWait = 60 * time.Second

	// WebSocketPingInterval must be shorter than WebSocketPongWait
	WebSocketPingInterval = (WebSocketPongWait * 9) / 10

	// WebSocketWriteWait is the deadline for a single frame write
	WebSocketWriteWait = 10 * time.Second

	// WebSocketMaxMessageSize caps inbound frames (SDP offers can be large)
	WebSocketMaxMessageSize = 64 * 1024

	// WebSocketSendBuffer is the per-connection outbound queue length
	WebSocketSendBuffer = 256

	// WebSocketMaxConnections is the default concurrent connection limit
	WebSocketMaxConnections = 10000
)

// Presence constants
const (
	// PresenceTTL is how long a cached online flag lives without a heartbeat
	PresenceTTL = 5 * time.Minute

	// GroupMembersCacheTTL bounds how stale a cached member list may be
	GroupMembersCacheTTL = 30 * time.Second
)

// Call-related constants
const (
	// DefaultCallDurationMinutes is used when a caller picks an unknown duration
	DefaultCallDurationMinutes = 30
)

// AllowedCallDurationMinutes lists the durations a caller may choose from
var AllowedCallDurationMinutes = []int{15, 30, 45}

// Message constants
const (
	// MaxMessageLength is the maximum allowed message length
	MaxMessageLength = 10000
)
