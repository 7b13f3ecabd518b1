// Package connectiontest provides an in-memory connection.Handle for tests.
package connectiontest

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by Send after Close
var ErrClosed = errors.New("connectiontest: handle closed")

// Event is one recorded outbound event
type Event struct {
	Name    string
	Payload any
}

// Handle records every event sent to it
type Handle struct {
	id     string
	userID uuid.UUID

	mu     sync.Mutex
	events []Event
	closed bool
}

// NewHandle returns a handle with a fresh id owned by userID
func NewHandle(userID uuid.UUID) *Handle {
	return &Handle{id: uuid.NewString(), userID: userID}
}

func (h *Handle) ID() string        { return h.id }
func (h *Handle) UserID() uuid.UUID { return h.userID }

func (h *Handle) Send(event string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.events = append(h.events, Event{Name: event, Payload: payload})
	return nil
}

func (h *Handle) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

// Closed reports whether Close was called
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Events returns a copy of everything received so far
func (h *Handle) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// Named returns the payloads of all events called name, in order
func (h *Handle) Named(name string) []any {
	var out []any
	for _, e := range h.Events() {
		if e.Name == name {
			out = append(out, e.Payload)
		}
	}
	return out
}

// Count returns how many events called name were received
func (h *Handle) Count(name string) int {
	return len(h.Named(name))
}

// Reset forgets recorded events
func (h *Handle) Reset() {
	h.mu.Lock()
	h.events = nil
	h.mu.Unlock()
}
