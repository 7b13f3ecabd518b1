// Package call owns the in-memory call sessions and their signaling state machine.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pulsechat-backend/internal/domain"
	"pulsechat-backend/pkg/constants"
	apperrors "pulsechat-backend/pkg/errors"
	"pulsechat-backend/pkg/logger"
	"pulsechat-backend/pkg/metrics"
)

// ErrReceiverOffline is returned by Initiate when the receiver has no live connection
var ErrReceiverOffline = errors.New("receiver is offline")

// Notifier delivers events to the live connection of a user
type Notifier interface {
	IsOnline(userID uuid.UUID) bool
	DeliverTo(userID uuid.UUID, event string, payload any) bool
}

// LogStore persists finished calls
type LogStore interface {
	RecordCall(ctx context.Context, log *domain.CallLog) error
}

// SignalKind is the type of WebRTC payload relayed between the parties
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// Config holds call limits
type Config struct {
	AllowedDurations []int // minutes
	DefaultDuration  int   // minutes
}

// Manager owns every live call session. All transitions, including timer
// expiry, run under mu.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry

	notifier  Notifier
	logs      LogStore
	scheduler Scheduler
	now       func() time.Time
	cfg       Config
	metrics   *metrics.Metrics
}

// entry is a session plus its expiry timer. timer is non-nil iff the
// session is accepted.
type entry struct {
	session *domain.CallSession
	timer   Timer
}

// Option customizes a Manager
type Option func(*Manager)

// WithScheduler replaces the wall-clock timer source
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMetrics records call metrics
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a call manager. logs may be nil to skip call history.
func NewManager(notifier Notifier, logs LogStore, cfg Config, opts ...Option) *Manager {
	if len(cfg.AllowedDurations) == 0 {
		cfg.AllowedDurations = constants.AllowedCallDurationMinutes
	}
	if cfg.DefaultDuration == 0 {
		cfg.DefaultDuration = constants.DefaultCallDurationMinutes
	}

	m := &Manager{
		sessions:  make(map[string]*entry),
		notifier:  notifier,
		logs:      logs,
		scheduler: realScheduler{},
		now:       time.Now,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitiateInput contains call initiation data
type InitiateInput struct {
	CallerID   uuid.UUID
	ReceiverID uuid.UUID
	Type       domain.CallType
	CallID     string // optional, generated when empty
	Duration   int    // minutes, unknown values fall back to the default
}

// Initiate creates a ringing session and notifies both parties
func (m *Manager) Initiate(ctx context.Context, input *InitiateInput) (*domain.CallSession, error) {
	if input.CallerID == uuid.Nil || input.ReceiverID == uuid.Nil {
		return nil, m.rejectInitiate(input.CallerID, apperrors.MissingFieldError("toUserId"))
	}
	if input.CallerID == input.ReceiverID {
		return nil, m.rejectInitiate(input.CallerID, apperrors.ValidationError("Cannot call yourself"))
	}
	if input.Type != domain.CallTypeAudio && input.Type != domain.CallTypeVideo {
		return nil, m.rejectInitiate(input.CallerID, apperrors.ValidationError("Invalid call type"))
	}

	now := m.now()
	callID := input.CallID
	if callID == "" {
		callID = fmt.Sprintf("%s-%s-%d", input.CallerID, input.ReceiverID, now.UnixMilli())
	}
	duration := m.normalizeDuration(input.Duration)

	if !m.notifier.IsOnline(input.ReceiverID) {
		m.notifier.DeliverTo(input.CallerID, domain.EventCallError, domain.ErrorEvent{
			Message: apperrors.UserOfflineError().Message,
		})
		m.metrics.RecordCallFailure(string(input.Type), "receiver_offline")
		m.recordLog(ctx, &domain.CallLog{
			CallID:          callID,
			CallerID:        input.CallerID,
			ReceiverID:      input.ReceiverID,
			Type:            input.Type,
			Status:          domain.CallLogFailed,
			Reason:          "receiver_offline",
			DurationMinutes: duration,
			StartedAt:       now,
			EndedAt:         now,
		})
		return nil, ErrReceiverOffline
	}

	session := &domain.CallSession{
		CallID:          callID,
		CallerID:        input.CallerID,
		ReceiverID:      input.ReceiverID,
		Type:            input.Type,
		State:           domain.CallStateRinging,
		DurationMinutes: duration,
		StartedAt:       now,
	}

	m.mu.Lock()
	if _, exists := m.sessions[callID]; exists {
		m.mu.Unlock()
		return nil, m.rejectInitiate(input.CallerID, apperrors.ValidationError("Call already exists"))
	}
	m.sessions[callID] = &entry{session: session}
	m.metrics.SetActiveCalls(len(m.sessions))

	m.notifier.DeliverTo(session.ReceiverID, domain.EventCallIncoming, domain.CallIncomingEvent{
		CallID:     callID,
		FromUserID: session.CallerID,
		Type:       session.Type,
		Duration:   duration,
	})
	m.notifier.DeliverTo(session.CallerID, domain.EventCallInitiated, domain.CallInitiatedEvent{
		CallID:   callID,
		ToUserID: session.ReceiverID,
		Type:     session.Type,
		Duration: duration,
	})
	snapshot := *session
	m.mu.Unlock()

	logger.FromContext(ctx).Info("Call initiated",
		zap.String("call_id", callID),
		zap.String("caller_id", session.CallerID.String()),
		zap.String("receiver_id", session.ReceiverID.String()),
		zap.String("type", string(session.Type)),
		zap.Int("duration_minutes", duration))

	return &snapshot, nil
}

func (m *Manager) rejectInitiate(callerID uuid.UUID, err *apperrors.AppError) error {
	if callerID != uuid.Nil {
		m.notifier.DeliverTo(callerID, domain.EventCallError, domain.ErrorEvent{Message: err.Message})
	}
	return err
}

// Accept moves a ringing call to accepted and arms its expiry timer.
// Only the receiver may accept; anything else is a no-op.
func (m *Manager) Accept(ctx context.Context, actorID uuid.UUID, callID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[callID]
	if !ok || e.session.State != domain.CallStateRinging || e.session.ReceiverID != actorID {
		logger.FromContext(ctx).Debug("Ignoring call accept",
			zap.String("call_id", callID),
			zap.String("user_id", actorID.String()))
		return false
	}

	acceptedAt := m.now()
	e.session.State = domain.CallStateAccepted
	e.session.AcceptedAt = &acceptedAt
	e.timer = m.scheduler.AfterFunc(e.session.Duration(), func() {
		m.expire(callID, e)
	})

	m.notifier.DeliverTo(e.session.CallerID, domain.EventCallAccepted, domain.CallEvent{CallID: callID})
	return true
}

// Reject removes a call on behalf of its receiver and tells the caller why
func (m *Manager) Reject(ctx context.Context, actorID uuid.UUID, callID, reason string) bool {
	if reason == "" {
		reason = domain.DefaultRejectReason
	}

	m.mu.Lock()
	e, ok := m.sessions[callID]
	if !ok || e.session.ReceiverID != actorID {
		m.mu.Unlock()
		return false
	}
	m.removeLocked(callID, e)
	m.notifier.DeliverTo(e.session.CallerID, domain.EventCallRejected, domain.CallRejectedEvent{
		CallID: callID,
		Reason: reason,
	})
	m.mu.Unlock()

	status := domain.CallLogDeclined
	if e.session.State == domain.CallStateAccepted {
		status = domain.CallLogCompleted
	}
	m.finish(ctx, e.session, status, reason)
	return true
}

// Cancel withdraws a ringing call on behalf of its caller
func (m *Manager) Cancel(ctx context.Context, actorID uuid.UUID, callID string) bool {
	m.mu.Lock()
	e, ok := m.sessions[callID]
	if !ok || e.session.State != domain.CallStateRinging || e.session.CallerID != actorID {
		m.mu.Unlock()
		return false
	}
	m.removeLocked(callID, e)
	m.notifier.DeliverTo(e.session.ReceiverID, domain.EventCallCancelled, domain.CallEvent{CallID: callID})
	m.mu.Unlock()

	m.finish(ctx, e.session, domain.CallLogCancelled, "")
	return true
}

// End terminates a call on behalf of either party and notifies both
func (m *Manager) End(ctx context.Context, actorID uuid.UUID, callID string) bool {
	m.mu.Lock()
	e, ok := m.sessions[callID]
	if !ok || !e.session.HasParty(actorID) {
		m.mu.Unlock()
		return false
	}
	m.removeLocked(callID, e)
	ended := domain.CallEndedEvent{CallID: callID}
	m.notifier.DeliverTo(e.session.CallerID, domain.EventCallEnded, ended)
	m.notifier.DeliverTo(e.session.ReceiverID, domain.EventCallEnded, ended)
	m.mu.Unlock()

	status := domain.CallLogCancelled
	if e.session.State == domain.CallStateAccepted {
		status = domain.CallLogCompleted
	}
	m.finish(ctx, e.session, status, "")
	return true
}

// expire is the timer callback. It acts only if e is still the live entry
// for callID.
func (m *Manager) expire(callID string, e *entry) {
	m.mu.Lock()
	if cur, ok := m.sessions[callID]; !ok || cur != e {
		m.mu.Unlock()
		return
	}
	m.removeLocked(callID, e)
	ended := domain.CallEndedEvent{CallID: callID, Reason: domain.CallEndTimeout}
	m.notifier.DeliverTo(e.session.CallerID, domain.EventCallEnded, ended)
	m.notifier.DeliverTo(e.session.ReceiverID, domain.EventCallEnded, ended)
	m.mu.Unlock()

	logger.Info("Call expired", zap.String("call_id", callID))
	m.finish(context.Background(), e.session, domain.CallLogCompleted, string(domain.CallEndTimeout))
}

// EndAllFor ends every call userID is a party to and notifies each
// counterpart. It returns the number of calls ended.
func (m *Manager) EndAllFor(ctx context.Context, userID uuid.UUID, reason domain.CallEndReason) int {
	m.mu.Lock()
	var ended []*domain.CallSession
	for callID, e := range m.sessions {
		if !e.session.HasParty(userID) {
			continue
		}
		m.removeLocked(callID, e)
		m.notifier.DeliverTo(e.session.Counterpart(userID), domain.EventCallEnded, domain.CallEndedEvent{
			CallID: callID,
			Reason: reason,
		})
		ended = append(ended, e.session)
	}
	m.mu.Unlock()

	for _, s := range ended {
		status := domain.CallLogMissed
		if s.State == domain.CallStateAccepted {
			status = domain.CallLogCompleted
		}
		m.finish(ctx, s, status, string(reason))
	}
	return len(ended)
}

// RelaySignal forwards a WebRTC payload verbatim to the other party.
// The sender's role is derived from actorID.
func (m *Manager) RelaySignal(ctx context.Context, actorID uuid.UUID, callID string, kind SignalKind, payload json.RawMessage) bool {
	var event string
	var out any
	switch kind {
	case SignalOffer:
		event, out = domain.EventWebRTCOffer, domain.OfferEvent{CallID: callID, Offer: payload}
	case SignalAnswer:
		event, out = domain.EventWebRTCAnswer, domain.AnswerEvent{CallID: callID, Answer: payload}
	case SignalCandidate:
		event, out = domain.EventWebRTCICE, domain.CandidateEvent{CallID: callID, Candidate: payload}
	default:
		return false
	}

	m.mu.Lock()
	e, ok := m.sessions[callID]
	if !ok || !e.session.HasParty(actorID) {
		m.mu.Unlock()
		logger.FromContext(ctx).Debug("Dropping signal for unknown call",
			zap.String("call_id", callID),
			zap.String("kind", string(kind)))
		return false
	}
	target := e.session.Counterpart(actorID)
	m.mu.Unlock()

	return m.notifier.DeliverTo(target, event, out)
}

// Snapshot returns a copy of the session for callID
func (m *Manager) Snapshot(callID string) (domain.CallSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[callID]
	if !ok {
		return domain.CallSession{}, false
	}
	s := *e.session
	return s, true
}

// Active returns the live calls userID is a party to, oldest first
func (m *Manager) Active(userID uuid.UUID) []domain.ActiveCall {
	m.mu.Lock()
	calls := make([]domain.ActiveCall, 0)
	for _, e := range m.sessions {
		s := e.session
		if !s.HasParty(userID) {
			continue
		}
		calls = append(calls, domain.ActiveCall{
			CallID:          s.CallID,
			CallerID:        s.CallerID,
			ReceiverID:      s.ReceiverID,
			Type:            s.Type,
			State:           s.State,
			DurationMinutes: s.DurationMinutes,
			StartedAt:       s.StartedAt,
			AcceptedAt:      s.AcceptedAt,
		})
	}
	m.mu.Unlock()

	sort.Slice(calls, func(i, j int) bool {
		return calls[i].StartedAt.Before(calls[j].StartedAt)
	})
	return calls
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// removeLocked deletes the session and stops its timer. mu must be held.
func (m *Manager) removeLocked(callID string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	delete(m.sessions, callID)
	m.metrics.SetActiveCalls(len(m.sessions))
}

func (m *Manager) normalizeDuration(minutes int) int {
	if slices.Contains(m.cfg.AllowedDurations, minutes) {
		return minutes
	}
	return m.cfg.DefaultDuration
}

// finish marks the session ended and writes its call log. Called without mu.
func (m *Manager) finish(ctx context.Context, s *domain.CallSession, status domain.CallLogStatus, reason string) {
	endedAt := m.now()
	s.State = domain.CallStateEnded

	log := &domain.CallLog{
		CallID:          s.CallID,
		CallerID:        s.CallerID,
		ReceiverID:      s.ReceiverID,
		Type:            s.Type,
		Status:          status,
		Reason:          reason,
		DurationMinutes: s.DurationMinutes,
		StartedAt:       s.StartedAt,
		AcceptedAt:      s.AcceptedAt,
		EndedAt:         endedAt,
	}
	if s.AcceptedAt != nil {
		talk := endedAt.Sub(*s.AcceptedAt)
		log.TalkSeconds = int(talk.Seconds())
		m.metrics.RecordCallDuration(string(s.Type), talk)
	}
	m.metrics.RecordCall(string(s.Type), string(status))

	logger.FromContext(ctx).Info("Call ended",
		zap.String("call_id", s.CallID),
		zap.String("status", string(status)),
		zap.String("reason", reason))

	m.recordLog(ctx, log)
}

func (m *Manager) recordLog(ctx context.Context, log *domain.CallLog) {
	if m.logs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.StoreTimeout)
	defer cancel()

	if err := m.logs.RecordCall(ctx, log); err != nil {
		logger.FromContext(ctx).Warn("Failed to record call log",
			zap.String("call_id", log.CallID),
			zap.Error(err))
	}
}
