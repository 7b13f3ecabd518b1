package call

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pulsechat-backend/internal/connection"
	"pulsechat-backend/internal/connection/connectiontest"
	"pulsechat-backend/internal/domain"
)

// MockLogStore is a mock implementation of LogStore
type MockLogStore struct {
	mock.Mock
}

func (m *MockLogStore) RecordCall(ctx context.Context, log *domain.CallLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockLogStore) logs() []*domain.CallLog {
	var out []*domain.CallLog
	for _, c := range m.Calls {
		out = append(out, c.Arguments.Get(1).(*domain.CallLog))
	}
	return out
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

type fixture struct {
	registry  *connection.Registry
	scheduler *fakeScheduler
	logs      *MockLogStore
	manager   *Manager
	caller    *connectiontest.Handle
	receiver  *connectiontest.Handle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry:  connection.NewRegistry(nil),
		scheduler: &fakeScheduler{},
		logs:      new(MockLogStore),
		caller:    connectiontest.NewHandle(uuid.New()),
		receiver:  connectiontest.NewHandle(uuid.New()),
	}
	f.logs.On("RecordCall", mock.Anything, mock.Anything).Return(nil)
	f.manager = NewManager(f.registry, f.logs, Config{
		AllowedDurations: []int{15, 30, 45},
		DefaultDuration:  30,
	}, WithScheduler(f.scheduler))
	f.registry.Register(f.caller)
	f.registry.Register(f.receiver)
	return f
}

func (f *fixture) initiate(t *testing.T, duration int) *domain.CallSession {
	t.Helper()
	s, err := f.manager.Initiate(context.Background(), &InitiateInput{
		CallerID:   f.caller.UserID(),
		ReceiverID: f.receiver.UserID(),
		Type:       domain.CallTypeVideo,
		Duration:   duration,
	})
	require.NoError(t, err)
	return s
}

func TestManager_Initiate(t *testing.T) {
	f := newFixture(t)

	s := f.initiate(t, 15)

	assert.Equal(t, domain.CallStateRinging, s.State)
	assert.Equal(t, 15, s.DurationMinutes)
	assert.True(t, strings.HasPrefix(s.CallID, f.caller.UserID().String()+"-"+f.receiver.UserID().String()+"-"))

	incoming := f.receiver.Named(domain.EventCallIncoming)
	require.Len(t, incoming, 1)
	assert.Equal(t, domain.CallIncomingEvent{
		CallID:     s.CallID,
		FromUserID: f.caller.UserID(),
		Type:       domain.CallTypeVideo,
		Duration:   15,
	}, incoming[0])

	initiated := f.caller.Named(domain.EventCallInitiated)
	require.Len(t, initiated, 1)
	assert.Equal(t, s.CallID, initiated[0].(domain.CallInitiatedEvent).CallID)
	assert.Equal(t, 1, f.manager.Count())
}

func TestManager_InitiateUsesSuppliedCallID(t *testing.T) {
	f := newFixture(t)

	s, err := f.manager.Initiate(context.Background(), &InitiateInput{
		CallerID:   f.caller.UserID(),
		ReceiverID: f.receiver.UserID(),
		Type:       domain.CallTypeAudio,
		CallID:     "call-1",
		Duration:   45,
	})

	require.NoError(t, err)
	assert.Equal(t, "call-1", s.CallID)

	_, err = f.manager.Initiate(context.Background(), &InitiateInput{
		CallerID:   f.caller.UserID(),
		ReceiverID: f.receiver.UserID(),
		Type:       domain.CallTypeAudio,
		CallID:     "call-1",
	})
	assert.Error(t, err)
	assert.Equal(t, 1, f.manager.Count())
	assert.Equal(t, 1, f.caller.Count(domain.EventCallError))
}

func TestManager_InitiateUnknownDurationFallsBack(t *testing.T) {
	f := newFixture(t)

	s := f.initiate(t, 20)

	assert.Equal(t, 30, s.DurationMinutes)
	incoming := f.receiver.Named(domain.EventCallIncoming)
	require.Len(t, incoming, 1)
	assert.Equal(t, 30, incoming[0].(domain.CallIncomingEvent).Duration)
}

func TestManager_InitiateReceiverOffline(t *testing.T) {
	f := newFixture(t)
	offline := uuid.New()

	s, err := f.manager.Initiate(context.Background(), &InitiateInput{
		CallerID:   f.caller.UserID(),
		ReceiverID: offline,
		Type:       domain.CallTypeAudio,
	})

	assert.Nil(t, s)
	assert.True(t, errors.Is(err, ErrReceiverOffline))
	assert.Equal(t, 0, f.manager.Count())

	errs := f.caller.Named(domain.EventCallError)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ErrorEvent{Message: "User is offline"}, errs[0])

	logs := f.logs.logs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.CallLogFailed, logs[0].Status)
}

func TestManager_InitiateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initiate(context.Background(), &InitiateInput{
		CallerID:   f.caller.UserID(),
		ReceiverID: f.caller.UserID(),
		Type:       domain.CallTypeAudio,
	})
	assert.Error(t, err)

	_, err = f.manager.Initiate(context.Background(), &InitiateInput{
		CallerID:   f.caller.UserID(),
		ReceiverID: f.receiver.UserID(),
		Type:       "hologram",
	})
	assert.Error(t, err)

	assert.Equal(t, 0, f.manager.Count())
	assert.Equal(t, 0, f.receiver.Count(domain.EventCallIncoming))
}

func TestManager_AcceptArmsOneTimer(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 15)

	assert.True(t, f.manager.Accept(context.Background(), f.receiver.UserID(), s.CallID))

	timer := f.scheduler.last()
	require.NotNil(t, timer)
	assert.Equal(t, 15*time.Minute, timer.d)
	assert.Len(t, f.scheduler.timers, 1)

	got, ok := f.manager.Snapshot(s.CallID)
	require.True(t, ok)
	assert.Equal(t, domain.CallStateAccepted, got.State)
	assert.NotNil(t, got.AcceptedAt)
	assert.Equal(t, 1, f.caller.Count(domain.EventCallAccepted))
}

func TestManager_AcceptNotRingingIsNoop(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 30)
	require.True(t, f.manager.Accept(context.Background(), f.receiver.UserID(), s.CallID))

	assert.False(t, f.manager.Accept(context.Background(), f.receiver.UserID(), s.CallID))
	assert.False(t, f.manager.Accept(context.Background(), f.receiver.UserID(), "unknown"))

	assert.Len(t, f.scheduler.timers, 1)
	assert.Equal(t, 1, f.caller.Count(domain.EventCallAccepted))
}

func TestManager_AcceptByCallerIsNoop(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 30)

	assert.False(t, f.manager.Accept(context.Background(), f.caller.UserID(), s.CallID))

	got, _ := f.manager.Snapshot(s.CallID)
	assert.Equal(t, domain.CallStateRinging, got.State)
	assert.Empty(t, f.scheduler.timers)
}

func TestManager_TimeoutScenario(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 15)
	require.True(t, f.manager.Accept(context.Background(), f.receiver.UserID(), s.CallID))

	f.scheduler.last().f()

	want := domain.CallEndedEvent{CallID: s.CallID, Reason: domain.CallEndTimeout}
	assert.Equal(t, []any{want}, f.caller.Named(domain.EventCallEnded))
	assert.Equal(t, []any{want}, f.receiver.Named(domain.EventCallEnded))

	_, ok := f.manager.Snapshot(s.CallID)
	assert.False(t, ok)

	logs := f.logs.logs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.CallLogCompleted, logs[0].Status)
	assert.Equal(t, "timeout", logs[0].Reason)
}

func TestManager_EndCancelsTimer(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 30)
	require.True(t, f.manager.Accept(context.Background(), f.receiver.UserID(), s.CallID))
	timer := f.scheduler.last()

	assert.True(t, f.manager.End(context.Background(), f.caller.UserID(), s.CallID))

	assert.True(t, timer.stopped)
	assert.Equal(t, []any{domain.CallEndedEvent{CallID: s.CallID}}, f.caller.Named(domain.EventCallEnded))
	assert.Equal(t, []any{domain.CallEndedEvent{CallID: s.CallID}}, f.receiver.Named(domain.EventCallEnded))

	// a callback that raced past Stop must not emit a second ended
	timer.f()
	assert.Equal(t, 1, f.caller.Count(domain.EventCallEnded))
	assert.Equal(t, 1, f.receiver.Count(domain.EventCallEnded))
}

func TestManager_StaleTimerDoesNotEndReusedCallID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.manager.Initiate(ctx, &InitiateInput{
		CallerID: f.caller.UserID(), ReceiverID: f.receiver.UserID(),
		Type: domain.CallTypeAudio, CallID: "reused",
	})
	require.NoError(t, err)
	require.True(t, f.manager.Accept(ctx, f.receiver.UserID(), first.CallID))
	staleTimer := f.scheduler.last()
	require.True(t, f.manager.End(ctx, f.receiver.UserID(), "reused"))

	_, err = f.manager.Initiate(ctx, &InitiateInput{
		CallerID: f.caller.UserID(), ReceiverID: f.receiver.UserID(),
		Type: domain.CallTypeAudio, CallID: "reused",
	})
	require.NoError(t, err)
	f.caller.Reset()
	f.receiver.Reset()

	staleTimer.f()

	got, ok := f.manager.Snapshot("reused")
	require.True(t, ok)
	assert.Equal(t, domain.CallStateRinging, got.State)
	assert.Equal(t, 0, f.caller.Count(domain.EventCallEnded))
	assert.Equal(t, 0, f.receiver.Count(domain.EventCallEnded))
}

func TestManager_EndWhileRinging(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 30)

	assert.True(t, f.manager.End(context.Background(), f.receiver.UserID(), s.CallID))
	assert.False(t, f.manager.End(context.Background(), f.receiver.UserID(), s.CallID))

	logs := f.logs.logs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.CallLogCancelled, logs[0].Status)
}

func TestManager_EndByStrangerIsNoop(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 30)

	assert.False(t, f.manager.End(context.Background(), uuid.New(), s.CallID))
	_, ok := f.manager.Snapshot(s.CallID)
	assert.True(t, ok)
}

func TestManager_Reject(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 30)

	assert.True(t, f.manager.Reject(context.Background(), f.receiver.UserID(), s.CallID, ""))

	assert.Equal(t, []any{domain.CallRejectedEvent{CallID: s.CallID, Reason: "declined"}},
		f.caller.Named(domain.EventCallRejected))
	_, ok := f.manager.Snapshot(s.CallID)
	assert.False(t, ok)
	assert.False(t, f.manager.Reject(context.Background(), f.receiver.UserID(), s.CallID, "busy"))

	logs := f.logs.logs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.CallLogDeclined, logs[0].Status)
}

func TestManager_RejectCustomReason(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 30)

	require.True(t, f.manager.Reject(context.Background(), f.receiver.UserID(), s.CallID, "busy"))
	assert.Equal(t, []any{domain.CallRejectedEvent{CallID: s.CallID, Reason: "busy"}},
		f.caller.Named(domain.EventCallRejected))
}

func TestManager_Cancel(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 30)

	assert.False(t, f.manager.Cancel(context.Background(), f.receiver.UserID(), s.CallID))
	assert.True(t, f.manager.Cancel(context.Background(), f.caller.UserID(), s.CallID))

	assert.Equal(t, []any{domain.CallEvent{CallID: s.CallID}}, f.receiver.Named(domain.EventCallCancelled))
	assert.Equal(t, 0, f.manager.Count())
}

func TestManager_CancelAfterAcceptIsNoop(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 30)
	require.True(t, f.manager.Accept(context.Background(), f.receiver.UserID(), s.CallID))

	assert.False(t, f.manager.Cancel(context.Background(), f.caller.UserID(), s.CallID))
	assert.False(t, f.scheduler.last().stopped)
}

func TestManager_RelaySignal(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 30)
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	candidate := json.RawMessage(`{"candidate":"a=1"}`)

	assert.True(t, f.manager.RelaySignal(context.Background(), f.caller.UserID(), s.CallID, SignalOffer, offer))
	assert.True(t, f.manager.RelaySignal(context.Background(), f.receiver.UserID(), s.CallID, SignalAnswer, answer))
	assert.True(t, f.manager.RelaySignal(context.Background(), f.receiver.UserID(), s.CallID, SignalCandidate, candidate))

	assert.Equal(t, []any{domain.OfferEvent{CallID: s.CallID, Offer: offer}}, f.receiver.Named(domain.EventWebRTCOffer))
	assert.Equal(t, []any{domain.AnswerEvent{CallID: s.CallID, Answer: answer}}, f.caller.Named(domain.EventWebRTCAnswer))
	assert.Equal(t, []any{domain.CandidateEvent{CallID: s.CallID, Candidate: candidate}}, f.caller.Named(domain.EventWebRTCICE))
	assert.Equal(t, 0, f.caller.Count(domain.EventWebRTCOffer))
}

func TestManager_RelaySignalDropped(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 30)
	payload := json.RawMessage(`{}`)

	assert.False(t, f.manager.RelaySignal(context.Background(), f.caller.UserID(), "unknown", SignalOffer, payload))
	assert.False(t, f.manager.RelaySignal(context.Background(), uuid.New(), s.CallID, SignalOffer, payload))
	assert.False(t, f.manager.RelaySignal(context.Background(), f.caller.UserID(), s.CallID, "bogus", payload))

	f.registry.Unregister(f.receiver)
	assert.False(t, f.manager.RelaySignal(context.Background(), f.caller.UserID(), s.CallID, SignalOffer, payload))
}

func TestManager_EndAllFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := connectiontest.NewHandle(uuid.New())
	f.registry.Register(other)

	// user is caller in one call and receiver in another
	user := f.caller
	asCaller, err := f.manager.Initiate(ctx, &InitiateInput{
		CallerID: user.UserID(), ReceiverID: f.receiver.UserID(), Type: domain.CallTypeAudio, CallID: "a",
	})
	require.NoError(t, err)
	require.True(t, f.manager.Accept(ctx, f.receiver.UserID(), asCaller.CallID))
	timer := f.scheduler.last()

	asReceiver, err := f.manager.Initiate(ctx, &InitiateInput{
		CallerID: other.UserID(), ReceiverID: user.UserID(), Type: domain.CallTypeVideo, CallID: "b",
	})
	require.NoError(t, err)

	n := f.manager.EndAllFor(ctx, user.UserID(), domain.CallEndPeerDisconnected)

	assert.Equal(t, 2, n)
	assert.Equal(t, 0, f.manager.Count())
	assert.True(t, timer.stopped)
	assert.Equal(t, []any{domain.CallEndedEvent{CallID: asCaller.CallID, Reason: domain.CallEndPeerDisconnected}},
		f.receiver.Named(domain.EventCallEnded))
	assert.Equal(t, []any{domain.CallEndedEvent{CallID: asReceiver.CallID, Reason: domain.CallEndPeerDisconnected}},
		other.Named(domain.EventCallEnded))

	statuses := map[string]domain.CallLogStatus{}
	for _, l := range f.logs.logs() {
		statuses[l.CallID] = l.Status
	}
	assert.Equal(t, domain.CallLogCompleted, statuses["a"])
	assert.Equal(t, domain.CallLogMissed, statuses["b"])
}

func TestManager_Active(t *testing.T) {
	f := newFixture(t)
	s := f.initiate(t, 30)

	active := f.manager.Active(f.receiver.UserID())
	require.Len(t, active, 1)
	assert.Equal(t, s.CallID, active[0].CallID)
	assert.Empty(t, f.manager.Active(uuid.New()))
}

func TestManager_LogStoreFailureIsNotFatal(t *testing.T) {
	registry := connection.NewRegistry(nil)
	logs := new(MockLogStore)
	logs.On("RecordCall", mock.Anything, mock.Anything).Return(errors.New("cassandra down"))
	m := NewManager(registry, logs, Config{}, WithScheduler(&fakeScheduler{}))

	caller := connectiontest.NewHandle(uuid.New())
	receiver := connectiontest.NewHandle(uuid.New())
	registry.Register(caller)
	registry.Register(receiver)

	s, err := m.Initiate(context.Background(), &InitiateInput{
		CallerID: caller.UserID(), ReceiverID: receiver.UserID(), Type: domain.CallTypeAudio,
	})
	require.NoError(t, err)
	assert.True(t, m.End(context.Background(), caller.UserID(), s.CallID))
	logs.AssertNumberOfCalls(t, "RecordCall", 1)
}

func TestManager_ConcurrentAcceptEnd(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		s := f.initiate(t, 30)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.manager.Accept(context.Background(), f.receiver.UserID(), s.CallID)
		}()
		go func() {
			defer wg.Done()
			f.manager.End(context.Background(), f.caller.UserID(), s.CallID)
		}()
		wg.Wait()

		assert.Equal(t, 0, f.manager.Count())
		if timer := f.scheduler.last(); timer != nil {
			assert.True(t, timer.stopped)
		}
	}
}
