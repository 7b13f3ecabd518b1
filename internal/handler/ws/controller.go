// Package ws serves the realtime websocket endpoint and routes its events.
package ws

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pulsechat-backend/internal/connection"
	"pulsechat-backend/internal/domain"
	"pulsechat-backend/internal/middleware"
	"pulsechat-backend/internal/service/call"
	"pulsechat-backend/internal/service/chat"
	"pulsechat-backend/internal/service/presence"
	"pulsechat-backend/pkg/constants"
	apperrors "pulsechat-backend/pkg/errors"
	"pulsechat-backend/pkg/jwt"
	"pulsechat-backend/pkg/logger"
	"pulsechat-backend/pkg/metrics"
)

// UserFinder resolves the user a credential belongs to
type UserFinder interface {
	FindUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// Controller owns the lifecycle of a connection: authentication, registration,
// event routing and cleanup on disconnect.
type Controller struct {
	registry   *connection.Registry
	presence   *presence.Publisher
	calls      *call.Manager
	relay      *chat.Relay
	jwtManager *jwt.JWTManager
	revocation middleware.RevocationChecker
	users      UserFinder
	metrics    *metrics.Metrics
}

// NewController creates a connection controller. revocation and m may be nil.
func NewController(
	registry *connection.Registry,
	presencePublisher *presence.Publisher,
	calls *call.Manager,
	relay *chat.Relay,
	jwtManager *jwt.JWTManager,
	revocation middleware.RevocationChecker,
	users UserFinder,
	m *metrics.Metrics,
) *Controller {
	return &Controller{
		registry:   registry,
		presence:   presencePublisher,
		calls:      calls,
		relay:      relay,
		jwtManager: jwtManager,
		revocation: revocation,
		users:      users,
		metrics:    m,
	}
}

// Authenticate resolves a bearer credential to a known user
func (ctl *Controller) Authenticate(ctx context.Context, credential string) (*domain.User, error) {
	if credential == "" {
		ctl.metrics.RecordAuthFailure("websocket", "missing_token")
		return nil, apperrors.UnauthorizedError("Authentication required")
	}

	claims, err := ctl.jwtManager.ValidateToken(credential)
	if err != nil {
		ctl.metrics.RecordAuthFailure("websocket", "invalid_token")
		return nil, apperrors.InvalidTokenError("Invalid or expired token")
	}

	if ctl.revocation != nil {
		revoked, err := ctl.revocation.IsTokenRevoked(ctx, claims)
		if err != nil {
			logger.FromContext(ctx).Warn("Token revocation check failed, allowing connection",
				zap.String("user_id", claims.UserID.String()),
				zap.Error(err))
		} else if revoked {
			ctl.metrics.RecordAuthFailure("websocket", "revoked")
			return nil, apperrors.InvalidTokenError("Token has been revoked")
		}
	}

	user, err := ctl.users.FindUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			ctl.metrics.RecordAuthFailure("websocket", "unknown_user")
			return nil, apperrors.UnauthorizedError("User not found")
		}
		logger.FromContext(ctx).Error("User lookup failed during authentication",
			zap.String("user_id", claims.UserID.String()),
			zap.Error(err))
		return nil, apperrors.ServiceUnavailableError("Unable to verify user")
	}

	return user, nil
}

// Attach registers h as its user's live connection and announces the user
// online. A displaced connection is told so and closed.
func (ctl *Controller) Attach(ctx context.Context, h connection.Handle) {
	if prev := ctl.registry.Register(h); prev != nil {
		ctl.registry.Deliver(prev, domain.EventSessionReplaced, domain.SessionReplacedEvent{})
		prev.Close()
	}
	ctl.presence.Connected(ctx, h.UserID())
}

// Detach unregisters h. If h was still the user's live connection the user
// goes offline and every call they are part of ends.
func (ctl *Controller) Detach(ctx context.Context, h connection.Handle) {
	if !ctl.registry.Unregister(h) {
		logger.FromContext(ctx).Debug("Stale connection closed",
			zap.String("user_id", h.UserID().String()))
		return
	}

	// calls go first: a reconnect during the status write must not lose the
	// calls it places
	if n := ctl.calls.EndAllFor(ctx, h.UserID(), domain.CallEndPeerDisconnected); n > 0 {
		logger.FromContext(ctx).Info("Ended calls of disconnected user",
			zap.String("user_id", h.UserID().String()),
			zap.Int("calls", n))
	}
	ctl.presence.Disconnected(ctx, h.UserID())
}

// Heartbeat is called when a connection answers a ping
func (ctl *Controller) Heartbeat(ctx context.Context, h connection.Handle) {
	ctl.presence.Heartbeat(ctx, h.UserID())
}

// Dispatch routes one inbound event. Events of one connection are
// dispatched sequentially by its read loop.
func (ctl *Controller) Dispatch(ctx context.Context, h connection.Handle, env Envelope) {
	ctx, cancel := context.WithTimeout(ctx, constants.StoreTimeout)
	defer cancel()

	ctl.metrics.RecordWebSocketMessage(env.Event, "inbound")
	userID := h.UserID()

	switch env.Event {
	case domain.EventTypingStart, domain.EventTypingStop:
		var p typingPayload
		if err := decode(env.Data, &p); err != nil {
			ctl.malformed(ctx, h, env.Event, err)
			return
		}
		err := ctl.relay.Typing(ctx, &chat.TypingInput{
			ActorID:    userID,
			ReceiverID: p.ReceiverID,
			GroupID:    p.GroupID,
			Start:      env.Event == domain.EventTypingStart,
		})
		if err != nil {
			logger.FromContext(ctx).Debug("Typing indicator dropped", zap.Error(err))
		}

	case domain.EventCallInitiate:
		var p callInitiatePayload
		if err := decode(env.Data, &p); err != nil {
			ctl.malformed(ctx, h, env.Event, err)
			return
		}
		// failures are reported to the caller as call:error by the manager
		_, _ = ctl.calls.Initiate(ctx, &call.InitiateInput{
			CallerID:   userID,
			ReceiverID: p.ToUserID,
			Type:       p.Type,
			CallID:     p.CallID,
			Duration:   p.Duration,
		})

	case domain.EventCallAccept, domain.EventCallCancel, domain.EventCallEnd:
		var p callPayload
		if err := decode(env.Data, &p); err != nil {
			ctl.malformed(ctx, h, env.Event, err)
			return
		}
		switch env.Event {
		case domain.EventCallAccept:
			ctl.calls.Accept(ctx, userID, p.CallID)
		case domain.EventCallCancel:
			ctl.calls.Cancel(ctx, userID, p.CallID)
		default:
			ctl.calls.End(ctx, userID, p.CallID)
		}

	case domain.EventCallReject:
		var p callRejectPayload
		if err := decode(env.Data, &p); err != nil {
			ctl.malformed(ctx, h, env.Event, err)
			return
		}
		ctl.calls.Reject(ctx, userID, p.CallID, p.Reason)

	case domain.EventWebRTCOffer:
		var p offerPayload
		if err := decode(env.Data, &p); err != nil {
			ctl.malformed(ctx, h, env.Event, err)
			return
		}
		ctl.calls.RelaySignal(ctx, userID, p.CallID, call.SignalOffer, p.Offer)

	case domain.EventWebRTCAnswer:
		var p answerPayload
		if err := decode(env.Data, &p); err != nil {
			ctl.malformed(ctx, h, env.Event, err)
			return
		}
		ctl.calls.RelaySignal(ctx, userID, p.CallID, call.SignalAnswer, p.Answer)

	case domain.EventWebRTCICE:
		var p candidatePayload
		if err := decode(env.Data, &p); err != nil {
			ctl.malformed(ctx, h, env.Event, err)
			return
		}
		ctl.calls.RelaySignal(ctx, userID, p.CallID, call.SignalCandidate, p.Candidate)

	case domain.EventMessageSend:
		var p messageSendPayload
		if err := decode(env.Data, &p); err != nil {
			ctl.malformed(ctx, h, env.Event, err)
			return
		}
		message, err := ctl.relay.Send(ctx, &chat.SendInput{
			SenderID:   userID,
			ReceiverID: p.ReceiverID,
			GroupID:    p.GroupID,
			Content:    p.Content,
			Type:       p.Type,
		})
		if err != nil {
			ctl.replyError(ctx, h, domain.EventMessageError, err)
			return
		}
		ctl.registry.Deliver(h, domain.EventMessageSent, domain.MessageEvent{Message: message})

	case domain.EventMessageRead:
		var p messageReadPayload
		if err := decode(env.Data, &p); err != nil {
			ctl.malformed(ctx, h, env.Event, err)
			return
		}
		if _, err := ctl.relay.MarkRead(ctx, userID, p.MessageID); err != nil {
			ctl.replyError(ctx, h, domain.EventMessageError, err)
		}

	default:
		logger.FromContext(ctx).Debug("Unknown event", zap.String("event", env.Event))
		ctl.metrics.RecordWebSocketError("unknown_event")
	}
}

// malformed answers a payload that could not be decoded
func (ctl *Controller) malformed(ctx context.Context, h connection.Handle, event string, err error) {
	logger.FromContext(ctx).Debug("Malformed event payload",
		zap.String("event", event),
		zap.Error(err))
	ctl.metrics.RecordWebSocketError("malformed_payload")

	reply := errorEventFor(event)
	if reply == "" {
		return
	}
	ctl.registry.Deliver(h, reply, domain.ErrorEvent{Message: "Invalid payload"})
}

// replyError answers with the AppError message; anything else stays internal
func (ctl *Controller) replyError(ctx context.Context, h connection.Handle, event string, err error) {
	message := "Internal server error"
	if apperrors.IsAppError(err) {
		message = apperrors.GetAppError(err).Message
	} else {
		logger.FromContext(ctx).Error("Unexpected event failure",
			zap.String("event", event),
			zap.Error(err))
	}
	ctl.registry.Deliver(h, event, domain.ErrorEvent{Message: message})
}

// errorEventFor returns the error event answering a failed inbound event
func errorEventFor(event string) string {
	switch event {
	case domain.EventMessageSend, domain.EventMessageRead:
		return domain.EventMessageError
	case domain.EventCallInitiate, domain.EventCallAccept, domain.EventCallReject,
		domain.EventCallCancel, domain.EventCallEnd,
		domain.EventWebRTCOffer, domain.EventWebRTCAnswer, domain.EventWebRTCICE:
		return domain.EventCallError
	}
	return ""
}
