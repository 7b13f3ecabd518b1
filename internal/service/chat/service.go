// Package chat validates, persists and relays chat messages and typing indicators.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pulsechat-backend/internal/domain"
	"pulsechat-backend/pkg/constants"
	apperrors "pulsechat-backend/pkg/errors"
	"pulsechat-backend/pkg/logger"
	"pulsechat-backend/pkg/metrics"
)

// Directory resolves users and groups
type Directory interface {
	FindUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	// FindGroup returns domain.ErrNotFound unless requireMember belongs to the group
	FindGroup(ctx context.Context, groupID, requireMember uuid.UUID) (*domain.Group, error)
}

// MessageStore persists messages
type MessageStore interface {
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessage(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
	MarkRead(ctx context.Context, messageID uuid.UUID, readAt time.Time) error
}

// Deliverer sends events to live connections
type Deliverer interface {
	DeliverTo(userID uuid.UUID, event string, payload any) bool
	DeliverToMany(userIDs []uuid.UUID, except uuid.UUID, event string, payload any) int
}

// Relay handles message sends, read receipts and typing indicators
type Relay struct {
	directory Directory
	messages  MessageStore
	deliverer Deliverer
	now       func() time.Time
	metrics   *metrics.Metrics
}

// NewRelay creates a new message relay
func NewRelay(directory Directory, messages MessageStore, deliverer Deliverer, m *metrics.Metrics) *Relay {
	return &Relay{
		directory: directory,
		messages:  messages,
		deliverer: deliverer,
		now:       time.Now,
		metrics:   m,
	}
}

// SendInput contains message data. Exactly one of ReceiverID and GroupID is set.
type SendInput struct {
	SenderID   uuid.UUID
	ReceiverID *uuid.UUID
	GroupID    *uuid.UUID
	Content    string
	Type       domain.MessageType
}

// Send validates, persists and fans out a message. It returns the stored message.
func (r *Relay) Send(ctx context.Context, input *SendInput) (*domain.Message, error) {
	receiverID, groupID := presentID(input.ReceiverID), presentID(input.GroupID)
	if err := validateTarget(receiverID, groupID); err != nil {
		r.metrics.RecordMessageFailure("validation")
		return nil, err
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		r.metrics.RecordMessageFailure("validation")
		return nil, apperrors.MissingFieldError("content")
	}
	if utf8.RuneCountInString(content) > constants.MaxMessageLength {
		r.metrics.RecordMessageFailure("validation")
		return nil, apperrors.ValidationError("Message content is too long")
	}

	msgType := input.Type
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	if !msgType.Valid() {
		r.metrics.RecordMessageFailure("validation")
		return nil, apperrors.ValidationError("Invalid message type")
	}

	var recipients []uuid.UUID
	if receiverID != nil {
		if _, err := r.directory.FindUser(ctx, *receiverID); err != nil {
			r.metrics.RecordMessageFailure("receiver")
			return nil, lookupError(err, apperrors.NotFoundError("Receiver"))
		}
	} else {
		group, err := r.directory.FindGroup(ctx, *groupID, input.SenderID)
		if err != nil {
			r.metrics.RecordMessageFailure("group")
			return nil, lookupError(err, apperrors.AccessDeniedError("Group not found or access denied"))
		}
		recipients = group.MemberIDs
	}

	message := &domain.Message{
		MessageID:  uuid.New(),
		SenderID:   input.SenderID,
		ReceiverID: receiverID,
		GroupID:    groupID,
		Content:    content,
		Type:       msgType,
		CreatedAt:  r.now().UTC(),
	}

	if err := r.messages.CreateMessage(ctx, message); err != nil {
		logger.FromContext(ctx).Error("Failed to persist message",
			zap.String("sender_id", input.SenderID.String()),
			zap.Error(err))
		r.metrics.RecordMessageFailure("database")
		return nil, apperrors.DatabaseError(err)
	}

	event := domain.MessageEvent{Message: message}
	target := "direct"
	if message.IsGroup() {
		target = "group"
		r.deliverer.DeliverToMany(recipients, message.SenderID, domain.EventMessageReceive, event)
	} else {
		r.deliverer.DeliverTo(*message.ReceiverID, domain.EventMessageReceive, event)
	}
	r.metrics.RecordMessage(target, string(message.Type))

	return message, nil
}

// MarkRead records that readerID has read messageID and notifies the sender
func (r *Relay) MarkRead(ctx context.Context, readerID, messageID uuid.UUID) (*domain.ReadReceiptEvent, error) {
	message, err := r.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, lookupError(err, apperrors.MessageNotFoundError())
	}

	if message.SenderID == readerID {
		return nil, apperrors.AccessDeniedError("Cannot mark your own message as read")
	}
	if message.IsGroup() {
		if _, err := r.directory.FindGroup(ctx, *message.GroupID, readerID); err != nil {
			return nil, lookupError(err, apperrors.AccessDeniedError("Group not found or access denied"))
		}
	} else if message.ReceiverID == nil || *message.ReceiverID != readerID {
		return nil, apperrors.AccessDeniedError("Not the receiver of this message")
	}

	if message.Read && message.ReadAt != nil {
		return &domain.ReadReceiptEvent{MessageID: messageID, Read: true, ReadAt: *message.ReadAt}, nil
	}

	readAt := r.now().UTC()
	if err := r.messages.MarkRead(ctx, messageID, readAt); err != nil {
		return nil, lookupError(err, apperrors.MessageNotFoundError())
	}

	receipt := &domain.ReadReceiptEvent{MessageID: messageID, Read: true, ReadAt: readAt}
	r.deliverer.DeliverTo(message.SenderID, domain.EventMessageRead, *receipt)
	return receipt, nil
}

// TypingInput identifies who is typing and to whom
type TypingInput struct {
	ActorID    uuid.UUID
	ReceiverID *uuid.UUID
	GroupID    *uuid.UUID
	Start      bool
}

// Typing relays a typing indicator. Nothing is stored.
func (r *Relay) Typing(ctx context.Context, input *TypingInput) error {
	receiverID, groupID := presentID(input.ReceiverID), presentID(input.GroupID)
	if err := validateTarget(receiverID, groupID); err != nil {
		return err
	}

	event := domain.EventTypingStop
	if input.Start {
		event = domain.EventTypingStart
	}

	if receiverID != nil {
		r.deliverer.DeliverTo(*receiverID, event, domain.TypingEvent{UserID: input.ActorID})
		return nil
	}

	group, err := r.directory.FindGroup(ctx, *groupID, input.ActorID)
	if err != nil {
		return lookupError(err, apperrors.AccessDeniedError("Group not found or access denied"))
	}
	r.deliverer.DeliverToMany(group.MemberIDs, input.ActorID, event, domain.TypingEvent{
		UserID:  input.ActorID,
		GroupID: groupID,
	})
	return nil
}

// presentID treats a nil UUID as an absent one
func presentID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}

func validateTarget(receiverID, groupID *uuid.UUID) error {
	if (receiverID == nil) == (groupID == nil) {
		return apperrors.ValidationError("Exactly one of receiverId or groupId is required")
	}
	return nil
}

// lookupError maps domain.ErrNotFound to notFound and anything else to a database error
func lookupError(err error, notFound *apperrors.AppError) error {
	if errors.Is(err, domain.ErrNotFound) {
		return notFound
	}
	return apperrors.DatabaseError(err)
}
