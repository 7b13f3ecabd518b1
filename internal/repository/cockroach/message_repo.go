package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulsechat-backend/internal/domain"
)

// MessageRepository persists chat messages in CockroachDB
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// CreateMessage inserts a message
func (r *MessageRepository) CreateMessage(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (message_id, sender_id, receiver_id, group_id, content, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		message.MessageID,
		message.SenderID,
		message.ReceiverID,
		message.GroupID,
		message.Content,
		message.Type,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// GetMessage retrieves a message by ID
func (r *MessageRepository) GetMessage(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT message_id, sender_id, receiver_id, group_id, content, message_type,
		       edited, deleted, read, read_at, created_at
		FROM messages
		WHERE message_id = $1
	`

	m := &domain.Message{}
	err := r.pool.QueryRow(ctx, query, messageID).Scan(
		&m.MessageID,
		&m.SenderID,
		&m.ReceiverID,
		&m.GroupID,
		&m.Content,
		&m.Type,
		&m.Edited,
		&m.Deleted,
		&m.Read,
		&m.ReadAt,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return m, nil
}

// MarkRead flags a message as read at readAt
func (r *MessageRepository) MarkRead(ctx context.Context, messageID uuid.UUID, readAt time.Time) error {
	query := `
		UPDATE messages
		SET read = true, read_at = $1
		WHERE message_id = $2
	`

	cmdTag, err := r.pool.Exec(ctx, query, readAt, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}

	return nil
}
