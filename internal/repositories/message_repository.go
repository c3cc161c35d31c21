package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"estate-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	AppendMessage(ctx context.Context, conversationID int, senderID int, body string) (models.Message, error)
	ListMessages(ctx context.Context, conversationID int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID int, readerID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, body, read, created_at`

// AppendMessage stores a message and updates the conversation's last-message
// snapshot plus the recipient's unread counter in one transaction. The serial
// id assigned here is the authoritative per-conversation order.
func (r *MessageRepo) AppendMessage(ctx context.Context, conversationID int, senderID int, body string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, body)
        VALUES ($1, $2, $3) RETURNING `+messageColumns, conversationID, senderID, body).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &msg.Read, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET
            last_message_text = $2,
            last_message_at = $3,
            user1_unread = user1_unread + CASE WHEN user1_id <> $4 THEN 1 ELSE 0 END,
            user2_unread = user2_unread + CASE WHEN user2_id <> $4 THEN 1 ELSE 0 END
        WHERE id = $1`, conversationID, msg.Body, msg.CreatedAt, senderID)
	if err != nil {
		return models.Message{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Message{}, err
	}
	if count == 0 {
		return models.Message{}, ErrConversationNotFound
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListMessages returns all messages of a conversation in append order.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1 ORDER BY id ASC`, conversationID)
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkConversationRead flips the read flag on every message not sent by the
// reader and zeroes the reader's unread counter.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID int, readerID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE messages SET read = TRUE
        WHERE conversation_id=$1 AND sender_id<>$2 AND read = FALSE`, conversationID, readerID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET
            user1_unread = CASE WHEN user1_id=$2 THEN 0 ELSE user1_unread END,
            user2_unread = CASE WHEN user2_id=$2 THEN 0 ELSE user2_unread END
        WHERE id=$1`, conversationID, readerID); err != nil {
		return err
	}

	return tx.Commit()
}
