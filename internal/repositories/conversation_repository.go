package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"estate-chat-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateOrGetConversation(ctx context.Context, userID int, partnerID int, listingID *int) (models.Conversation, bool, error)
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error)
	ListConversationsForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error)
	UnreadCount(ctx context.Context, conversationID int, userID int) (int, error)
	TotalUnread(ctx context.Context, userID int) (int, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, user1_id, user2_id, listing_id, last_message_text, last_message_at, user1_unread, user2_unread, created_at`

// CreateOrGetConversation returns the conversation for the (pair, listing)
// combination, creating it when none exists. The second return value reports
// whether a new row was created. Participant order is normalized so the pair
// is unique regardless of who initiated.
func (r *ConversationRepo) CreateOrGetConversation(ctx context.Context, userID int, partnerID int, listingID *int) (models.Conversation, bool, error) {
	if userID == partnerID {
		return models.Conversation{}, false, errors.New("cannot create conversation with self")
	}
	participants := []int{userID, partnerID}
	sort.Ints(participants)
	user1, user2 := participants[0], participants[1]

	var conv models.Conversation
	query := `SELECT ` + conversationColumns + ` FROM conversations
        WHERE user1_id=$1 AND user2_id=$2 AND listing_id IS NOT DISTINCT FROM $3`
	err := r.db.GetContext(ctx, &conv, query, user1, user2, listingID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, false, err
	}

	err = r.db.GetContext(ctx, &conv, `INSERT INTO conversations (user1_id, user2_id, listing_id)
        VALUES ($1, $2, $3) RETURNING `+conversationColumns, user1, user2, listingID)
	if err == nil {
		return conv, true, nil
	}
	if !isUniqueViolation(err) {
		return models.Conversation{}, false, err
	}

	// Lost a race with a concurrent first contact; the row exists now.
	if err := r.db.GetContext(ctx, &conv, query, user1, user2, listingID); err != nil {
		return models.Conversation{}, false, err
	}
	return conv, false, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1 AND (user1_id=$2 OR user2_id=$2))`, conversationID, userID)
	return exists, err
}

// ListConversationsForUser returns the user's conversations, most recently
// active first.
func (r *ConversationRepo) ListConversationsForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
        WHERE user1_id=$1 OR user2_id=$1
        ORDER BY last_message_at DESC NULLS LAST, created_at DESC`
	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ConversationSummary
	for rows.Next() {
		var conv models.Conversation
		if err := rows.StructScan(&conv); err != nil {
			return nil, err
		}
		result = append(result, models.ConversationSummary{
			ConversationID:  conv.ID,
			PartnerID:       conv.OtherParticipant(userID),
			ListingID:       conv.ListingID,
			LastMessageText: conv.LastMessageText,
			LastMessageAt:   conv.LastMessageAt,
			Unread:          conv.UnreadFor(userID),
			CreatedAt:       conv.CreatedAt,
		})
	}
	return result, rows.Err()
}

// UnreadCount returns the user's unread counter for one conversation.
func (r *ConversationRepo) UnreadCount(ctx context.Context, conversationID int, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT CASE WHEN user1_id=$2 THEN user1_unread ELSE user2_unread END
        FROM conversations WHERE id=$1 AND (user1_id=$2 OR user2_id=$2)`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrConversationNotFound
	}
	return count, err
}

// TotalUnread sums the user's unread counters across all conversations.
func (r *ConversationRepo) TotalUnread(ctx context.Context, userID int) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(CASE WHEN user1_id=$1 THEN user1_unread ELSE user2_unread END), 0)
        FROM conversations WHERE user1_id=$1 OR user2_id=$1`, userID)
	return total, err
}
