package models

import "time"

// Conversation is a persistent thread between exactly two users, optionally
// scoped to a single listing. At most one conversation exists per
// (participant pair, listing) combination.
type Conversation struct {
	ID              int        `db:"id" json:"id"`
	User1ID         int        `db:"user1_id" json:"user1_id"`
	User2ID         int        `db:"user2_id" json:"user2_id"`
	ListingID       *int       `db:"listing_id" json:"listing_id,omitempty"`
	LastMessageText string     `db:"last_message_text" json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	User1Unread     int        `db:"user1_unread" json:"-"`
	User2Unread     int        `db:"user2_unread" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether the user belongs to the conversation.
func (c Conversation) HasParticipant(userID int) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the counterpart of the given user.
func (c Conversation) OtherParticipant(userID int) int {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// UnreadFor returns the unread counter belonging to the given user.
func (c Conversation) UnreadFor(userID int) int {
	if c.User1ID == userID {
		return c.User1Unread
	}
	return c.User2Unread
}

// ConversationSummary is the API-friendly view of a conversation for one user.
type ConversationSummary struct {
	ConversationID  int              `db:"id" json:"conversation_id"`
	PartnerID       int              `json:"partner_id"`
	ListingID       *int             `db:"listing_id" json:"listing_id,omitempty"`
	Listing         *ListingSnapshot `json:"listing,omitempty"`
	LastMessageText string           `db:"last_message_text" json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time       `db:"last_message_at" json:"last_message_at,omitempty"`
	Unread          int              `json:"unread"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
}
