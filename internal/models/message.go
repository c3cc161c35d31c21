package models

import "time"

// Message represents a single message inside a conversation. Messages are
// created on send and mutated only to flip the read flag.
type Message struct {
	ID             int       `db:"id" json:"id"`
	ConversationID int       `db:"conversation_id" json:"conversation_id"`
	SenderID       int       `db:"sender_id" json:"sender_id"`
	Body           string    `db:"body" json:"body"`
	Read           bool      `db:"read" json:"read"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Server-to-client event types.
const (
	EventNewMessage      = "new-message"
	EventNewConversation = "new-conversation"
	EventError           = "error"
)

// Client-to-server event types.
const (
	EventJoinConversations = "join-conversations"
	EventSendMessage       = "send-message"
	EventMarkAsRead        = "mark-as-read"
)

// ConversationEvent is pushed to live sessions over the websocket.
type ConversationEvent struct {
	Type           string   `json:"type"`
	ConversationID int      `json:"conversation_id,omitempty"`
	Message        *Message `json:"message,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

// ClientEvent is what a live session sends to the server.
type ClientEvent struct {
	Type           string `json:"type"`
	ConversationID int    `json:"conversation_id,omitempty"`
	ReceiverID     int    `json:"receiver_id,omitempty"`
	ListingID      *int   `json:"listing_id,omitempty"`
	Body           string `json:"body,omitempty"`
}
