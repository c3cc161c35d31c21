package ws

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"estate-chat-service/internal/chat"
	"estate-chat-service/internal/repositories"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// reasonForError maps service errors to the reason codes of the error event.
func reasonForError(err error) string {
	switch {
	case errors.Is(err, chat.ErrSelfConversation):
		return "self_conversation"
	case errors.Is(err, chat.ErrEmptyBody):
		return "empty_body"
	case errors.Is(err, chat.ErrNotParticipant):
		return "not_participant"
	case errors.Is(err, repositories.ErrConversationNotFound):
		return "conversation_not_found"
	default:
		return "internal_error"
	}
}
