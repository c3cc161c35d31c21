package chat

import "errors"

// Validation errors: the request is malformed and nothing is persisted.
var (
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrEmptyBody        = errors.New("message body is empty")
)

// ErrNotParticipant is an authorization error: the acting user does not
// belong to the conversation. The message store is never touched.
var ErrNotParticipant = errors.New("user is not a conversation participant")
