package chat

import (
	"context"
	"log"
	"strings"
	"sync"

	"estate-chat-service/internal/models"
	"estate-chat-service/internal/observability"
	"estate-chat-service/internal/repositories"
)

// Broadcaster fans events out to live sessions. The websocket hub implements
// it directly; with multiple instances a pub/sub bridge does.
type Broadcaster interface {
	BroadcastToRoom(conversationID int, event models.ConversationEvent)
	NotifyUser(userID int, event models.ConversationEvent)
	HasUserSessions(userID int) bool
}

// Notifier is asked to reach a recipient who has no live session.
type Notifier interface {
	NotifyOffline(ctx context.Context, msg models.Message, recipientID int) error
}

// Service routes conversation operations between the transport layers and
// the message store.
type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	listings      repositories.ListingRepository
	broadcaster   Broadcaster
	notifier      Notifier

	mu        sync.Mutex
	convLocks map[int]*sync.Mutex
}

// NewService builds a Service. notifier may be nil when offline notifications
// are not configured.
func NewService(conversations repositories.ConversationRepository, messages repositories.MessageRepository, listings repositories.ListingRepository, broadcaster Broadcaster, notifier Notifier) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		listings:      listings,
		broadcaster:   broadcaster,
		notifier:      notifier,
		convLocks:     map[int]*sync.Mutex{},
	}
}

// lockConversation serializes persist-and-fan-out per conversation so
// delivery order always matches the persisted append order.
func (s *Service) lockConversation(conversationID int) func() {
	s.mu.Lock()
	l, ok := s.convLocks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		s.convLocks[conversationID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// StartConversation returns the conversation for (initiator, recipient,
// listing), creating it on first contact. A brand-new conversation is
// announced to the recipient's live sessions.
func (s *Service) StartConversation(ctx context.Context, initiatorID int, recipientID int, listingID *int) (models.Conversation, error) {
	if initiatorID == recipientID {
		return models.Conversation{}, ErrSelfConversation
	}

	conv, created, err := s.conversations.CreateOrGetConversation(ctx, initiatorID, recipientID, listingID)
	if err != nil {
		return models.Conversation{}, err
	}

	if created {
		observability.IncConversationsStarted()
		s.broadcaster.NotifyUser(recipientID, models.ConversationEvent{
			Type:           models.EventNewConversation,
			ConversationID: conv.ID,
		})
	}
	return conv, nil
}

// SendMessage persists a message and fans it out to every live session in the
// conversation's room, the sender's other sessions included.
func (s *Service) SendMessage(ctx context.Context, conversationID int, senderID int, body string) (models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return models.Message{}, ErrEmptyBody
	}

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if !conv.HasParticipant(senderID) {
		return models.Message{}, ErrNotParticipant
	}

	unlock := s.lockConversation(conversationID)
	defer unlock()

	msg, err := s.messages.AppendMessage(ctx, conversationID, senderID, body)
	if err != nil {
		return models.Message{}, err
	}
	observability.IncMessagesSent()

	s.broadcaster.BroadcastToRoom(conversationID, models.ConversationEvent{
		Type:           models.EventNewMessage,
		ConversationID: conversationID,
		Message:        &msg,
	})

	recipientID := conv.OtherParticipant(senderID)
	if s.notifier != nil && !s.broadcaster.HasUserSessions(recipientID) {
		if err := s.notifier.NotifyOffline(ctx, msg, recipientID); err != nil {
			log.Printf("offline notify failed conversation=%d message=%d: %v", conversationID, msg.ID, err)
		}
	}
	return msg, nil
}

// MarkAsRead flips the read flag on the other participant's messages and
// zeroes the reader's unread counter.
func (s *Service) MarkAsRead(ctx context.Context, conversationID int, userID int) error {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return ErrNotParticipant
	}
	return s.messages.MarkConversationRead(ctx, conversationID, userID)
}

// ListConversations returns the user's conversation summaries with listing
// snapshots attached where available. A corrupt listing row is logged and the
// snapshot omitted rather than failing the whole list.
func (s *Service) ListConversations(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	summaries, err := s.conversations.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	for i := range summaries {
		if summaries[i].ListingID == nil {
			continue
		}
		snapshot, err := s.listings.GetListingSnapshot(ctx, *summaries[i].ListingID)
		if err != nil {
			log.Printf("listing snapshot unavailable listing=%d: %v", *summaries[i].ListingID, err)
			continue
		}
		summaries[i].Listing = &snapshot
	}
	return summaries, nil
}

// ListMessages returns a conversation's history in append order.
func (s *Service) ListMessages(ctx context.Context, conversationID int, userID int) ([]models.Message, error) {
	member, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotParticipant
	}
	return s.messages.ListMessages(ctx, conversationID)
}

// UnreadCount returns the user's unread counter for one conversation.
func (s *Service) UnreadCount(ctx context.Context, conversationID int, userID int) (int, error) {
	member, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	if !member {
		return 0, ErrNotParticipant
	}
	return s.conversations.UnreadCount(ctx, conversationID, userID)
}

// TotalUnread returns the user's unread total across conversations.
func (s *Service) TotalUnread(ctx context.Context, userID int) (int, error) {
	return s.conversations.TotalUnread(ctx, userID)
}

// ConversationIDsForUser lists the room ids a user's session should join.
func (s *Service) ConversationIDsForUser(ctx context.Context, userID int) ([]int, error) {
	summaries, err := s.conversations.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(summaries))
	for _, summary := range summaries {
		ids = append(ids, summary.ConversationID)
	}
	return ids, nil
}
