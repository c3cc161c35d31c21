package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"estate-chat-service/internal/chat"
	"estate-chat-service/internal/mocks"
	"estate-chat-service/internal/models"
	"estate-chat-service/internal/repositories"
)

func newServiceForTest(convRepo *mocks.ConversationRepositoryMock, msgRepo *mocks.MessageRepositoryMock, listingRepo *mocks.ListingRepositoryMock, broadcaster *mocks.BroadcasterMock, notifier chat.Notifier) *chat.Service {
	return chat.NewService(convRepo, msgRepo, listingRepo, broadcaster, notifier)
}

func TestStartConversationSelfRejected(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	svc := newServiceForTest(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ListingRepositoryMock), new(mocks.BroadcasterMock), nil)

	_, err := svc.StartConversation(context.Background(), 1, 1, nil)

	require.ErrorIs(t, err, chat.ErrSelfConversation)
	convRepo.AssertNotCalled(t, "CreateOrGetConversation")
}

func TestStartConversationIdempotent(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	broadcaster := new(mocks.BroadcasterMock)
	svc := newServiceForTest(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ListingRepositoryMock), broadcaster, nil)

	conv := models.Conversation{ID: 10, User1ID: 1, User2ID: 2}
	convRepo.On("CreateOrGetConversation", mock.Anything, 1, 2, (*int)(nil)).Return(conv, true, nil).Once()
	convRepo.On("CreateOrGetConversation", mock.Anything, 1, 2, (*int)(nil)).Return(conv, false, nil).Once()
	broadcaster.On("NotifyUser", 2, models.ConversationEvent{Type: models.EventNewConversation, ConversationID: 10}).Once()

	first, err := svc.StartConversation(context.Background(), 1, 2, nil)
	require.NoError(t, err)
	second, err := svc.StartConversation(context.Background(), 1, 2, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// new-conversation is announced only on creation.
	broadcaster.AssertNumberOfCalls(t, "NotifyUser", 1)
	convRepo.AssertExpectations(t)
}

func TestSendMessageNonParticipantRejected(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	broadcaster := new(mocks.BroadcasterMock)
	svc := newServiceForTest(convRepo, msgRepo, new(mocks.ListingRepositoryMock), broadcaster, nil)

	convRepo.On("GetConversation", mock.Anything, 5).Return(models.Conversation{ID: 5, User1ID: 1, User2ID: 2}, nil).Once()

	_, err := svc.SendMessage(context.Background(), 5, 99, "hi")

	require.ErrorIs(t, err, chat.ErrNotParticipant)
	msgRepo.AssertNotCalled(t, "AppendMessage")
	broadcaster.AssertNotCalled(t, "BroadcastToRoom")
}

func TestSendMessageEmptyBodyRejected(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	svc := newServiceForTest(convRepo, msgRepo, new(mocks.ListingRepositoryMock), new(mocks.BroadcasterMock), nil)

	_, err := svc.SendMessage(context.Background(), 5, 1, "   ")

	require.ErrorIs(t, err, chat.ErrEmptyBody)
	convRepo.AssertNotCalled(t, "GetConversation")
	msgRepo.AssertNotCalled(t, "AppendMessage")
}

func TestSendMessageUnknownConversation(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	svc := newServiceForTest(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ListingRepositoryMock), new(mocks.BroadcasterMock), nil)

	convRepo.On("GetConversation", mock.Anything, 404).Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()

	_, err := svc.SendMessage(context.Background(), 404, 1, "hi")

	require.ErrorIs(t, err, repositories.ErrConversationNotFound)
}

func TestSendMessageBroadcastsAndSkipsNotifierWhenRecipientOnline(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	broadcaster := new(mocks.BroadcasterMock)
	notifier := new(mocks.NotifierMock)
	svc := newServiceForTest(convRepo, msgRepo, new(mocks.ListingRepositoryMock), broadcaster, notifier)

	conv := models.Conversation{ID: 5, User1ID: 1, User2ID: 2}
	msg := models.Message{ID: 7, ConversationID: 5, SenderID: 1, Body: "hello"}
	convRepo.On("GetConversation", mock.Anything, 5).Return(conv, nil).Once()
	msgRepo.On("AppendMessage", mock.Anything, 5, 1, "hello").Return(msg, nil).Once()
	broadcaster.On("BroadcastToRoom", 5, models.ConversationEvent{Type: models.EventNewMessage, ConversationID: 5, Message: &msg}).Once()
	broadcaster.On("HasUserSessions", 2).Return(true).Once()

	got, err := svc.SendMessage(context.Background(), 5, 1, "hello")

	require.NoError(t, err)
	assert.Equal(t, 7, got.ID)
	notifier.AssertNotCalled(t, "NotifyOffline")
	broadcaster.AssertExpectations(t)
}

func TestSendMessageNotifiesOfflineRecipient(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	broadcaster := new(mocks.BroadcasterMock)
	notifier := new(mocks.NotifierMock)
	svc := newServiceForTest(convRepo, msgRepo, new(mocks.ListingRepositoryMock), broadcaster, notifier)

	conv := models.Conversation{ID: 5, User1ID: 1, User2ID: 2}
	msg := models.Message{ID: 8, ConversationID: 5, SenderID: 1, Body: "anyone home?"}
	convRepo.On("GetConversation", mock.Anything, 5).Return(conv, nil).Once()
	msgRepo.On("AppendMessage", mock.Anything, 5, 1, "anyone home?").Return(msg, nil).Once()
	broadcaster.On("BroadcastToRoom", 5, mock.Anything).Once()
	broadcaster.On("HasUserSessions", 2).Return(false).Once()
	notifier.On("NotifyOffline", mock.Anything, msg, 2).Return(nil).Once()

	_, err := svc.SendMessage(context.Background(), 5, 1, "anyone home?")

	require.NoError(t, err)
	notifier.AssertExpectations(t)
}

// orderedBackend fakes the store and broadcaster to observe fan-out order
// against the persisted append order under concurrent senders.
type orderedBackend struct {
	mu     sync.Mutex
	nextID int
	sent   []int
}

func (b *orderedBackend) AppendMessage(ctx context.Context, conversationID int, senderID int, body string) (models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	return models.Message{ID: b.nextID, ConversationID: conversationID, SenderID: senderID, Body: body, CreatedAt: time.Now()}, nil
}

func (b *orderedBackend) ListMessages(ctx context.Context, conversationID int) ([]models.Message, error) {
	return nil, nil
}

func (b *orderedBackend) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	return models.Message{}, nil
}

func (b *orderedBackend) MarkConversationRead(ctx context.Context, conversationID int, readerID int) error {
	return nil
}

func (b *orderedBackend) BroadcastToRoom(conversationID int, event models.ConversationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, event.Message.ID)
}

func (b *orderedBackend) NotifyUser(userID int, event models.ConversationEvent) {}

func (b *orderedBackend) HasUserSessions(userID int) bool { return true }

func TestSendMessageFanOutFollowsAppendOrder(t *testing.T) {
	backend := &orderedBackend{}
	convRepo := new(mocks.ConversationRepositoryMock)
	convRepo.On("GetConversation", mock.Anything, 5).Return(models.Conversation{ID: 5, User1ID: 1, User2ID: 2}, nil)

	svc := chat.NewService(convRepo, backend, new(mocks.ListingRepositoryMock), backend, nil)

	const senders = 20
	var wg sync.WaitGroup
	wg.Add(senders)
	for i := 0; i < senders; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.SendMessage(context.Background(), 5, 1, "ping")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, backend.sent, senders)
	for i, id := range backend.sent {
		assert.Equal(t, i+1, id, "fan-out order must match persisted order")
	}
}

func TestMarkAsReadRequiresParticipant(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	svc := newServiceForTest(convRepo, msgRepo, new(mocks.ListingRepositoryMock), new(mocks.BroadcasterMock), nil)

	convRepo.On("GetConversation", mock.Anything, 5).Return(models.Conversation{ID: 5, User1ID: 1, User2ID: 2}, nil).Once()

	err := svc.MarkAsRead(context.Background(), 5, 3)

	require.ErrorIs(t, err, chat.ErrNotParticipant)
	msgRepo.AssertNotCalled(t, "MarkConversationRead")
}

func TestMarkAsReadDelegatesToStore(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	svc := newServiceForTest(convRepo, msgRepo, new(mocks.ListingRepositoryMock), new(mocks.BroadcasterMock), nil)

	convRepo.On("GetConversation", mock.Anything, 5).Return(models.Conversation{ID: 5, User1ID: 1, User2ID: 2}, nil).Once()
	msgRepo.On("MarkConversationRead", mock.Anything, 5, 2).Return(nil).Once()

	require.NoError(t, svc.MarkAsRead(context.Background(), 5, 2))
	msgRepo.AssertExpectations(t)
}

func TestListConversationsAttachesListingSnapshots(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	listingRepo := new(mocks.ListingRepositoryMock)
	svc := newServiceForTest(convRepo, new(mocks.MessageRepositoryMock), listingRepo, new(mocks.BroadcasterMock), nil)

	listingID := 77
	convRepo.On("ListConversationsForUser", mock.Anything, 1).Return([]models.ConversationSummary{
		{ConversationID: 5, PartnerID: 2, ListingID: &listingID},
		{ConversationID: 6, PartnerID: 3},
	}, nil).Once()
	listingRepo.On("GetListingSnapshot", mock.Anything, 77).Return(models.ListingSnapshot{ID: 77, Title: "Two-bed flat"}, nil).Once()

	summaries, err := svc.ListConversations(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.NotNil(t, summaries[0].Listing)
	assert.Equal(t, "Two-bed flat", summaries[0].Listing.Title)
	assert.Nil(t, summaries[1].Listing)
}

func TestListConversationsOmitsCorruptListing(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	listingRepo := new(mocks.ListingRepositoryMock)
	svc := newServiceForTest(convRepo, new(mocks.MessageRepositoryMock), listingRepo, new(mocks.BroadcasterMock), nil)

	listingID := 78
	convRepo.On("ListConversationsForUser", mock.Anything, 1).Return([]models.ConversationSummary{
		{ConversationID: 5, PartnerID: 2, ListingID: &listingID},
	}, nil).Once()
	listingRepo.On("GetListingSnapshot", mock.Anything, 78).Return(models.ListingSnapshot{}, repositories.ErrBadImageList).Once()

	summaries, err := svc.ListConversations(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Nil(t, summaries[0].Listing)
}

func TestListMessagesRequiresParticipant(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	svc := newServiceForTest(convRepo, msgRepo, new(mocks.ListingRepositoryMock), new(mocks.BroadcasterMock), nil)

	convRepo.On("IsParticipant", mock.Anything, 5, 9).Return(false, nil).Once()

	_, err := svc.ListMessages(context.Background(), 5, 9)

	require.ErrorIs(t, err, chat.ErrNotParticipant)
	msgRepo.AssertNotCalled(t, "ListMessages")
}
