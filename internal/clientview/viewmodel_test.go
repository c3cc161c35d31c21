package clientview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estate-chat-service/internal/models"
)

func serverMessage(id, conversationID, senderID int, body string) models.Message {
	return models.Message{ID: id, ConversationID: conversationID, SenderID: senderID, Body: body, CreatedAt: time.Now()}
}

func TestOutboundTransitions(t *testing.T) {
	m := &OutboundMessage{State: StateComposed}

	require.NoError(t, m.MarkSent(time.Now()))
	assert.Equal(t, StateSentOptimistic, m.State)

	require.NoError(t, m.Confirm(12))
	assert.Equal(t, StateConfirmed, m.State)
	assert.Equal(t, 12, m.ServerID)

	// Confirmed is terminal.
	assert.ErrorIs(t, m.Fail("late failure"), ErrBadTransition)
	assert.ErrorIs(t, m.Confirm(13), ErrBadTransition)
	assert.ErrorIs(t, m.MarkSent(time.Now()), ErrBadTransition)
}

func TestOutboundFailIsTerminal(t *testing.T) {
	m := &OutboundMessage{State: StateComposed}
	require.NoError(t, m.MarkSent(time.Now()))
	require.NoError(t, m.Fail("not_participant"))

	assert.Equal(t, StateSendFailed, m.State)
	assert.Equal(t, "not_participant", m.FailReason)
	assert.ErrorIs(t, m.Confirm(1), ErrBadTransition)
}

func TestSendShowsPendingEntryImmediately(t *testing.T) {
	view := NewConversationView(5, 1)

	localID := view.Send("hello")

	entries := view.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Pending())
	assert.Equal(t, "hello", entries[0].Body())
	assert.NotEmpty(t, localID)
}

func TestOwnEchoConfirmsProvisionalWithoutDuplicate(t *testing.T) {
	view := NewConversationView(5, 1)
	view.Send("hello")

	view.ApplyServerMessage(serverMessage(30, 5, 1, "hello"))

	entries := view.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Pending())
	assert.Equal(t, 30, entries[0].ID())
	assert.Equal(t, StateConfirmed, entries[0].Provisional.State)
}

func TestEchoConfirmsOldestPendingFirst(t *testing.T) {
	view := NewConversationView(5, 1)
	view.Send("first")
	view.Send("second")

	view.ApplyServerMessage(serverMessage(30, 5, 1, "first"))
	view.ApplyServerMessage(serverMessage(31, 5, 1, "second"))

	entries := view.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 30, entries[0].ID())
	assert.Equal(t, 31, entries[1].ID())
	assert.False(t, entries[0].Pending())
	assert.False(t, entries[1].Pending())
}

func TestStaleProvisionalIsNotConfirmed(t *testing.T) {
	view := NewConversationView(5, 1)
	view.now = func() time.Time { return time.Now().Add(-time.Minute) }
	view.Send("old draft")
	view.now = time.Now

	view.ApplyServerMessage(serverMessage(30, 5, 1, "old draft"))

	// The stale provisional stays pending and the echo lands as its own row.
	entries := view.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Pending())
	assert.Equal(t, 30, entries[1].ID())
}

func TestDuplicateServerEventIsDropped(t *testing.T) {
	view := NewConversationView(5, 1)

	view.ApplyServerMessage(serverMessage(30, 5, 2, "hi"))
	view.ApplyServerMessage(serverMessage(30, 5, 2, "hi"))

	assert.Len(t, view.Entries(), 1)
}

func TestEventForOtherConversationIgnored(t *testing.T) {
	view := NewConversationView(5, 1)

	view.ApplyServerMessage(serverMessage(30, 6, 2, "wrong room"))

	assert.Empty(t, view.Entries())
}

func TestPartnerMessageAppends(t *testing.T) {
	view := NewConversationView(5, 1)

	view.ApplyServerMessage(serverMessage(30, 5, 2, "hi from partner"))

	entries := view.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Pending())
	assert.Equal(t, "hi from partner", entries[0].Body())
}

func TestFailSendMarksEntryFailed(t *testing.T) {
	view := NewConversationView(5, 1)
	localID := view.Send("doomed")

	require.True(t, view.FailSend(localID, "empty_body"))

	entries := view.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Failed())
	assert.False(t, entries[0].Pending())
}

func TestFailSendUnknownLocalID(t *testing.T) {
	view := NewConversationView(5, 1)
	view.Send("fine")

	assert.False(t, view.FailSend("no-such-id", "oops"))
}

func TestLoadHistoryDeduplicates(t *testing.T) {
	view := NewConversationView(5, 1)
	history := []models.Message{
		serverMessage(1, 5, 1, "a"),
		serverMessage(2, 5, 2, "b"),
		serverMessage(2, 5, 2, "b"),
	}

	view.LoadHistory(history)

	entries := view.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].ID())
	assert.Equal(t, 2, entries[1].ID())
}
