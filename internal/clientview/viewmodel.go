// Package clientview holds the reducer a chat client runs to keep its visible
// message list consistent: optimistic local echo, reconciliation against the
// authoritative event stream, and dedupe by server message id.
package clientview

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"estate-chat-service/internal/models"
)

// OutboundState is the explicit state machine of one outbound message:
// composed → sent-optimistic → confirmed, or composed → sent-optimistic →
// send-failed. No further transitions exist.
type OutboundState int

const (
	StateComposed OutboundState = iota
	StateSentOptimistic
	StateConfirmed
	StateSendFailed
)

func (s OutboundState) String() string {
	switch s {
	case StateComposed:
		return "composed"
	case StateSentOptimistic:
		return "sent-optimistic"
	case StateConfirmed:
		return "confirmed"
	case StateSendFailed:
		return "send-failed"
	default:
		return "unknown"
	}
}

var ErrBadTransition = errors.New("invalid outbound message transition")

// OutboundMessage is a locally composed message awaiting confirmation. It has
// no server id until confirmed.
type OutboundMessage struct {
	LocalID        string
	ConversationID int
	SenderID       int
	Body           string
	SentAt         time.Time
	State          OutboundState
	ServerID       int
	FailReason     string
}

// MarkSent moves composed → sent-optimistic.
func (m *OutboundMessage) MarkSent(at time.Time) error {
	if m.State != StateComposed {
		return fmt.Errorf("%w: %s → sent-optimistic", ErrBadTransition, m.State)
	}
	m.State = StateSentOptimistic
	m.SentAt = at
	return nil
}

// Confirm moves sent-optimistic → confirmed and records the server id.
func (m *OutboundMessage) Confirm(serverID int) error {
	if m.State != StateSentOptimistic {
		return fmt.Errorf("%w: %s → confirmed", ErrBadTransition, m.State)
	}
	m.State = StateConfirmed
	m.ServerID = serverID
	return nil
}

// Fail moves sent-optimistic → send-failed. Failed sends are surfaced, never
// auto-retried.
func (m *OutboundMessage) Fail(reason string) error {
	if m.State != StateSentOptimistic {
		return fmt.Errorf("%w: %s → send-failed", ErrBadTransition, m.State)
	}
	m.State = StateSendFailed
	m.FailReason = reason
	return nil
}

// reconcileWindow bounds how old a provisional message may be and still match
// an incoming authoritative echo.
const reconcileWindow = 30 * time.Second

// Entry is one row of the visible message list: either a confirmed
// authoritative message or a provisional outbound one.
type Entry struct {
	Message     *models.Message
	Provisional *OutboundMessage
}

// ID returns the server id when known, zero for provisional entries.
func (e Entry) ID() int {
	if e.Message != nil {
		return e.Message.ID
	}
	if e.Provisional != nil {
		return e.Provisional.ServerID
	}
	return 0
}

// Body returns the display text of the entry.
func (e Entry) Body() string {
	if e.Message != nil {
		return e.Message.Body
	}
	if e.Provisional != nil {
		return e.Provisional.Body
	}
	return ""
}

// Pending reports whether the entry still awaits server confirmation.
func (e Entry) Pending() bool {
	return e.Provisional != nil && e.Provisional.State == StateSentOptimistic
}

// Failed reports whether the entry's send failed.
func (e Entry) Failed() bool {
	return e.Provisional != nil && e.Provisional.State == StateSendFailed
}

// ConversationView reduces server events and local sends into the visible
// message list of one conversation for one viewer.
type ConversationView struct {
	ConversationID int
	ViewerID       int

	entries []Entry
	seen    map[int]bool
	now     func() time.Time
}

// NewConversationView builds an empty view.
func NewConversationView(conversationID int, viewerID int) *ConversationView {
	return &ConversationView{
		ConversationID: conversationID,
		ViewerID:       viewerID,
		seen:           make(map[int]bool),
		now:            time.Now,
	}
}

// LoadHistory seeds the view from persisted history, deduplicating by id.
func (v *ConversationView) LoadHistory(msgs []models.Message) {
	for i := range msgs {
		v.ApplyServerMessage(msgs[i])
	}
}

// Send appends a provisional message immediately so the UI never blocks on
// network latency, and returns its local id.
func (v *ConversationView) Send(body string) string {
	out := &OutboundMessage{
		LocalID:        uuid.NewString(),
		ConversationID: v.ConversationID,
		SenderID:       v.ViewerID,
		Body:           body,
		State:          StateComposed,
	}
	_ = out.MarkSent(v.now())
	v.entries = append(v.entries, Entry{Provisional: out})
	return out.LocalID
}

// ApplyServerMessage merges one authoritative message event. Events for an id
// already present are dropped. An echo of the viewer's own recent send
// confirms the matching provisional entry instead of duplicating it;
// detection is by conversation, sender and recency since the provisional
// entry has no server id yet.
func (v *ConversationView) ApplyServerMessage(msg models.Message) {
	if msg.ConversationID != v.ConversationID || v.seen[msg.ID] {
		return
	}
	v.seen[msg.ID] = true

	if msg.SenderID == v.ViewerID {
		if e := v.matchProvisional(msg); e != nil {
			_ = e.Provisional.Confirm(msg.ID)
			copied := msg
			e.Message = &copied
			return
		}
	}

	copied := msg
	v.entries = append(v.entries, Entry{Message: &copied})
}

// FailSend marks the provisional entry with the given local id as failed.
func (v *ConversationView) FailSend(localID string, reason string) bool {
	for i := range v.entries {
		p := v.entries[i].Provisional
		if p != nil && p.LocalID == localID && p.State == StateSentOptimistic {
			_ = p.Fail(reason)
			return true
		}
	}
	return false
}

// Entries returns the visible list in arrival order.
func (v *ConversationView) Entries() []Entry {
	return v.entries
}

// matchProvisional finds the oldest unconfirmed provisional entry from the
// same sender within the reconciliation window.
func (v *ConversationView) matchProvisional(msg models.Message) *Entry {
	cutoff := v.now().Add(-reconcileWindow)
	for i := range v.entries {
		p := v.entries[i].Provisional
		if p == nil || p.State != StateSentOptimistic {
			continue
		}
		if p.SenderID == msg.SenderID && !p.SentAt.Before(cutoff) {
			return &v.entries[i]
		}
	}
	return nil
}
