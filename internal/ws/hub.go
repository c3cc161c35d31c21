package ws

import (
	"log"
	"sync"

	"estate-chat-service/internal/models"
)

// Hub is the presence registry: it binds live sessions to users and tracks
// which conversation rooms each session has joined.
type Hub struct {
	mu           sync.RWMutex
	rooms        map[int]map[*Session]bool
	userSessions map[int]map[*Session]bool
	sessionRooms map[*Session]map[int]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:        make(map[int]map[*Session]bool),
		userSessions: make(map[int]map[*Session]bool),
		sessionRooms: make(map[*Session]map[int]bool),
	}
}

// Register binds a session to its user. A user may hold several sessions at
// once (multiple tabs); each is tracked independently.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.userSessions[s.info.UserID]; !ok {
		h.userSessions[s.info.UserID] = make(map[*Session]bool)
	}
	h.userSessions[s.info.UserID][s] = true
	h.sessionRooms[s] = make(map[int]bool)
}

// Unregister removes the session from every room it joined and from the user
// index. Unregistering an already-removed session is a no-op.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	roomIDs, ok := h.sessionRooms[s]
	if !ok {
		return
	}
	delete(h.sessionRooms, s)

	for roomID := range roomIDs {
		if members, ok := h.rooms[roomID]; ok {
			delete(members, s)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}

	if sessions, ok := h.userSessions[s.info.UserID]; ok {
		delete(sessions, s)
		if len(sessions) == 0 {
			delete(h.userSessions, s.info.UserID)
		}
	}
}

// JoinRoom subscribes the session to a conversation room. Rejoining an
// already-joined room is a no-op.
func (h *Hub) JoinRoom(conversationID int, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms, ok := h.sessionRooms[s]
	if !ok {
		// Session already unregistered; late joins are dropped.
		return
	}
	if rooms[conversationID] {
		return
	}
	rooms[conversationID] = true

	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*Session]bool)
	}
	h.rooms[conversationID][s] = true
}

// BroadcastToRoom delivers the event once to every session in the room,
// including all of the sender's own sessions.
func (h *Hub) BroadcastToRoom(conversationID int, event models.ConversationEvent) {
	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[conversationID]))
	for s := range h.rooms[conversationID] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	h.deliver(members, event)
}

// NotifyUser delivers the event to every live session of one user.
func (h *Hub) NotifyUser(userID int, event models.ConversationEvent) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.userSessions[userID]))
	for s := range h.userSessions[userID] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	h.deliver(sessions, event)
}

// HasUserSessions reports whether the user has at least one live session.
func (h *Hub) HasUserSessions(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userSessions[userID]) > 0
}

func (h *Hub) deliver(sessions []*Session, event models.ConversationEvent) {
	for _, s := range sessions {
		if !s.enqueue(event) {
			log.Printf("session send buffer full, dropping conn=%s user=%d", s.info.ConnID, s.info.UserID)
			h.Unregister(s)
			s.Close()
		}
	}
}
