package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"estate-chat-service/internal/models"
	"estate-chat-service/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 16
)

// ChatService is the slice of the conversation router a live session needs.
type ChatService interface {
	StartConversation(ctx context.Context, initiatorID int, recipientID int, listingID *int) (models.Conversation, error)
	SendMessage(ctx context.Context, conversationID int, senderID int, body string) (models.Message, error)
	MarkAsRead(ctx context.Context, conversationID int, userID int) error
	ConversationIDsForUser(ctx context.Context, userID int) ([]int, error)
}

// Session is one authenticated websocket connection. Events for the session
// pass through the buffered send channel; the write pump owns the socket.
type Session struct {
	conn    *websocket.Conn
	info    ConnInfo
	hub     *Hub
	service ChatService

	send      chan models.ConversationEvent
	done      chan struct{}
	closeOnce sync.Once

	// onClose is invoked once after the session leaves the hub, with the
	// close reason if the read loop saw an error.
	onClose func(reason string)
}

// NewSession wraps an upgraded connection.
func NewSession(conn *websocket.Conn, info ConnInfo, hub *Hub, service ChatService) *Session {
	return &Session{
		conn:    conn,
		info:    info,
		hub:     hub,
		service: service,
		send:    make(chan models.ConversationEvent, sendBufferSize),
		done:    make(chan struct{}),
	}
}

// Run starts the read and write pumps.
func (s *Session) Run() {
	go s.writePump()
	go s.readPump()
}

// Close shuts the session down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// enqueue hands an event to the write pump. It reports false when the
// session is closed or its buffer is full.
func (s *Session) enqueue(event models.ConversationEvent) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- event:
		return true
	default:
		return false
	}
}

func (s *Session) sendError(reason string) {
	s.enqueue(models.ConversationEvent{Type: models.EventError, Reason: reason})
}

func (s *Session) readPump() {
	var closeReason string
	defer func() {
		s.hub.Unregister(s)
		s.Close()
		if s.onClose != nil {
			s.onClose(closeReason)
		}
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("websocket read error conn=%s: %v", s.info.ConnID, err)
			}
			return
		}

		var ev models.ClientEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			s.sendError("bad_payload")
			continue
		}
		s.handleEvent(context.Background(), ev)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case event := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(event); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEvent dispatches one client event. A failing event answers this
// session with an error event and never tears the connection down.
func (s *Session) handleEvent(ctx context.Context, ev models.ClientEvent) {
	observability.IncWSEvent(ev.Type)

	switch ev.Type {
	case models.EventJoinConversations:
		s.joinConversations(ctx)

	case models.EventSendMessage:
		conversationID := ev.ConversationID
		if conversationID == 0 {
			// First contact: resolve (or create) the conversation before sending.
			conv, err := s.service.StartConversation(ctx, s.info.UserID, ev.ReceiverID, ev.ListingID)
			if err != nil {
				s.sendError(reasonForError(err))
				return
			}
			conversationID = conv.ID
			s.hub.JoinRoom(conversationID, s)
		}
		if _, err := s.service.SendMessage(ctx, conversationID, s.info.UserID, ev.Body); err != nil {
			s.sendError(reasonForError(err))
		}

	case models.EventMarkAsRead:
		if err := s.service.MarkAsRead(ctx, ev.ConversationID, s.info.UserID); err != nil {
			s.sendError(reasonForError(err))
		}

	default:
		s.sendError("unknown_event")
	}
}

// joinConversations subscribes the session to a room per conversation the
// user participates in. Rejoins are no-ops.
func (s *Session) joinConversations(ctx context.Context) {
	ids, err := s.service.ConversationIDsForUser(ctx, s.info.UserID)
	if err != nil {
		s.sendError("internal_error")
		return
	}
	for _, id := range ids {
		s.hub.JoinRoom(id, s)
	}
}
