package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"estate-chat-service/internal/chat"
	"estate-chat-service/internal/models"
	"estate-chat-service/internal/repositories"
	"estate-chat-service/internal/telemetry"
)

// ChatService is the slice of the conversation router the REST surface uses.
type ChatService interface {
	StartConversation(ctx context.Context, initiatorID int, recipientID int, listingID *int) (models.Conversation, error)
	SendMessage(ctx context.Context, conversationID int, senderID int, body string) (models.Message, error)
	MarkAsRead(ctx context.Context, conversationID int, userID int) error
	ListConversations(ctx context.Context, userID int) ([]models.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID int, userID int) ([]models.Message, error)
	UnreadCount(ctx context.Context, conversationID int, userID int) (int, error)
	TotalUnread(ctx context.Context, userID int) (int, error)
}

// ConversationHandler manages the conversation REST endpoints.
type ConversationHandler struct {
	service ChatService
	audit   *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(service ChatService, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{service: service, audit: audit}
}

// ListConversations returns the conversations visible to the authenticated
// user, most recently active first, with listing snapshots attached.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt("userID")

	summaries, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	if summaries == nil {
		summaries = []models.ConversationSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// StartConversation creates or returns the conversation for the
// (pair, listing) combination.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		RecipientID int  `json:"recipient_id" binding:"required"`
		ListingID   *int `json:"listing_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	conv, err := h.service.StartConversation(c.Request.Context(), userID, req.RecipientID, req.ListingID)
	if err != nil {
		h.writeError(c, err, "could not start conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID})
}

// GetMessages returns a conversation's history in append order.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	msgs, err := h.service.ListMessages(c.Request.Context(), conversationID, userID)
	if err != nil {
		h.writeError(c, err, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message and fans it out to the conversation's room.
// It is the request/response twin of the websocket send-message event.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.service.SendMessage(c.Request.Context(), conversationID, userID, req.Body)
	if err != nil {
		h.writeError(c, err, "failed to store message")
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// MarkRead flips the read flag on the other participant's messages and zeroes
// the caller's unread counter.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if err := h.service.MarkAsRead(c.Request.Context(), conversationID, userID); err != nil {
		h.writeError(c, err, "could not mark conversation read")
		return
	}

	c.Status(http.StatusNoContent)
}

// UnreadCount returns the caller's unread counter for one conversation.
func (h *ConversationHandler) UnreadCount(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	count, err := h.service.UnreadCount(c.Request.Context(), conversationID, userID)
	if err != nil {
		h.writeError(c, err, "could not load unread count")
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "unread": count})
}

// TotalUnread returns the caller's unread total across all conversations.
func (h *ConversationHandler) TotalUnread(c *gin.Context) {
	userID := c.GetInt("userID")

	total, err := h.service.TotalUnread(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load unread count"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": total})
}

// writeError maps service errors to HTTP status codes: validation 400,
// authorization 403, unknown conversation 404, anything else 500.
func (h *ConversationHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, chat.ErrSelfConversation), errors.Is(err, chat.ErrEmptyBody):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
	case errors.Is(err, repositories.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	default:
		if h.audit != nil {
			h.audit.Emit(c.Request.Context(), "ERROR", fallback+": "+err.Error(), requestIDFromContext(c), userIDFromContext(c))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func conversationIDParam(c *gin.Context) (int, bool) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, false
	}
	return conversationID, true
}
