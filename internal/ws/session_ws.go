package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"estate-chat-service/internal/auth"
	"estate-chat-service/internal/observability"
)

// SessionHandler upgrades authenticated requests into live sessions.
type SessionHandler struct {
	hub      *Hub
	service  ChatService
	verifier auth.TokenVerifier
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(hub *Hub, service ChatService, verifier auth.TokenVerifier) *SessionHandler {
	return &SessionHandler{hub: hub, service: service, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle validates the bearer token, upgrades the connection, registers the
// session and joins the user's conversation rooms. An invalid token refuses
// the connection; the client must re-authenticate.
func (h *SessionHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("estate-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	userID, err := h.verifier.VerifyToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	session := NewSession(conn, info, h.hub, h.service)
	session.onClose = func(reason string) {
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		publishSessionEvent(info, "ws_disconnect", reason)
	}

	h.hub.Register(session)
	session.Run()
	session.joinConversations(ctx)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	publishSessionEvent(info, "ws_connect", "")
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && (header[:7] == "Bearer " || header[:7] == "bearer ") {
		return header[7:]
	}
	return c.Query("token")
}

func publishSessionEvent(info ConnInfo, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}
