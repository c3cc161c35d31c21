package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"estate-chat-service/internal/models"
)

// broadcastChannel carries fan-out envelopes between service instances.
const broadcastChannel = "chat:broadcast"

// BridgeEnvelope is the wire form of one fan-out on the pub/sub channel.
type BridgeEnvelope struct {
	Scope    string                   `json:"scope"` // "room" or "user"
	TargetID int                      `json:"target_id"`
	Event    models.ConversationEvent `json:"event"`
}

// Bridge routes fan-out through Redis pub/sub so every instance delivers to
// its local rooms. It satisfies the same broadcaster contract as the hub; the
// instance's own delivery happens through its subscription.
type Bridge struct {
	rdb *redis.Client
	hub *Hub
}

// NewBridge wires a bridge over the given Redis client and local hub.
func NewBridge(rdb *redis.Client, hub *Hub) *Bridge {
	return &Bridge{rdb: rdb, hub: hub}
}

// Run subscribes to the broadcast channel and delivers envelopes to the local
// hub until the context is canceled.
func (b *Bridge) Run(ctx context.Context) {
	pubsub := b.rdb.Subscribe(ctx, broadcastChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var envelope BridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				log.Printf("bridge: bad envelope: %v", err)
				continue
			}
			switch envelope.Scope {
			case "room":
				b.hub.BroadcastToRoom(envelope.TargetID, envelope.Event)
			case "user":
				b.hub.NotifyUser(envelope.TargetID, envelope.Event)
			default:
				log.Printf("bridge: unknown scope %q", envelope.Scope)
			}
		}
	}
}

// BroadcastToRoom publishes a room fan-out. On publish failure delivery
// degrades to the local hub so this instance's sessions still hear it.
func (b *Bridge) BroadcastToRoom(conversationID int, event models.ConversationEvent) {
	b.publish(BridgeEnvelope{Scope: "room", TargetID: conversationID, Event: event}, func() {
		b.hub.BroadcastToRoom(conversationID, event)
	})
}

// NotifyUser publishes a user-scoped fan-out.
func (b *Bridge) NotifyUser(userID int, event models.ConversationEvent) {
	b.publish(BridgeEnvelope{Scope: "user", TargetID: userID, Event: event}, func() {
		b.hub.NotifyUser(userID, event)
	})
}

// HasUserSessions reports local presence only; with several instances the
// offline check is an approximation per instance.
func (b *Bridge) HasUserSessions(userID int) bool {
	return b.hub.HasUserSessions(userID)
}

func (b *Bridge) publish(envelope BridgeEnvelope, fallback func()) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("bridge: marshal envelope: %v", err)
		fallback()
		return
	}
	if err := b.rdb.Publish(context.Background(), broadcastChannel, payload).Err(); err != nil {
		log.Printf("bridge: publish failed, delivering locally: %v", err)
		fallback()
	}
}
