// Package notify enqueues background notification tasks for recipients who
// have no live session, backed by asynq over Redis.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/hibiken/asynq"

	"estate-chat-service/internal/models"
	"estate-chat-service/internal/observability"
	"estate-chat-service/internal/rabbitmq"
)

// TaskTypeOfflineMessage is the queue task name for an unseen chat message.
const TaskTypeOfflineMessage = "chat:notify_offline"

const queueName = "chat"

const previewLimit = 120

// truncatePreview caps the preview at previewLimit bytes without splitting a
// multi-byte rune.
func truncatePreview(body string) string {
	if len(body) <= previewLimit {
		return body
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

// OfflineMessagePayload is the JSON payload transported via the queue.
type OfflineMessagePayload struct {
	ConversationID int    `json:"conversation_id"`
	MessageID      int    `json:"message_id"`
	SenderID       int    `json:"sender_id"`
	RecipientID    int    `json:"recipient_id"`
	Preview        string `json:"preview"`
}

// Notifier enqueues offline-message tasks.
type Notifier struct {
	client *asynq.Client
}

// NewNotifier constructs a Notifier over the given Redis address.
func NewNotifier(redisAddr string) *Notifier {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	return &Notifier{client: client}
}

// NotifyOffline enqueues one notification task for an unseen message. Tasks
// are unique per message so a redelivered send cannot double-notify.
func (n *Notifier) NotifyOffline(ctx context.Context, msg models.Message, recipientID int) error {
	payload, err := json.Marshal(OfflineMessagePayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		RecipientID:    recipientID,
		Preview:        truncatePreview(msg.Body),
	})
	if err != nil {
		return fmt.Errorf("marshal offline payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeOfflineMessage, payload)
	_, err = n.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.MaxRetry(3),
		asynq.Unique(time.Hour),
	)
	if err != nil {
		return fmt.Errorf("enqueue offline notification: %w", err)
	}
	observability.IncOfflineNotification()
	return nil
}

// Close releases the queue client.
func (n *Notifier) Close() error {
	return n.client.Close()
}

// RegisterOfflineMessageHandler binds the worker-side handler: it forwards
// the notification to the marketplace's notification pipeline over AMQP.
func RegisterOfflineMessageHandler(mux *asynq.ServeMux, publisher rabbitmq.Publisher) {
	mux.HandleFunc(TaskTypeOfflineMessage, func(ctx context.Context, t *asynq.Task) error {
		var p OfflineMessagePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			// Malformed payload will never parse; do not retry.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return publisher.Publish(ctx, "notifications.chat_message", p)
	})
}

// NewWorker builds the asynq server consuming the chat queue.
func NewWorker(redisAddr string) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 5,
			Queues:      map[string]int{queueName: 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("notify worker error type=%s: %v", task.Type(), err)
			}),
		},
	)
	return srv, asynq.NewServeMux()
}
