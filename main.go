package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"estate-chat-service/internal/auth"
	"estate-chat-service/internal/chat"
	"estate-chat-service/internal/db"
	"estate-chat-service/internal/handlers"
	"estate-chat-service/internal/middleware"
	"estate-chat-service/internal/notify"
	"estate-chat-service/internal/observability"
	"estate-chat-service/internal/rabbitmq"
	"estate-chat-service/internal/repositories"
	"estate-chat-service/internal/telemetry"
	"estate-chat-service/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, "estate-chat-service", os.Getenv("OTLP_ENDPOINT"))
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	verifier := auth.NewJWTVerifier(getEnv("JWT_SECRET", "dev-secret"))

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	listingRepo := repositories.NewListingRepo(database)

	hub := ws.NewHub()

	// Audit/event publishing degrades to noop when AMQP is not configured.
	publisher := rabbitmq.NewPublisher(os.Getenv("AMQP_URL"), getEnv("AMQP_EXCHANGE", "marketplace.events"))
	defer publisher.Close()
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "estate-chat-service", getEnv("ENVIRONMENT", "dev"))

	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		if eventPublisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("AMQP_EXCHANGE", "marketplace.events")); err != nil {
			log.Printf("ws event publishing disabled: %v", err)
		} else {
			observability.SetPublisher(eventPublisher)
			defer eventPublisher.Close()
		}
	}

	var notifier chat.Notifier
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr != "" {
		n := notify.NewNotifier(redisAddr)
		defer n.Close()
		notifier = n

		worker, mux := notify.NewWorker(redisAddr)
		notify.RegisterOfflineMessageHandler(mux, publisher)
		go func() {
			if err := worker.Run(mux); err != nil {
				log.Printf("notify worker stopped: %v", err)
			}
		}()
	}

	// With Redis available, fan-out crosses instances through pub/sub;
	// otherwise the local hub delivers directly.
	var broadcaster chat.Broadcaster = hub
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		bridge := ws.NewBridge(rdb, hub)
		go bridge.Run(ctx)
		broadcaster = bridge
	}

	service := chat.NewService(conversationRepo, messageRepo, listingRepo, broadcaster, notifier)

	conversationHandler := handlers.NewConversationHandler(service, audit)
	sessionWS := ws.NewSessionHandler(hub, service, verifier)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("estate-chat-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.POST("/conversations/start", authMiddleware, conversationHandler.StartConversation)
	router.GET("/conversations/unread", authMiddleware, conversationHandler.TotalUnread)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, conversationHandler.GetMessages)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, conversationHandler.PostMessage)
	router.POST("/conversations/:conversation_id/read", authMiddleware, conversationHandler.MarkRead)
	router.GET("/conversations/:conversation_id/unread", authMiddleware, conversationHandler.UnreadCount)

	router.GET("/ws", sessionWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, os.Getenv("DEBUG_ROUTES") == "true")

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
