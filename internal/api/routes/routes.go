// Package routes defines the HTTP routes for the chat service.
package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/chatforge/chat-service/internal/api/handlers"
	"github.com/chatforge/chat-service/internal/api/middleware"
)

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler        *handlers.HealthHandler
	MessagesHandler      *handlers.MessagesHandler
	ConversationsHandler *handlers.ConversationsHandler
	AuthMiddleware       *middleware.AuthMiddleware
	RateLimitMiddleware  *middleware.RateLimitMiddleware
	CORSConfig           middleware.CORSConfig
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	r.Use(middleware.NewCORSMiddleware(cfg.CORSConfig))
	r.NoRoute(middleware.NotFound())

	// Health routes sit outside auth and rate limiting.
	health := r.Group("/health")
	{
		health.GET("", cfg.HealthHandler.Health)
		health.GET("/ready", cfg.HealthHandler.Ready)
		health.GET("/live", cfg.HealthHandler.Live)
	}

	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	v1.Use(cfg.AuthMiddleware.Authenticate())
	if cfg.RateLimitMiddleware != nil {
		v1.Use(cfg.RateLimitMiddleware.Limit())
	}

	conversations := v1.Group("/conversations")
	{
		conversations.POST("", cfg.ConversationsHandler.CreateConversation)
		conversations.GET("/:conversationId", cfg.ConversationsHandler.GetConversation)
		conversations.DELETE("/:conversationId", cfg.ConversationsHandler.DeleteConversation)

		conversations.GET("/:conversationId/messages", cfg.MessagesHandler.ListMessages)
		conversations.POST("/:conversationId/messages", cfg.MessagesHandler.SendMessage)
		conversations.POST("/:conversationId/messages/stream", cfg.MessagesHandler.StreamMessage)
	}
}

// SetupWithMiddleware sets up routes with the common middleware stack.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware) {
	r.Use(loggingMw.Logger())
	r.Use(errorMw.Recovery())
	r.Use(gin.Recovery())

	Setup(r, cfg)
}
