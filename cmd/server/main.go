// Package main is the entry point for the ChatForge chat service.
// @title ChatForge Chat Service API
// @version 1.0
// @description Conversation orchestration service dispatching messages to AI model providers

// @contact.name API Support
// @contact.url https://github.com/chatforge/chat-service

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token authentication (JWT)
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/chatforge/chat-service/docs"
	"github.com/chatforge/chat-service/internal/api/handlers"
	"github.com/chatforge/chat-service/internal/api/middleware"
	"github.com/chatforge/chat-service/internal/api/routes"
	"github.com/chatforge/chat-service/internal/config"
	"github.com/chatforge/chat-service/internal/core/cache"
	"github.com/chatforge/chat-service/internal/core/docdb"
	rediscache "github.com/chatforge/chat-service/internal/infrastructure/cache/redis"
	"github.com/chatforge/chat-service/internal/infrastructure/docdb/mongodb"
	"github.com/chatforge/chat-service/internal/pkg/encryption"
	"github.com/chatforge/chat-service/internal/services/history"
	"github.com/chatforge/chat-service/internal/services/lock"
	"github.com/chatforge/chat-service/internal/services/modelconfig"
	"github.com/chatforge/chat-service/internal/services/orchestrator"
	"github.com/chatforge/chat-service/internal/services/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogging(cfg.Log)

	ctx := context.Background()

	cacheClient, err := createCacheClient(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache client")
	}
	defer cacheClient.Close()

	docDBClient, err := createDocDBClient(ctx, cfg.DocDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize document db client")
	}
	defer docDBClient.Close(ctx)

	if err := docDBClient.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	}

	encryptor, err := createEncryptor(cfg.Auth)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}

	gin.SetMode(cfg.Server.GinMode)
	router := setupRouter(cfg, cacheClient, docDBClient, encryptor)

	srv := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: router,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

// setupLogging configures the global zerolog logger.
func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// createCacheClient creates a cache client based on the configuration.
func createCacheClient(cfg config.CacheConfig) (cache.Client, error) {
	switch cache.Type(cfg.Type) {
	case cache.TypeRedis:
		return rediscache.NewClient(rediscache.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	default:
		log.Fatal().Str("type", cfg.Type).Msg("unsupported cache type")
		return nil, nil
	}
}

// createDocDBClient creates a document database client based on the configuration.
func createDocDBClient(ctx context.Context, cfg config.DocDBConfig) (docdb.Client, error) {
	switch docdb.Type(cfg.Type) {
	case docdb.TypeMongoDB:
		return mongodb.NewClient(ctx, &mongodb.ClientConfig{
			URI:          cfg.URI,
			DatabaseName: cfg.Database,
		})
	default:
		log.Fatal().Str("type", cfg.Type).Msg("unsupported docdb type")
		return nil, nil
	}
}

// createEncryptor creates the credential encryptor.
func createEncryptor(cfg config.AuthConfig) (encryption.Encryptor, error) {
	if cfg.EncryptionKey == "" {
		log.Warn().Msg("SECRETS_ENCRYPTION_KEY not set, using NoOp encryptor")
		return encryption.NewNoOpEncryptor(), nil
	}
	return encryption.NewAESEncryptor(cfg.EncryptionKey)
}

// setupRouter wires services, handlers, and middleware into a Gin engine.
func setupRouter(cfg *config.Config, cacheClient cache.Client, docDBClient docdb.Client, encryptor encryption.Encryptor) *gin.Engine {
	router := gin.New()

	store := cacheClient.GetCache()

	locks := lock.NewManager(store, lock.Options{
		TTL:        cfg.Lock.TTL,
		RetryTimes: cfg.Lock.RetryTimes,
		RetryDelay: cfg.Lock.RetryDelay,
	})
	resolver := modelconfig.NewResolver(docDBClient.Credentials(), docDBClient.Applications(), store, encryptor)
	historyService := history.NewService(store, cfg.History.MaxTurns, cfg.History.TTL)
	orch := orchestrator.NewService(locks, resolver, historyService, docDBClient.Messages(), docDBClient.Conversations())

	loggingMw := middleware.NewLoggingMiddleware()
	errorMw := middleware.NewErrorMiddleware()
	authMw := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)

	var rateLimitMw *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(store, cfg.RateLimit.DefaultLimit)
		rateLimitMw = middleware.NewRateLimitMiddleware(limiter)
	}

	routesCfg := &routes.Config{
		HealthHandler:        handlers.NewHealthHandler(cacheClient, docDBClient),
		MessagesHandler:      handlers.NewMessagesHandler(orch),
		ConversationsHandler: handlers.NewConversationsHandler(orch),
		AuthMiddleware:       authMw,
		RateLimitMiddleware:  rateLimitMw,
		CORSConfig:           middleware.NewCORSConfig(cfg.Server.CORSOrigins),
	}

	routes.SetupWithMiddleware(router, routesCfg, loggingMw, errorMw)

	return router
}
