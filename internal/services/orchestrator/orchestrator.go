// Package orchestrator coordinates message dispatch: locking, config
// resolution, history assembly, provider calls, and persistence.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/chat-service/internal/core/docdb"
	domainerrors "github.com/chatforge/chat-service/internal/domain/errors"
	"github.com/chatforge/chat-service/internal/domain/models"
	"github.com/chatforge/chat-service/internal/services/history"
	"github.com/chatforge/chat-service/internal/services/lock"
	"github.com/chatforge/chat-service/internal/services/modelconfig"
	"github.com/chatforge/chat-service/internal/services/providers"
)

// Service runs the dispatch flow for conversation messages.
type Service struct {
	locks         *lock.Manager
	resolver      *modelconfig.Resolver
	history       *history.Service
	messages      docdb.MessagesCollection
	conversations docdb.ConversationsCollection

	// newProvider is swapped in tests to avoid real network clients.
	newProvider func(name string, creds providers.Credentials) (providers.Provider, error)
}

// NewService creates a message orchestrator.
func NewService(locks *lock.Manager, resolver *modelconfig.Resolver, hist *history.Service, messages docdb.MessagesCollection, conversations docdb.ConversationsCollection) *Service {
	return &Service{
		locks:         locks,
		resolver:      resolver,
		history:       hist,
		messages:      messages,
		conversations: conversations,
		newProvider:   providers.New,
	}
}

// SendRequest is one inbound user message.
type SendRequest struct {
	ConversationID string
	UserID         string
	Content        string
	Override       *modelconfig.Override
	ApplicationID  string
}

// SendResult carries both persisted messages of a completed exchange.
type SendResult struct {
	UserMessage      *models.Message
	AssistantMessage *models.Message
}

// StreamEvent is one server-sent event of a streamed exchange. The terminal
// event has Done set and carries the persisted assistant message metadata,
// or Err when the exchange failed.
type StreamEvent struct {
	Content       string
	Done          bool
	MessageID     string
	ModelProvider string
	ModelName     string
	Usage         *providers.Usage
	Err           error
}

// dispatchState is everything prepared under the lock before the provider
// call: the resolved config, the persisted user message, and the prompt.
type dispatchState struct {
	guard       *lock.Lock
	config      *modelconfig.EffectiveConfig
	provider    providers.Provider
	userMessage *models.Message
	prompt      []models.Turn
}

// Send dispatches a message and blocks until the assistant reply is
// persisted.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	state, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.release(state.guard)

	response, err := state.provider.ChatCompletion(ctx, &providers.ChatRequest{
		Model:    state.config.Model,
		Messages: state.prompt,
		Params:   state.config.Params,
	})
	if err != nil {
		return nil, classifyProviderError(state.config.Provider, err)
	}

	assistant, err := s.persistAssistant(ctx, req, state, response.Content, response.Model, &response.Usage)
	if err != nil {
		return nil, err
	}

	return &SendResult{
		UserMessage:      state.userMessage,
		AssistantMessage: assistant,
	}, nil
}

// SendStream dispatches a message and streams the reply. Once the stream is
// open the exchange runs to completion in the background, so a client
// disconnect cannot lose an already-generating reply.
func (s *Service) SendStream(ctx context.Context, req *SendRequest) (<-chan *StreamEvent, error) {
	state, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan *StreamEvent, 64)

	bgCtx := context.WithoutCancel(ctx)
	go s.runStream(bgCtx, ctx, req, state, events)

	return events, nil
}

func (s *Service) runStream(bgCtx, clientCtx context.Context, req *SendRequest, state *dispatchState, events chan<- *StreamEvent) {
	defer close(events)
	defer s.release(state.guard)

	chunks, err := state.provider.ChatCompletionStream(bgCtx, &providers.ChatRequest{
		Model:    state.config.Model,
		Messages: state.prompt,
		Params:   state.config.Params,
	})
	if err != nil {
		s.emit(clientCtx, events, &StreamEvent{Err: classifyProviderError(state.config.Provider, err)})
		return
	}

	var (
		content string
		model   string
		usage   *providers.Usage
	)

	for chunk := range chunks {
		if chunk.Err != nil {
			// Partial output is discarded; the client retries the
			// whole exchange.
			s.emit(clientCtx, events, &StreamEvent{Err: classifyProviderError(state.config.Provider, chunk.Err)})
			return
		}
		if chunk.Done {
			model = chunk.Model
			usage = chunk.Usage
			break
		}

		content += chunk.Content
		s.emit(clientCtx, events, &StreamEvent{Content: chunk.Content})
	}

	assistant, err := s.persistAssistant(bgCtx, req, state, content, model, usage)
	if err != nil {
		s.emit(clientCtx, events, &StreamEvent{Err: err})
		return
	}

	s.emit(clientCtx, events, &StreamEvent{
		Done:          true,
		MessageID:     assistant.ID,
		ModelProvider: assistant.ModelProvider,
		ModelName:     assistant.ModelName,
		Usage:         usage,
	})
}

// emit delivers an event unless the client is gone. Persistence has its own
// context; dropped events only affect what the client sees.
func (s *Service) emit(clientCtx context.Context, events chan<- *StreamEvent, event *StreamEvent) {
	select {
	case events <- event:
	case <-clientCtx.Done():
	}
}

// prepare runs the under-lock phase shared by Send and SendStream: acquire
// the conversation lock, check ownership, resolve config, persist the user
// message, and assemble the prompt. On error the lock is already released.
func (s *Service) prepare(ctx context.Context, req *SendRequest) (*dispatchState, error) {
	guard, err := s.locks.AcquireConversation(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, domainerrors.NewResourceBusyError("conversation")
		}
		return nil, domainerrors.NewStoreUnavailableError(err)
	}

	state, err := s.prepareLocked(ctx, req, guard)
	if err != nil {
		s.release(guard)
		return nil, err
	}
	return state, nil
}

func (s *Service) prepareLocked(ctx context.Context, req *SendRequest, guard *lock.Lock) (*dispatchState, error) {
	conversation, err := s.conversations.GetByOwner(ctx, req.ConversationID, req.UserID)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to load conversation", err)
	}
	if conversation == nil {
		return nil, domainerrors.NewNotFoundError("conversation", req.ConversationID)
	}

	cfg, err := s.resolver.Resolve(ctx, req.UserID, req.Override, req.ApplicationID)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to resolve model configuration", err)
	}
	if cfg == nil {
		return nil, domainerrors.NewConfigurationMissingError("set a default credential, pass an application, or name a model you have a credential for")
	}

	provider, err := s.newProvider(cfg.Provider, providers.Credentials{
		APIKey:  cfg.APIKey,
		APIBase: cfg.APIBase,
	})
	if err != nil {
		return nil, domainerrors.NewConfigurationMissingError(err.Error())
	}

	userMessage := models.NewMessage(req.ConversationID, req.UserID, models.RoleUser, req.Content)
	userMessage.ID = uuid.New().String()
	if err := s.messages.Add(ctx, userMessage); err != nil {
		return nil, domainerrors.NewInternalError("failed to persist message", err)
	}

	prompt, err := s.buildPrompt(ctx, req.ConversationID, cfg, userMessage)
	if err != nil {
		return nil, err
	}

	return &dispatchState{
		guard:       guard,
		config:      cfg,
		provider:    provider,
		userMessage: userMessage,
		prompt:      prompt,
	}, nil
}

// buildPrompt assembles the provider prompt from cached history, falling
// back to the message store on a miss. The persisted user turn is written
// through to the cache before the provider call so the cache mirrors the
// store even when the exchange later fails.
func (s *Service) buildPrompt(ctx context.Context, conversationID string, cfg *modelconfig.EffectiveConfig, userMessage *models.Message) ([]models.Turn, error) {
	appendErr := s.history.Append(ctx, conversationID, userMessage.Turn())
	if appendErr != nil {
		log.Warn().Err(appendErr).Str("conversation", conversationID).Msg("Failed to append user turn to history cache")
	}

	turns, hit, err := s.history.GetRecent(ctx, conversationID)
	if err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("History cache unavailable, rebuilding from store")
		hit = false
	}

	// A failed append with a later successful read would replay history
	// missing the user turn; force the store rebuild instead.
	if !hit || appendErr != nil {
		// The user message is already persisted, so the rebuild
		// includes it.
		recent, err := s.messages.ListRecent(ctx, conversationID, int64(s.history.MaxTurns()))
		if err != nil {
			return nil, domainerrors.NewInternalError("failed to load history", err)
		}
		turns = make([]models.Turn, len(recent))
		for i, m := range recent {
			turns[i] = m.Turn()
		}
		if err := s.history.SetRecent(ctx, conversationID, turns); err != nil {
			log.Warn().Err(err).Str("conversation", conversationID).Msg("Failed to warm history cache")
		}
	}

	if max := s.history.MaxTurns(); len(turns) > max {
		turns = turns[len(turns)-max:]
	}

	prompt := turns
	if cfg.SystemPrompt != "" {
		prompt = append([]models.Turn{{Role: models.RoleSystem, Content: cfg.SystemPrompt}}, turns...)
	}
	return prompt, nil
}

// persistAssistant stores the reply, refreshes conversation stats, and
// updates the history and model caches.
func (s *Service) persistAssistant(ctx context.Context, req *SendRequest, state *dispatchState, content, model string, usage *providers.Usage) (*models.Message, error) {
	if model == "" {
		model = state.config.Model
	}

	assistant := models.NewMessage(req.ConversationID, req.UserID, models.RoleAssistant, content)
	assistant.ID = uuid.New().String()
	assistant.ModelProvider = state.config.Provider
	assistant.ModelName = model
	if usage != nil {
		assistant.PromptTokens = usage.PromptTokens
		assistant.CompletionTokens = usage.CompletionTokens
		assistant.TotalTokens = usage.TotalTokens
	}

	if err := s.messages.Add(ctx, assistant); err != nil {
		return nil, domainerrors.NewInternalError("failed to persist assistant message", err)
	}

	s.refreshStats(ctx, req.ConversationID)
	s.updateCaches(ctx, req.ConversationID, assistant)

	return assistant, nil
}

// refreshStats recounts the conversation. Best effort; stats lag rather
// than fail the exchange.
func (s *Service) refreshStats(ctx context.Context, conversationID string) {
	count, err := s.messages.CountByConversation(ctx, conversationID)
	if err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("Failed to count messages")
		return
	}
	if err := s.conversations.UpdateStats(ctx, conversationID, count, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("Failed to update conversation stats")
	}
}

// updateCaches appends the assistant turn; the user turn was already
// written through in buildPrompt.
func (s *Service) updateCaches(ctx context.Context, conversationID string, assistant *models.Message) {
	if err := s.history.Append(ctx, conversationID, assistant.Turn()); err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("Failed to append to history cache")
	}

	info := history.ModelInfo{Provider: assistant.ModelProvider, Model: assistant.ModelName}
	if err := s.history.SetModelInfo(ctx, conversationID, info); err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("Failed to record model info")
	}
}

// release frees the conversation lock with a context immune to client
// cancellation.
func (s *Service) release(guard *lock.Lock) {
	if _, err := guard.Release(context.WithoutCancel(context.Background())); err != nil {
		log.Warn().Err(err).Msg("Failed to release conversation lock")
	}
}

func classifyProviderError(provider string, err error) error {
	if providers.IsTransient(err) {
		return domainerrors.NewProviderUnavailableError(provider, err)
	}
	return domainerrors.NewProviderRejectedError(provider, err)
}

// ListMessages returns a page of messages for a conversation the user owns.
func (s *Service) ListMessages(ctx context.Context, conversationID, userID string, limit, offset int64) ([]*models.Message, int64, error) {
	conversation, err := s.conversations.GetByOwner(ctx, conversationID, userID)
	if err != nil {
		return nil, 0, domainerrors.NewInternalError("failed to load conversation", err)
	}
	if conversation == nil {
		return nil, 0, domainerrors.NewNotFoundError("conversation", conversationID)
	}

	messages, err := s.messages.List(ctx, &docdb.ListMessagesOptions{
		ConversationID: conversationID,
		Limit:          limit,
		Skip:           offset,
		Ascending:      true,
	})
	if err != nil {
		return nil, 0, domainerrors.NewInternalError("failed to list messages", err)
	}

	total, err := s.messages.CountByConversation(ctx, conversationID)
	if err != nil {
		return nil, 0, domainerrors.NewInternalError("failed to count messages", err)
	}

	return messages, total, nil
}

// CreateConversation opens a new conversation for the user.
func (s *Service) CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error) {
	conversation := models.NewConversation(userID, title)
	conversation.ID = uuid.New().String()

	if err := s.conversations.Add(ctx, conversation); err != nil {
		return nil, domainerrors.NewInternalError("failed to create conversation", err)
	}
	return conversation, nil
}

// GetConversation returns a conversation the user owns.
func (s *Service) GetConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conversation, err := s.conversations.GetByOwner(ctx, conversationID, userID)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to load conversation", err)
	}
	if conversation == nil {
		return nil, domainerrors.NewNotFoundError("conversation", conversationID)
	}
	return conversation, nil
}

// DeleteConversation soft-deletes a conversation and drops its cached
// state so a later conversation cannot inherit stale history.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	conversation, err := s.conversations.GetByOwner(ctx, conversationID, userID)
	if err != nil {
		return domainerrors.NewInternalError("failed to load conversation", err)
	}
	if conversation == nil {
		return domainerrors.NewNotFoundError("conversation", conversationID)
	}

	if err := s.conversations.SetStatus(ctx, conversationID, userID, models.ConversationDeleted); err != nil {
		return domainerrors.NewInternalError("failed to delete conversation", err)
	}

	if err := s.history.Invalidate(ctx, conversationID); err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("Failed to invalidate history cache")
	}
	return nil
}
