package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/chatforge/chat-service/internal/domain/errors"
	"github.com/chatforge/chat-service/internal/domain/models"
	rediscache "github.com/chatforge/chat-service/internal/infrastructure/cache/redis"
	"github.com/chatforge/chat-service/internal/pkg/encryption"
	"github.com/chatforge/chat-service/internal/services/history"
	"github.com/chatforge/chat-service/internal/services/lock"
	"github.com/chatforge/chat-service/internal/services/modelconfig"
	"github.com/chatforge/chat-service/internal/services/providers"
	"github.com/chatforge/chat-service/tests/mocks"
)

// stubProvider returns canned responses without touching the network and
// records the last request for prompt assertions.
type stubProvider struct {
	response *providers.Response
	chunks   []*providers.Chunk
	err      error
	lastReq  *providers.ChatRequest
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.Response, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func (s *stubProvider) ChatCompletionStream(ctx context.Context, req *providers.ChatRequest) (<-chan *providers.Chunk, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *providers.Chunk, len(s.chunks))
	for _, chunk := range s.chunks {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

type fixture struct {
	mr            *miniredis.Miniredis
	locks         *lock.Manager
	service       *Service
	messages      *mocks.MockMessagesCollection
	conversations *mocks.MockConversationsCollection
	credentials   *mocks.MockCredentialsCollection
	applications  *mocks.MockApplicationsCollection
	provider      *stubProvider
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	c, err := rediscache.NewCache(rediscache.Config{
		Host: mr.Host(),
		Port: mr.Port(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		mr.Close()
	})

	f := &fixture{
		mr:            mr,
		messages:      new(mocks.MockMessagesCollection),
		conversations: new(mocks.MockConversationsCollection),
		credentials:   new(mocks.MockCredentialsCollection),
		applications:  new(mocks.MockApplicationsCollection),
		provider: &stubProvider{
			response: &providers.Response{
				Content: "hello from the model",
				Model:   "gpt-4o-2024",
				Usage:   providers.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			},
		},
	}

	f.locks = lock.NewManager(c, lock.Options{
		TTL:        time.Minute,
		RetryTimes: 1,
		RetryDelay: 5 * time.Millisecond,
	})
	resolver := modelconfig.NewResolver(f.credentials, f.applications, c, encryption.NewNoOpEncryptor())
	hist := history.NewService(c, 20, 30*time.Minute)

	f.service = NewService(f.locks, resolver, hist, f.messages, f.conversations)
	f.service.newProvider = func(name string, creds providers.Credentials) (providers.Provider, error) {
		return f.provider, nil
	}

	return f
}

func (f *fixture) expectHappyPath(t *testing.T) {
	t.Helper()

	f.conversations.On("GetByOwner", mock.Anything, "c1", "u1").Return(&models.Conversation{
		ID:     "c1",
		UserID: "u1",
		Status: models.ConversationActive,
	}, nil)

	apiKey, err := encryption.NewNoOpEncryptor().EncryptString("sk-test")
	require.NoError(t, err)
	f.credentials.On("GetDefault", mock.Anything, "u1").Return(&models.ModelCredential{
		ID:        "cred1",
		UserID:    "u1",
		Provider:  "openai",
		ModelName: "gpt-4o",
		APIKey:    apiKey,
		IsDefault: true,
		IsActive:  true,
	}, nil)

	f.messages.On("Add", mock.Anything, mock.AnythingOfType("*models.Message")).Return(nil)
	f.messages.On("ListRecent", mock.Anything, "c1", int64(20)).Return([]*models.Message{}, nil)
	f.messages.On("CountByConversation", mock.Anything, "c1").Return(int64(2), nil)
	f.conversations.On("UpdateStats", mock.Anything, "c1", int64(2), mock.AnythingOfType("time.Time")).Return(nil)
}

func sendReq() *SendRequest {
	return &SendRequest{
		ConversationID: "c1",
		UserID:         "u1",
		Content:        "hi",
	}
}

func TestSend_Success(t *testing.T) {
	f := setupFixture(t)
	f.expectHappyPath(t)

	result, err := f.service.Send(context.Background(), sendReq())
	require.NoError(t, err)

	assert.Equal(t, models.RoleUser, result.UserMessage.Role)
	assert.Equal(t, "hi", result.UserMessage.Content)
	assert.NotEmpty(t, result.UserMessage.ID)

	assert.Equal(t, models.RoleAssistant, result.AssistantMessage.Role)
	assert.Equal(t, "hello from the model", result.AssistantMessage.Content)
	assert.Equal(t, "openai", result.AssistantMessage.ModelProvider)
	assert.Equal(t, "gpt-4o-2024", result.AssistantMessage.ModelName)
	assert.Equal(t, 15, result.AssistantMessage.TotalTokens)

	f.messages.AssertNumberOfCalls(t, "Add", 2)
	f.conversations.AssertCalled(t, "UpdateStats", mock.Anything, "c1", int64(2), mock.AnythingOfType("time.Time"))
}

func TestSend_ReleasesLock(t *testing.T) {
	f := setupFixture(t)
	f.expectHappyPath(t)
	ctx := context.Background()

	_, err := f.service.Send(ctx, sendReq())
	require.NoError(t, err)

	guard, err := f.locks.AcquireConversation(ctx, "c1")
	assert.NoError(t, err)
	require.NotNil(t, guard)
	guard.Release(ctx)
}

func TestSend_ResourceBusy(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	guard, err := f.locks.AcquireConversation(ctx, "c1")
	require.NoError(t, err)
	defer guard.Release(ctx)

	_, err = f.service.Send(ctx, sendReq())
	require.Error(t, err)
	assert.True(t, domainerrors.IsResourceBusy(err))
	f.messages.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

func TestSend_ConversationNotFound(t *testing.T) {
	f := setupFixture(t)

	f.conversations.On("GetByOwner", mock.Anything, "c1", "u1").Return(nil, nil)

	_, err := f.service.Send(context.Background(), sendReq())
	require.Error(t, err)
	assert.True(t, domainerrors.IsNotFound(err))

	// The lock must be free again.
	guard, err := f.locks.AcquireConversation(context.Background(), "c1")
	assert.NoError(t, err)
	guard.Release(context.Background())
}

func TestSend_ConfigurationMissing(t *testing.T) {
	f := setupFixture(t)

	f.conversations.On("GetByOwner", mock.Anything, "c1", "u1").Return(&models.Conversation{
		ID: "c1", UserID: "u1", Status: models.ConversationActive,
	}, nil)
	f.credentials.On("GetDefault", mock.Anything, "u1").Return(nil, nil)

	_, err := f.service.Send(context.Background(), sendReq())
	require.Error(t, err)
	assert.True(t, domainerrors.IsConfigurationMissing(err))
	f.messages.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)

	guard, err := f.locks.AcquireConversation(context.Background(), "c1")
	assert.NoError(t, err)
	guard.Release(context.Background())
}

func TestSend_TransientProviderFailure(t *testing.T) {
	f := setupFixture(t)
	f.expectHappyPath(t)
	f.provider.err = &providers.Error{Provider: "openai", StatusCode: 503, Message: "overloaded", Transient: true}

	_, err := f.service.Send(context.Background(), sendReq())
	require.Error(t, err)

	domainErr, ok := domainerrors.GetDomainError(err)
	require.True(t, ok)
	assert.Equal(t, domainerrors.ErrCodeProviderUnavailable, domainErr.Code)

	// Only the user message was persisted.
	f.messages.AssertNumberOfCalls(t, "Add", 1)
}

func TestSend_PermanentProviderFailure(t *testing.T) {
	f := setupFixture(t)
	f.expectHappyPath(t)
	f.provider.err = &providers.Error{Provider: "openai", StatusCode: 400, Message: "bad request", Transient: false}

	_, err := f.service.Send(context.Background(), sendReq())
	require.Error(t, err)

	domainErr, ok := domainerrors.GetDomainError(err)
	require.True(t, ok)
	assert.Equal(t, domainerrors.ErrCodeProviderRejected, domainErr.Code)
}

func TestSend_WarmsHistoryCache(t *testing.T) {
	f := setupFixture(t)
	f.expectHappyPath(t)
	ctx := context.Background()

	_, err := f.service.Send(ctx, sendReq())
	require.NoError(t, err)

	// A second send reads history from the cache, not the store.
	_, err = f.service.Send(ctx, sendReq())
	require.NoError(t, err)
	f.messages.AssertNumberOfCalls(t, "ListRecent", 1)
}

func TestSendStream_Success(t *testing.T) {
	f := setupFixture(t)
	f.expectHappyPath(t)
	f.provider.chunks = []*providers.Chunk{
		{Content: "hello "},
		{Content: "world"},
		{Done: true, Model: "gpt-4o-2024", Usage: &providers.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}},
	}

	events, err := f.service.SendStream(context.Background(), sendReq())
	require.NoError(t, err)

	var content string
	var done *StreamEvent
	for event := range events {
		require.NoError(t, event.Err)
		if event.Done {
			done = event
			continue
		}
		content += event.Content
	}

	assert.Equal(t, "hello world", content)
	require.NotNil(t, done)
	assert.NotEmpty(t, done.MessageID)
	assert.Equal(t, "openai", done.ModelProvider)
	assert.Equal(t, "gpt-4o-2024", done.ModelName)

	// User message plus aggregated assistant message.
	f.messages.AssertNumberOfCalls(t, "Add", 2)

	guard, err := f.locks.AcquireConversation(context.Background(), "c1")
	assert.NoError(t, err)
	guard.Release(context.Background())
}

func TestSendStream_MidStreamFailure(t *testing.T) {
	f := setupFixture(t)
	f.expectHappyPath(t)
	f.provider.chunks = []*providers.Chunk{
		{Content: "partial"},
		{Err: &providers.Error{Provider: "openai", Message: "connection reset", Transient: true}},
	}

	events, err := f.service.SendStream(context.Background(), sendReq())
	require.NoError(t, err)

	var streamErr error
	for event := range events {
		if event.Err != nil {
			streamErr = event.Err
		}
	}

	require.Error(t, streamErr)
	domainErr, ok := domainerrors.GetDomainError(streamErr)
	require.True(t, ok)
	assert.Equal(t, domainerrors.ErrCodeProviderUnavailable, domainErr.Code)

	// The partial reply is not persisted.
	f.messages.AssertNumberOfCalls(t, "Add", 1)
}

func seedHistory(t *testing.T, f *fixture, turns []models.Turn) {
	t.Helper()
	data, err := json.Marshal(turns)
	require.NoError(t, err)
	require.NoError(t, f.mr.Set("conversation:c1:messages", string(data)))
}

func TestSend_UserTurnCachedBeforeDispatch(t *testing.T) {
	f := setupFixture(t)
	f.expectHappyPath(t)
	f.provider.err = &providers.Error{Provider: "openai", StatusCode: 503, Message: "overloaded", Transient: true}
	ctx := context.Background()

	seedHistory(t, f, []models.Turn{
		{Role: models.RoleUser, Content: "earlier question"},
		{Role: models.RoleAssistant, Content: "earlier reply"},
	})

	_, err := f.service.Send(ctx, sendReq())
	require.Error(t, err)
	f.messages.AssertNumberOfCalls(t, "Add", 1)

	// The persisted user turn must be in the cache even though the
	// exchange failed, so the cache keeps mirroring the store.
	turns, hit, err := f.service.history.GetRecent(ctx, "c1")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, turns, 3)
	assert.Equal(t, models.RoleUser, turns[2].Role)
	assert.Equal(t, "hi", turns[2].Content)
}

func TestSend_PromptCappedAtWindow(t *testing.T) {
	f := setupFixture(t)
	f.expectHappyPath(t)
	ctx := context.Background()

	max := f.service.history.MaxTurns()
	seeded := make([]models.Turn, max)
	for i := range seeded {
		seeded[i] = models.Turn{Role: models.RoleUser, Content: fmt.Sprintf("turn %d", i)}
	}
	seedHistory(t, f, seeded)

	_, err := f.service.Send(ctx, sendReq())
	require.NoError(t, err)

	require.NotNil(t, f.provider.lastReq)
	prompt := f.provider.lastReq.Messages
	require.Len(t, prompt, max)
	assert.Equal(t, "hi", prompt[max-1].Content)
	// The oldest seeded turn fell out of the window.
	assert.Equal(t, "turn 1", prompt[0].Content)
}

func TestDeleteConversation_InvalidatesCaches(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	f.conversations.On("GetByOwner", mock.Anything, "c1", "u1").Return(&models.Conversation{
		ID: "c1", UserID: "u1", Status: models.ConversationActive,
	}, nil)
	f.conversations.On("SetStatus", mock.Anything, "c1", "u1", models.ConversationDeleted).Return(nil)

	require.NoError(t, f.mr.Set("conversation:c1:messages", `[{"role":"user","content":"hi"}]`))

	require.NoError(t, f.service.DeleteConversation(ctx, "c1", "u1"))

	assert.False(t, f.mr.Exists("conversation:c1:messages"))
	f.conversations.AssertCalled(t, "SetStatus", mock.Anything, "c1", "u1", models.ConversationDeleted)
}

func TestListMessages_OwnershipEnforced(t *testing.T) {
	f := setupFixture(t)

	f.conversations.On("GetByOwner", mock.Anything, "c1", "intruder").Return(nil, nil)

	_, _, err := f.service.ListMessages(context.Background(), "c1", "intruder", 50, 0)
	require.Error(t, err)
	assert.True(t, domainerrors.IsNotFound(err))
}
