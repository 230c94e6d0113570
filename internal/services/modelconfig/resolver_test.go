package modelconfig_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/chat-service/internal/core/cache"
	"github.com/chatforge/chat-service/internal/domain/models"
	rediscache "github.com/chatforge/chat-service/internal/infrastructure/cache/redis"
	"github.com/chatforge/chat-service/internal/pkg/encryption"
	"github.com/chatforge/chat-service/internal/services/modelconfig"
	"github.com/chatforge/chat-service/tests/mocks"
)

func setupResolver(t *testing.T) (*mocks.MockCredentialsCollection, *mocks.MockApplicationsCollection, cache.Cache, *modelconfig.Resolver) {
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

	credentials := new(mocks.MockCredentialsCollection)
	applications := new(mocks.MockApplicationsCollection)
	resolver := modelconfig.NewResolver(credentials, applications, c, encryption.NewNoOpEncryptor())

	return credentials, applications, c, resolver
}

func encrypt(t *testing.T, plaintext string) string {
	t.Helper()
	ciphertext, err := encryption.NewNoOpEncryptor().EncryptString(plaintext)
	require.NoError(t, err)
	return ciphertext
}

func credential(t *testing.T, id, provider, model, key string, isDefault bool) *models.ModelCredential {
	t.Helper()
	return &models.ModelCredential{
		ID:        id,
		UserID:    "u1",
		Provider:  provider,
		ModelName: model,
		APIKey:    encrypt(t, key),
		IsDefault: isDefault,
		IsActive:  true,
	}
}

func TestResolver_OverrideWins(t *testing.T) {
	credentials, _, _, resolver := setupResolver(t)

	credentials.On("ListActive", mock.Anything, "u1", "deepseek").
		Return([]*models.ModelCredential{credential(t, "cred1", "deepseek", "deepseek-chat", "sk-deep", false)}, nil)

	cfg, err := resolver.Resolve(context.Background(), "u1", &modelconfig.Override{
		Provider: "deepseek",
		Model:    "deepseek-chat",
		Params:   map[string]interface{}{"temperature": 0.2},
	}, "app1")

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "deepseek", cfg.Provider)
	assert.Equal(t, "deepseek-chat", cfg.Model)
	assert.Equal(t, "sk-deep", cfg.APIKey)
	assert.Equal(t, 0.2, cfg.Params["temperature"])

	// The application tier was never consulted.
	credentials.AssertNotCalled(t, "GetDefault", mock.Anything, mock.Anything)
}

func TestResolver_OverrideParamsBeatCredentialParams(t *testing.T) {
	credentials, _, _, resolver := setupResolver(t)

	cred := credential(t, "cred1", "openai", "gpt-4o", "sk-oa", false)
	cred.Params = map[string]interface{}{"temperature": 0.9, "top_p": 0.5}
	credentials.On("ListActive", mock.Anything, "u1", "openai").
		Return([]*models.ModelCredential{cred}, nil)

	cfg, err := resolver.Resolve(context.Background(), "u1", &modelconfig.Override{
		Provider: "openai",
		Model:    "gpt-4o",
		Params:   map[string]interface{}{"temperature": 0.1},
	}, "")

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 0.1, cfg.Params["temperature"])
	assert.Equal(t, 0.5, cfg.Params["top_p"])
}

func TestResolver_OverrideWithoutCredentialDoesNotFallThrough(t *testing.T) {
	credentials, _, _, resolver := setupResolver(t)

	credentials.On("ListActive", mock.Anything, "u1", "moonshot").
		Return([]*models.ModelCredential{}, nil)

	cfg, err := resolver.Resolve(context.Background(), "u1", &modelconfig.Override{
		Provider: "moonshot",
		Model:    "moonshot-v1-8k",
	}, "")

	assert.NoError(t, err)
	assert.Nil(t, cfg)
	credentials.AssertNotCalled(t, "GetDefault", mock.Anything, mock.Anything)
}

func TestResolver_ApplicationTier(t *testing.T) {
	credentials, applications, _, resolver := setupResolver(t)

	applications.On("Get", mock.Anything, "app1").Return(&models.Application{
		ID:            "app1",
		UserID:        "u1",
		ModelProvider: "qwen",
		ModelName:     "qwen-max",
		ModelParams:   map[string]interface{}{"temperature": 0.7},
		SystemPrompt:  "You are a helpful assistant.",
	}, nil)
	credentials.On("ListActive", mock.Anything, "u1", "qwen").
		Return([]*models.ModelCredential{credential(t, "cred1", "qwen", "qwen-max", "sk-qw", false)}, nil)

	cfg, err := resolver.Resolve(context.Background(), "u1", nil, "app1")

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "qwen", cfg.Provider)
	assert.Equal(t, "qwen-max", cfg.Model)
	assert.Equal(t, "sk-qw", cfg.APIKey)
	assert.Equal(t, "You are a helpful assistant.", cfg.SystemPrompt)
	assert.Equal(t, 0.7, cfg.Params["temperature"])
}

func TestResolver_ApplicationConfigCached(t *testing.T) {
	credentials, applications, _, resolver := setupResolver(t)
	ctx := context.Background()

	applications.On("Get", mock.Anything, "app1").Return(&models.Application{
		ID:            "app1",
		ModelProvider: "openai",
		ModelName:     "gpt-4o",
	}, nil).Once()
	credentials.On("ListActive", mock.Anything, "u1", "openai").
		Return([]*models.ModelCredential{credential(t, "cred1", "openai", "gpt-4o", "sk-oa", false)}, nil)

	_, err := resolver.Resolve(ctx, "u1", nil, "app1")
	require.NoError(t, err)

	// Second resolve is served from the cache; Get is not called again.
	cfg, err := resolver.Resolve(ctx, "u1", nil, "app1")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	applications.AssertNumberOfCalls(t, "Get", 1)
}

func TestResolver_ApplicationMissingFallsToDefault(t *testing.T) {
	credentials, applications, _, resolver := setupResolver(t)

	applications.On("Get", mock.Anything, "app1").Return(nil, nil)
	credentials.On("GetDefault", mock.Anything, "u1").
		Return(credential(t, "cred1", "siliconflow", "Qwen/Qwen2.5-72B", "sk-sf", true), nil)

	cfg, err := resolver.Resolve(context.Background(), "u1", nil, "app1")

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "siliconflow", cfg.Provider)
	assert.Equal(t, "sk-sf", cfg.APIKey)
}

func TestResolver_UserDefaultTier(t *testing.T) {
	credentials, _, _, resolver := setupResolver(t)

	credentials.On("GetDefault", mock.Anything, "u1").
		Return(credential(t, "cred1", "openai", "gpt-4o-mini", "sk-oa", true), nil)

	cfg, err := resolver.Resolve(context.Background(), "u1", nil, "")

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, "sk-oa", cfg.APIKey)
}

func TestResolver_UserDefaultCached(t *testing.T) {
	credentials, _, _, resolver := setupResolver(t)
	ctx := context.Background()

	credentials.On("GetDefault", mock.Anything, "u1").
		Return(credential(t, "cred1", "openai", "gpt-4o-mini", "sk-oa", true), nil).Once()

	_, err := resolver.Resolve(ctx, "u1", nil, "")
	require.NoError(t, err)

	cfg, err := resolver.Resolve(ctx, "u1", nil, "")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "sk-oa", cfg.APIKey)
	credentials.AssertNumberOfCalls(t, "GetDefault", 1)
}

func TestResolver_NoTierResolves(t *testing.T) {
	credentials, _, _, resolver := setupResolver(t)

	credentials.On("GetDefault", mock.Anything, "u1").Return(nil, nil)

	cfg, err := resolver.Resolve(context.Background(), "u1", nil, "")

	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestResolver_InvalidateUserDefault(t *testing.T) {
	credentials, _, _, resolver := setupResolver(t)
	ctx := context.Background()

	credentials.On("GetDefault", mock.Anything, "u1").
		Return(credential(t, "cred1", "openai", "gpt-4o-mini", "sk-oa", true), nil).Twice()

	_, err := resolver.Resolve(ctx, "u1", nil, "")
	require.NoError(t, err)

	require.NoError(t, resolver.InvalidateUserDefault(ctx, "u1"))

	_, err = resolver.Resolve(ctx, "u1", nil, "")
	require.NoError(t, err)
	credentials.AssertNumberOfCalls(t, "GetDefault", 2)
}

func TestResolver_ProviderLevelCredentialFallback(t *testing.T) {
	credentials, _, _, resolver := setupResolver(t)

	// No exact model match; the provider-level credential is used.
	credentials.On("ListActive", mock.Anything, "u1", "deepseek").
		Return([]*models.ModelCredential{credential(t, "cred1", "deepseek", "deepseek-chat", "sk-deep", false)}, nil)

	cfg, err := resolver.Resolve(context.Background(), "u1", &modelconfig.Override{
		Provider: "deepseek",
		Model:    "deepseek-reasoner",
	}, "")

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "deepseek-reasoner", cfg.Model)
	assert.Equal(t, "sk-deep", cfg.APIKey)
}
