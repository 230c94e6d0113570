// Package modelconfig resolves the effective model configuration for a
// message through the override, application, and user-default tiers.
package modelconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatforge/chat-service/internal/core/cache"
	"github.com/chatforge/chat-service/internal/core/docdb"
	"github.com/chatforge/chat-service/internal/domain/models"
	"github.com/chatforge/chat-service/internal/pkg/encryption"
)

// ConfigCacheTTL is the expiry for cached application configs and user
// default credentials.
const ConfigCacheTTL = time.Hour

// Override is a per-message model selection. Provider and Model must both
// be set for the override to name a model; Params alone only adjusts
// parameters of whatever tier resolves.
type Override struct {
	Provider string
	Model    string
	Params   map[string]interface{}
}

// Names reports whether the override picks a concrete provider and model.
func (o *Override) Names() bool {
	return o != nil && o.Provider != "" && o.Model != ""
}

// EffectiveConfig is the fully resolved configuration handed to the
// dispatcher. APIKey is plaintext; it never leaves the process.
type EffectiveConfig struct {
	Provider     string
	Model        string
	APIKey       string
	APIBase      string
	SystemPrompt string
	Params       map[string]interface{}
}

// Resolver walks the configuration cascade.
type Resolver struct {
	credentials  docdb.CredentialsCollection
	applications docdb.ApplicationsCollection
	cache        cache.Cache
	encryptor    encryption.Encryptor
}

// NewResolver creates a config resolver.
func NewResolver(credentials docdb.CredentialsCollection, applications docdb.ApplicationsCollection, c cache.Cache, enc encryption.Encryptor) *Resolver {
	return &Resolver{
		credentials:  credentials,
		applications: applications,
		cache:        c,
		encryptor:    enc,
	}
}

func applicationConfigKey(applicationID string) string {
	return fmt.Sprintf("application:%s:config", applicationID)
}

func userDefaultKey(userID string) string {
	return fmt.Sprintf("user:%s:default_model", userID)
}

// Resolve returns the effective configuration for a message, or nil when no
// tier yields a usable one. Precedence: per-message override, then the
// conversation's application template, then the user's default credential.
// Override params are merged on top of whichever tier wins.
func (r *Resolver) Resolve(ctx context.Context, userID string, override *Override, applicationID string) (*EffectiveConfig, error) {
	if override.Names() {
		cfg, err := r.resolveOverride(ctx, userID, override)
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			return cfg, nil
		}
		// An override naming a provider the user has no credential for
		// does not fall through; it is a configuration the user asked
		// for and cannot use.
		return nil, nil
	}

	if applicationID != "" {
		cfg, err := r.resolveApplication(ctx, userID, applicationID, override)
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			return cfg, nil
		}
	}

	return r.resolveUserDefault(ctx, userID, override)
}

func (r *Resolver) resolveOverride(ctx context.Context, userID string, override *Override) (*EffectiveConfig, error) {
	credential, err := r.findCredential(ctx, userID, override.Provider, override.Model)
	if err != nil {
		return nil, err
	}
	if credential == nil {
		return nil, nil
	}

	apiKey, err := r.encryptor.DecryptString(credential.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential %s: %w", credential.ID, err)
	}

	return &EffectiveConfig{
		Provider: override.Provider,
		Model:    override.Model,
		APIKey:   apiKey,
		APIBase:  credential.APIBase,
		Params:   mergeParams(credential.Params, override.Params),
	}, nil
}

func (r *Resolver) resolveApplication(ctx context.Context, userID, applicationID string, override *Override) (*EffectiveConfig, error) {
	appConfig, err := r.applicationConfig(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if appConfig == nil {
		return nil, nil
	}

	credential, err := r.findCredential(ctx, userID, appConfig.ModelProvider, appConfig.ModelName)
	if err != nil {
		return nil, err
	}
	if credential == nil {
		return nil, nil
	}

	apiKey, err := r.encryptor.DecryptString(credential.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential %s: %w", credential.ID, err)
	}

	params := mergeParams(credential.Params, appConfig.ModelParams)
	if override != nil {
		params = mergeParams(params, override.Params)
	}

	return &EffectiveConfig{
		Provider:     appConfig.ModelProvider,
		Model:        appConfig.ModelName,
		APIKey:       apiKey,
		APIBase:      credential.APIBase,
		SystemPrompt: appConfig.SystemPrompt,
		Params:       params,
	}, nil
}

func (r *Resolver) resolveUserDefault(ctx context.Context, userID string, override *Override) (*EffectiveConfig, error) {
	credential, err := r.defaultCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	if credential == nil {
		return nil, nil
	}

	apiKey, err := r.encryptor.DecryptString(credential.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential %s: %w", credential.ID, err)
	}

	params := credential.Params
	if override != nil {
		params = mergeParams(params, override.Params)
	}

	return &EffectiveConfig{
		Provider: credential.Provider,
		Model:    credential.ModelName,
		APIKey:   apiKey,
		APIBase:  credential.APIBase,
		Params:   params,
	}, nil
}

// applicationConfig reads the application template, preferring the cache.
// Cache failures degrade to a store read rather than failing the request.
func (r *Resolver) applicationConfig(ctx context.Context, applicationID string) (*models.ApplicationConfig, error) {
	key := applicationConfigKey(applicationID)

	data, err := r.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("application", applicationID).Msg("Application config cache read failed")
	} else if data != nil {
		var cfg models.ApplicationConfig
		if err := json.Unmarshal(data, &cfg); err == nil {
			return &cfg, nil
		}
		log.Warn().Str("application", applicationID).Msg("Discarding unreadable application config cache entry")
	}

	application, err := r.applications.Get(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load application %s: %w", applicationID, err)
	}
	if application == nil {
		return nil, nil
	}

	cfg := application.Config()
	if encoded, err := json.Marshal(cfg); err == nil {
		if err := r.cache.Set(ctx, key, encoded, ConfigCacheTTL); err != nil {
			log.Warn().Err(err).Str("application", applicationID).Msg("Application config cache write failed")
		}
	}

	return cfg, nil
}

// defaultCredential reads the user's default credential, preferring the
// cache. The cached record keeps the API key in its encrypted form.
func (r *Resolver) defaultCredential(ctx context.Context, userID string) (*models.ModelCredential, error) {
	key := userDefaultKey(userID)

	data, err := r.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("User default credential cache read failed")
	} else if data != nil {
		var entry credentialCacheEntry
		if err := json.Unmarshal(data, &entry); err == nil && entry.APIKey != "" {
			return entry.credential(), nil
		}
		log.Warn().Str("user", userID).Msg("Discarding unreadable user default cache entry")
	}

	credential, err := r.credentials.GetDefault(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load default credential: %w", err)
	}
	if credential == nil {
		return nil, nil
	}

	if encoded, err := json.Marshal(cachedCredential(credential)); err == nil {
		if err := r.cache.Set(ctx, key, encoded, ConfigCacheTTL); err != nil {
			log.Warn().Err(err).Str("user", userID).Msg("User default credential cache write failed")
		}
	}

	return credential, nil
}

// InvalidateUserDefault drops the cached default credential, called when a
// user changes their credentials.
func (r *Resolver) InvalidateUserDefault(ctx context.Context, userID string) error {
	if _, err := r.cache.Delete(ctx, userDefaultKey(userID)); err != nil {
		return fmt.Errorf("failed to invalidate user default cache: %w", err)
	}
	return nil
}

// InvalidateApplication drops the cached application config, called when a
// template is edited.
func (r *Resolver) InvalidateApplication(ctx context.Context, applicationID string) error {
	if _, err := r.cache.Delete(ctx, applicationConfigKey(applicationID)); err != nil {
		return fmt.Errorf("failed to invalidate application config cache: %w", err)
	}
	return nil
}

// findCredential looks for an active credential matching provider and model,
// falling back to any active credential for the provider.
func (r *Resolver) findCredential(ctx context.Context, userID, provider, model string) (*models.ModelCredential, error) {
	candidates, err := r.credentials.ListActive(ctx, userID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	for _, c := range candidates {
		if c.ModelName == model {
			return c, nil
		}
	}
	return candidates[0], nil
}

// cachedCredential strips fields irrelevant to resolution before caching.
// The bson-only APIKey ciphertext must survive the JSON round trip, so the
// cache entry uses an explicit shape.
type credentialCacheEntry struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	Provider  string                 `json:"provider"`
	ModelName string                 `json:"modelName"`
	APIKey    string                 `json:"apiKey"`
	APIBase   string                 `json:"apiBase,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

func (e *credentialCacheEntry) credential() *models.ModelCredential {
	return &models.ModelCredential{
		ID:        e.ID,
		UserID:    e.UserID,
		Provider:  e.Provider,
		ModelName: e.ModelName,
		APIKey:    e.APIKey,
		APIBase:   e.APIBase,
		Params:    e.Params,
		IsDefault: true,
		IsActive:  true,
	}
}

func cachedCredential(c *models.ModelCredential) *credentialCacheEntry {
	return &credentialCacheEntry{
		ID:        c.ID,
		UserID:    c.UserID,
		Provider:  c.Provider,
		ModelName: c.ModelName,
		APIKey:    c.APIKey,
		APIBase:   c.APIBase,
		Params:    c.Params,
	}
}

func mergeParams(base, overlay map[string]interface{}) map[string]interface{} {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
