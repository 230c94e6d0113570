// Package history caches recent conversation turns for prompt assembly.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatforge/chat-service/internal/core/cache"
	"github.com/chatforge/chat-service/internal/domain/models"
)

// ModelInfoTTL is the expiry for the per-conversation model pointer.
const ModelInfoTTL = time.Hour

// ModelInfo records which provider and model last answered a conversation.
type ModelInfo struct {
	Provider string `json:"lastProvider"`
	Model    string `json:"lastModel"`
}

// Service maintains the rolling window of recent turns per conversation.
type Service struct {
	cache    cache.Cache
	maxTurns int
	ttl      time.Duration
}

// NewService creates a history cache keeping at most maxTurns turns per
// conversation with the given TTL.
func NewService(c cache.Cache, maxTurns int, ttl time.Duration) *Service {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{cache: c, maxTurns: maxTurns, ttl: ttl}
}

// MaxTurns returns the history window cap.
func (s *Service) MaxTurns() int {
	return s.maxTurns
}

func messagesKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:messages", conversationID)
}

func modelKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:model", conversationID)
}

// GetRecent returns the cached turns for a conversation. The boolean
// distinguishes a cache miss from a conversation whose cached history is
// genuinely empty.
func (s *Service) GetRecent(ctx context.Context, conversationID string) ([]models.Turn, bool, error) {
	data, err := s.cache.Get(ctx, messagesKey(conversationID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read history cache: %w", err)
	}
	if data == nil {
		return nil, false, nil
	}

	var turns []models.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		// A corrupt entry is dropped so the next request rebuilds it.
		log.Warn().Err(err).Str("conversation", conversationID).Msg("Discarding unreadable history cache entry")
		_, _ = s.cache.Delete(ctx, messagesKey(conversationID))
		return nil, false, nil
	}

	return turns, true, nil
}

// SetRecent replaces the cached history, keeping only the newest maxTurns
// turns.
func (s *Service) SetRecent(ctx context.Context, conversationID string, turns []models.Turn) error {
	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}

	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	if err := s.cache.Set(ctx, messagesKey(conversationID), data, s.ttl); err != nil {
		return fmt.Errorf("failed to write history cache: %w", err)
	}
	return nil
}

// Append adds turns to the cached history, trimming to the window cap.
// If the history is not cached the append is skipped; the cache is
// rebuilt from the store on the next read instead.
func (s *Service) Append(ctx context.Context, conversationID string, turns ...models.Turn) error {
	existing, hit, err := s.GetRecent(ctx, conversationID)
	if err != nil {
		return err
	}
	if !hit {
		return nil
	}

	return s.SetRecent(ctx, conversationID, append(existing, turns...))
}

// Invalidate drops all cached state for a conversation.
func (s *Service) Invalidate(ctx context.Context, conversationID string) error {
	if _, err := s.cache.Delete(ctx, messagesKey(conversationID)); err != nil {
		return fmt.Errorf("failed to invalidate history cache: %w", err)
	}
	if _, err := s.cache.Delete(ctx, modelKey(conversationID)); err != nil {
		return fmt.Errorf("failed to invalidate model info: %w", err)
	}
	return nil
}

// SetModelInfo records the provider and model that last served the
// conversation.
func (s *Service) SetModelInfo(ctx context.Context, conversationID string, info ModelInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode model info: %w", err)
	}
	if err := s.cache.Set(ctx, modelKey(conversationID), data, ModelInfoTTL); err != nil {
		return fmt.Errorf("failed to write model info: %w", err)
	}
	return nil
}

// GetModelInfo returns the last provider and model used, or nil if unknown.
func (s *Service) GetModelInfo(ctx context.Context, conversationID string) (*ModelInfo, error) {
	data, err := s.cache.Get(ctx, modelKey(conversationID))
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var info ModelInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode model info: %w", err)
	}
	return &info, nil
}
