// Package docdb provides the conversations collection interface.
package docdb

import (
	"context"
	"time"

	"github.com/chatforge/chat-service/internal/domain/models"
)

// ConversationsCollection defines the interface for conversation operations.
type ConversationsCollection interface {
	// Add inserts a new conversation.
	Add(ctx context.Context, conversation *models.Conversation) error

	// GetByOwner retrieves a conversation by ID scoped to its owner.
	// Returns nil if not found or owned by another user.
	GetByOwner(ctx context.Context, id, userID string) (*models.Conversation, error)

	// UpdateStats refreshes the message count and last-message timestamp.
	UpdateStats(ctx context.Context, id string, messageCount int64, lastMessageAt time.Time) error

	// SetStatus updates the conversation's lifecycle status.
	SetStatus(ctx context.Context, id, userID string, status models.ConversationStatus) error

	// EnsureIndexes creates necessary indexes for the collection.
	EnsureIndexes(ctx context.Context) error
}
