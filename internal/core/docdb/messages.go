// Package docdb provides the messages collection interface.
package docdb

import (
	"context"

	"github.com/chatforge/chat-service/internal/domain/models"
)

// ListMessagesOptions contains options for listing messages.
type ListMessagesOptions struct {
	ConversationID string
	Limit          int64
	Skip           int64
	// Ascending orders results by createdAt ascending when true.
	Ascending bool
}

// MessagesCollection defines the interface for message collection operations.
type MessagesCollection interface {
	// Add inserts a new message. The message must carry an ID; createdAt
	// and updatedAt are stamped by the store.
	Add(ctx context.Context, message *models.Message) error

	// Get retrieves a message by ID. Returns nil if not found.
	Get(ctx context.Context, id string) (*models.Message, error)

	// List lists messages for a conversation with pagination and ordering.
	List(ctx context.Context, opts *ListMessagesOptions) ([]*models.Message, error)

	// ListRecent returns the last limit messages of a conversation in
	// chronological (oldest-first) order.
	ListRecent(ctx context.Context, conversationID string, limit int64) ([]*models.Message, error)

	// CountByConversation returns the count of messages in a conversation.
	CountByConversation(ctx context.Context, conversationID string) (int64, error)

	// EnsureIndexes creates necessary indexes for the collection.
	EnsureIndexes(ctx context.Context) error
}
