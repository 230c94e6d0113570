// Package docdb provides the model credentials collection interface.
package docdb

import (
	"context"

	"github.com/chatforge/chat-service/internal/domain/models"
)

// CredentialsCollection defines the interface for model credential operations.
// API keys are stored encrypted; decryption happens in the config resolver.
type CredentialsCollection interface {
	// Add inserts a new credential record.
	Add(ctx context.Context, credential *models.ModelCredential) error

	// ListActive lists a user's active credentials, optionally filtered
	// by provider (empty provider matches all).
	ListActive(ctx context.Context, userID, provider string) ([]*models.ModelCredential, error)

	// GetDefault returns the user's default active credential, or nil if
	// none is configured.
	GetDefault(ctx context.Context, userID string) (*models.ModelCredential, error)

	// EnsureIndexes creates necessary indexes for the collection.
	EnsureIndexes(ctx context.Context) error
}
