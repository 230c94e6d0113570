// Package docdb provides the applications collection interface.
package docdb

import (
	"context"

	"github.com/chatforge/chat-service/internal/domain/models"
)

// ApplicationsCollection defines the interface for application operations.
type ApplicationsCollection interface {
	// Add inserts a new application.
	Add(ctx context.Context, application *models.Application) error

	// Get retrieves an application by ID. Returns nil if not found.
	Get(ctx context.Context, id string) (*models.Application, error)

	// EnsureIndexes creates necessary indexes for the collection.
	EnsureIndexes(ctx context.Context) error
}
