// Package docdb defines the document database interfaces.
package docdb

import "context"

// Type represents the type of document database.
type Type string

const (
	// TypeMongoDB represents a MongoDB database.
	TypeMongoDB Type = "mongodb"
)

// Client defines the interface for document database clients.
type Client interface {
	// Messages returns the messages collection.
	Messages() MessagesCollection

	// Conversations returns the conversations collection.
	Conversations() ConversationsCollection

	// Credentials returns the model credentials collection.
	Credentials() CredentialsCollection

	// Applications returns the applications collection.
	Applications() ApplicationsCollection

	// EnsureIndexes creates indexes on all collections.
	EnsureIndexes(ctx context.Context) error

	// Ping checks if the database connection is alive.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close(ctx context.Context) error
}
