// Package mongodb provides the MongoDB client implementation.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chatforge/chat-service/internal/core/docdb"
)

// Client implements the docdb.Client interface for MongoDB.
type Client struct {
	client        *mongo.Client
	messages      *MessagesCollection
	conversations *ConversationsCollection
	credentials   *CredentialsCollection
	applications  *ApplicationsCollection
}

// ClientConfig holds MongoDB connection configuration.
type ClientConfig struct {
	URI          string
	DatabaseName string
}

// NewClient creates a new MongoDB client.
func NewClient(ctx context.Context, config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if config.DatabaseName == "" {
		return nil, fmt.Errorf("database name is required")
	}

	clientOpts := options.Client().ApplyURI(config.URI)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(config.DatabaseName)

	return &Client{
		client:        client,
		messages:      NewMessagesCollection(db),
		conversations: NewConversationsCollection(db),
		credentials:   NewCredentialsCollection(db),
		applications:  NewApplicationsCollection(db),
	}, nil
}

// Messages returns the messages collection.
func (c *Client) Messages() docdb.MessagesCollection {
	return c.messages
}

// Conversations returns the conversations collection.
func (c *Client) Conversations() docdb.ConversationsCollection {
	return c.conversations
}

// Credentials returns the model credentials collection.
func (c *Client) Credentials() docdb.CredentialsCollection {
	return c.credentials
}

// Applications returns the applications collection.
func (c *Client) Applications() docdb.ApplicationsCollection {
	return c.applications
}

// Ping verifies the connection to MongoDB.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}

// EnsureIndexes creates all necessary indexes for all collections.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	if err := c.messages.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure messages indexes: %w", err)
	}
	if err := c.conversations.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure conversations indexes: %w", err)
	}
	if err := c.credentials.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure credentials indexes: %w", err)
	}
	if err := c.applications.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure applications indexes: %w", err)
	}
	return nil
}
