// Package mongodb provides the conversations collection implementation.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatforge/chat-service/internal/domain/models"
)

// ConversationsCollectionName is the name of the conversations collection.
const ConversationsCollectionName = "conversations"

// ConversationsCollection implements docdb.ConversationsCollection for MongoDB.
type ConversationsCollection struct {
	collection *mongo.Collection
}

// NewConversationsCollection creates a new conversations collection wrapper.
func NewConversationsCollection(db *mongo.Database) *ConversationsCollection {
	return &ConversationsCollection{
		collection: db.Collection(ConversationsCollectionName),
	}
}

// Add inserts a new conversation.
func (c *ConversationsCollection) Add(ctx context.Context, conversation *models.Conversation) error {
	if conversation.ID == "" {
		return fmt.Errorf("conversation ID is required")
	}

	conversation.CreatedAt = time.Now().UTC()
	conversation.UpdatedAt = conversation.CreatedAt

	_, err := c.collection.InsertOne(ctx, conversation)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	return nil
}

// GetByOwner retrieves a conversation by ID scoped to its owner.
func (c *ConversationsCollection) GetByOwner(ctx context.Context, id, userID string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := c.collection.FindOne(ctx, bson.M{
		"_id":    id,
		"userId": userID,
		"status": bson.M{"$ne": models.ConversationDeleted},
	}).Decode(&conversation)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conversation, nil
}

// UpdateStats refreshes the message count and last-message timestamp.
func (c *ConversationsCollection) UpdateStats(ctx context.Context, id string, messageCount int64, lastMessageAt time.Time) error {
	_, err := c.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"messageCount":  messageCount,
			"lastMessageAt": lastMessageAt,
			"updatedAt":     time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update conversation stats: %w", err)
	}
	return nil
}

// SetStatus updates the conversation's lifecycle status.
func (c *ConversationsCollection) SetStatus(ctx context.Context, id, userID string, status models.ConversationStatus) error {
	result, err := c.collection.UpdateOne(ctx, bson.M{"_id": id, "userId": userID}, bson.M{
		"$set": bson.M{
			"status":    status,
			"updatedAt": time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to set conversation status: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("conversation %s not found for user", id)
	}
	return nil
}

// EnsureIndexes creates necessary indexes for the collection.
func (c *ConversationsCollection) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "updatedAt", Value: -1},
			},
		},
	}

	_, err := c.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}
	return nil
}
