// Package mongodb provides the model credentials collection implementation.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chatforge/chat-service/internal/domain/models"
)

// CredentialsCollectionName is the name of the model credentials collection.
const CredentialsCollectionName = "model_credentials"

// CredentialsCollection implements docdb.CredentialsCollection for MongoDB.
type CredentialsCollection struct {
	collection *mongo.Collection
}

// NewCredentialsCollection creates a new credentials collection wrapper.
func NewCredentialsCollection(db *mongo.Database) *CredentialsCollection {
	return &CredentialsCollection{
		collection: db.Collection(CredentialsCollectionName),
	}
}

// Add inserts a new credential record.
func (c *CredentialsCollection) Add(ctx context.Context, credential *models.ModelCredential) error {
	if credential.ID == "" {
		return fmt.Errorf("credential ID is required")
	}

	credential.CreatedAt = time.Now().UTC()
	credential.UpdatedAt = credential.CreatedAt

	_, err := c.collection.InsertOne(ctx, credential)
	if err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}

	return nil
}

// ListActive lists a user's active credentials, optionally filtered by provider.
func (c *CredentialsCollection) ListActive(ctx context.Context, userID, provider string) ([]*models.ModelCredential, error) {
	filter := bson.M{
		"userId":   userID,
		"isActive": true,
	}
	if provider != "" {
		filter["provider"] = provider
	}

	findOpts := options.Find().SetSort(bson.D{
		{Key: "isDefault", Value: -1},
		{Key: "createdAt", Value: -1},
	})

	cursor, err := c.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer cursor.Close(ctx)

	var credentials []*models.ModelCredential
	if err := cursor.All(ctx, &credentials); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}

	return credentials, nil
}

// GetDefault returns the user's default active credential, or nil if none.
func (c *CredentialsCollection) GetDefault(ctx context.Context, userID string) (*models.ModelCredential, error) {
	var credential models.ModelCredential
	err := c.collection.FindOne(ctx, bson.M{
		"userId":    userID,
		"isDefault": true,
		"isActive":  true,
	}).Decode(&credential)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get default credential: %w", err)
	}
	return &credential, nil
}

// EnsureIndexes creates necessary indexes for the collection.
func (c *CredentialsCollection) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "provider", Value: 1},
				{Key: "modelName", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := c.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create credential indexes: %w", err)
	}
	return nil
}
