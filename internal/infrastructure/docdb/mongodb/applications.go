// Package mongodb provides the applications collection implementation.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatforge/chat-service/internal/domain/models"
)

// ApplicationsCollectionName is the name of the applications collection.
const ApplicationsCollectionName = "applications"

// ApplicationsCollection implements docdb.ApplicationsCollection for MongoDB.
type ApplicationsCollection struct {
	collection *mongo.Collection
}

// NewApplicationsCollection creates a new applications collection wrapper.
func NewApplicationsCollection(db *mongo.Database) *ApplicationsCollection {
	return &ApplicationsCollection{
		collection: db.Collection(ApplicationsCollectionName),
	}
}

// Add inserts a new application.
func (c *ApplicationsCollection) Add(ctx context.Context, application *models.Application) error {
	if application.ID == "" {
		return fmt.Errorf("application ID is required")
	}

	application.CreatedAt = time.Now().UTC()
	application.UpdatedAt = application.CreatedAt

	_, err := c.collection.InsertOne(ctx, application)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}

	return nil
}

// Get retrieves an application by ID.
func (c *ApplicationsCollection) Get(ctx context.Context, id string) (*models.Application, error) {
	var application models.Application
	err := c.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&application)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return &application, nil
}

// EnsureIndexes creates necessary indexes for the collection.
func (c *ApplicationsCollection) EnsureIndexes(ctx context.Context) error {
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
		return fmt.Errorf("failed to create application indexes: %w", err)
	}
	return nil
}
