// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/chatforge/chat-service/internal/core/docdb"
	"github.com/chatforge/chat-service/internal/domain/models"
)

// MockMessagesCollection is a mock implementation of docdb.MessagesCollection.
type MockMessagesCollection struct {
	mock.Mock
}

// Add inserts a new message.
func (m *MockMessagesCollection) Add(ctx context.Context, message *models.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// Get retrieves a message by ID.
func (m *MockMessagesCollection) Get(ctx context.Context, id string) (*models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

// List lists messages for a conversation.
func (m *MockMessagesCollection) List(ctx context.Context, opts *docdb.ListMessagesOptions) ([]*models.Message, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Message), args.Error(1)
}

// ListRecent returns the last limit messages in chronological order.
func (m *MockMessagesCollection) ListRecent(ctx context.Context, conversationID string, limit int64) ([]*models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Message), args.Error(1)
}

// CountByConversation returns the count of messages in a conversation.
func (m *MockMessagesCollection) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

// EnsureIndexes creates necessary indexes.
func (m *MockMessagesCollection) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockConversationsCollection is a mock implementation of docdb.ConversationsCollection.
type MockConversationsCollection struct {
	mock.Mock
}

// Add inserts a new conversation.
func (m *MockConversationsCollection) Add(ctx context.Context, conversation *models.Conversation) error {
	args := m.Called(ctx, conversation)
	return args.Error(0)
}

// GetByOwner retrieves a conversation by ID scoped to its owner.
func (m *MockConversationsCollection) GetByOwner(ctx context.Context, id, userID string) (*models.Conversation, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

// UpdateStats refreshes the message count and last-message timestamp.
func (m *MockConversationsCollection) UpdateStats(ctx context.Context, id string, messageCount int64, lastMessageAt time.Time) error {
	args := m.Called(ctx, id, messageCount, lastMessageAt)
	return args.Error(0)
}

// SetStatus updates the conversation's lifecycle status.
func (m *MockConversationsCollection) SetStatus(ctx context.Context, id, userID string, status models.ConversationStatus) error {
	args := m.Called(ctx, id, userID, status)
	return args.Error(0)
}

// EnsureIndexes creates necessary indexes.
func (m *MockConversationsCollection) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCredentialsCollection is a mock implementation of docdb.CredentialsCollection.
type MockCredentialsCollection struct {
	mock.Mock
}

// Add inserts a new credential record.
func (m *MockCredentialsCollection) Add(ctx context.Context, credential *models.ModelCredential) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}

// ListActive lists a user's active credentials.
func (m *MockCredentialsCollection) ListActive(ctx context.Context, userID, provider string) ([]*models.ModelCredential, error) {
	args := m.Called(ctx, userID, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ModelCredential), args.Error(1)
}

// GetDefault returns the user's default active credential.
func (m *MockCredentialsCollection) GetDefault(ctx context.Context, userID string) (*models.ModelCredential, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ModelCredential), args.Error(1)
}

// EnsureIndexes creates necessary indexes.
func (m *MockCredentialsCollection) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockApplicationsCollection is a mock implementation of docdb.ApplicationsCollection.
type MockApplicationsCollection struct {
	mock.Mock
}

// Add inserts a new application.
func (m *MockApplicationsCollection) Add(ctx context.Context, application *models.Application) error {
	args := m.Called(ctx, application)
	return args.Error(0)
}

// Get retrieves an application by ID.
func (m *MockApplicationsCollection) Get(ctx context.Context, id string) (*models.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}

// EnsureIndexes creates necessary indexes.
func (m *MockApplicationsCollection) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
