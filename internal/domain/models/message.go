// Package models contains domain models for the chat service.
package models

import "time"

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	// RoleUser represents a message from the user.
	RoleUser MessageRole = "user"
	// RoleAssistant represents a message from the assistant.
	RoleAssistant MessageRole = "assistant"
	// RoleSystem represents a system message.
	RoleSystem MessageRole = "system"
)

// Turn is a single conversation turn as sent to an AI provider.
// Turns are immutable once appended to a conversation's history.
type Turn struct {
	Role    MessageRole `json:"role" bson:"role"`
	Content string      `json:"content" bson:"content"`
}

// Message represents a persisted chat message in a conversation.
type Message struct {
	ID               string      `json:"id" bson:"_id"`
	ConversationID   string      `json:"conversationId" bson:"conversationId"`
	UserID           string      `json:"userId,omitempty" bson:"userId,omitempty"`
	Role             MessageRole `json:"role" bson:"role"`
	Content          string      `json:"content" bson:"content"`
	ModelProvider    string      `json:"modelProvider,omitempty" bson:"modelProvider,omitempty"`
	ModelName        string      `json:"modelName,omitempty" bson:"modelName,omitempty"`
	PromptTokens     int         `json:"promptTokens,omitempty" bson:"promptTokens,omitempty"`
	CompletionTokens int         `json:"completionTokens,omitempty" bson:"completionTokens,omitempty"`
	TotalTokens      int         `json:"totalTokens,omitempty" bson:"totalTokens,omitempty"`
	CreatedAt        time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt" bson:"updatedAt"`
}

// Turn converts the message into a provider-facing conversation turn.
func (m *Message) Turn() Turn {
	return Turn{Role: m.Role, Content: m.Content}
}

// NewMessage creates a new message with the given parameters.
func NewMessage(conversationID, userID string, role MessageRole, content string) *Message {
	now := time.Now().UTC()
	return &Message{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
