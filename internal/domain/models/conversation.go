package models

import "time"

// ConversationStatus represents the lifecycle state of a conversation.
type ConversationStatus string

const (
	// ConversationActive is a conversation that accepts new messages.
	ConversationActive ConversationStatus = "active"
	// ConversationDeleted is a soft-deleted conversation.
	ConversationDeleted ConversationStatus = "deleted"
)

// Conversation is an ordered, append-only container of turns belonging to one user.
type Conversation struct {
	ID            string             `json:"id" bson:"_id"`
	UserID        string             `json:"userId" bson:"userId"`
	Title         string             `json:"title,omitempty" bson:"title,omitempty"`
	Status        ConversationStatus `json:"status" bson:"status"`
	MessageCount  int64              `json:"messageCount" bson:"messageCount"`
	LastMessageAt time.Time          `json:"lastMessageAt,omitempty" bson:"lastMessageAt,omitempty"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// NewConversation creates a new active conversation for the given user.
func NewConversation(userID, title string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		UserID:    userID,
		Title:     title,
		Status:    ConversationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
