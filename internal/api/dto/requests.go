// Package dto contains request and response types for the API.
package dto

// SendMessageRequest is the body for sending a message to a conversation.
// ModelProvider and ModelName together override the resolved configuration
// for this message only; ModelParams adjusts parameters at any tier.
type SendMessageRequest struct {
	Content       string                 `json:"content" binding:"required"`
	ModelProvider string                 `json:"modelProvider,omitempty"`
	ModelName     string                 `json:"modelName,omitempty"`
	ModelParams   map[string]interface{} `json:"modelParams,omitempty"`
	ApplicationID string                 `json:"applicationId,omitempty"`
}

// ListMessagesQuery is the query string for listing messages.
type ListMessagesQuery struct {
	Limit  int64 `form:"limit,default=50" binding:"min=0,max=200"`
	Offset int64 `form:"offset,default=0" binding:"min=0"`
}

// CreateConversationRequest is the body for opening a conversation.
type CreateConversationRequest struct {
	Title string `json:"title,omitempty"`
}
