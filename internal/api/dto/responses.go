package dto

import "github.com/chatforge/chat-service/internal/domain/models"

// SendMessageResponse carries both persisted messages of an exchange.
type SendMessageResponse struct {
	UserMessage      *models.Message `json:"userMessage"`
	AssistantMessage *models.Message `json:"assistantMessage"`
}

// ListMessagesResponse is a page of conversation messages.
type ListMessagesResponse struct {
	Messages []*models.Message `json:"messages"`
	Total    int64             `json:"total"`
	Limit    int64             `json:"limit"`
	Offset   int64             `json:"offset"`
}

// HealthResponse reports service and dependency health.
type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}
