// Package providers implements the chat completion clients for the
// supported AI model backends.
package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatforge/chat-service/internal/domain/models"
)

// Usage is the token accounting reported by a provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a complete, non-streamed chat completion.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Chunk is one element of a streamed completion. Exactly one terminal chunk
// is sent per stream: either Done with the final usage and model, or Err.
type Chunk struct {
	Content string
	Done    bool
	Model   string
	Usage   *Usage
	Err     error
}

// ChatRequest is a provider-agnostic completion request.
type ChatRequest struct {
	Model    string
	Messages []models.Turn
	Params   map[string]interface{}
}

// Credentials carries the per-user secrets for a provider.
type Credentials struct {
	APIKey  string
	APIBase string
}

// Provider is a chat completion backend.
type Provider interface {
	// Name returns the registered provider name.
	Name() string

	// ChatCompletion performs a blocking completion, retrying transient
	// failures internally.
	ChatCompletion(ctx context.Context, req *ChatRequest) (*Response, error)

	// ChatCompletionStream starts a streamed completion. The returned
	// channel is closed after the terminal chunk. Transient failures are
	// only retried while establishing the stream, never mid-stream.
	ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan *Chunk, error)
}

// Error is a classified provider failure. Transient errors exhaust the
// retry budget before surfacing; permanent ones surface immediately.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Transient  bool
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error is a retryable provider failure.
// Unclassified errors (network failures wrapped by the HTTP client) count
// as transient.
func IsTransient(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Transient
	}
	return err != nil
}

// transientStatus reports whether an HTTP status from a provider is worth
// retrying.
func transientStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
