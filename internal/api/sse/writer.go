// Package sse provides Server-Sent Events support for streaming responses.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EventType represents the type of SSE event.
type EventType string

const (
	// EventMessage is a chat content chunk event.
	EventMessage EventType = "message"
	// EventError is an error event.
	EventError EventType = "error"
	// EventDone is the stream completion event.
	EventDone EventType = "done"
)

// Chunk is the payload of a message event.
type Chunk struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

// Completion is the payload of the terminal done event. It identifies the
// persisted assistant message so the client can reconcile its local state.
type Completion struct {
	Done          bool   `json:"done"`
	MessageID     string `json:"messageId"`
	ModelProvider string `json:"modelProvider,omitempty"`
	ModelName     string `json:"modelName,omitempty"`
	TotalTokens   int    `json:"totalTokens,omitempty"`
}

// ErrorEvent is the payload of an error event. Errors always terminate
// the stream, so Done is marked in the payload as well.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Done    bool   `json:"done"`
}

// Writer writes Server-Sent Events to an HTTP response.
type Writer struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewWriter creates a new SSE writer and emits the stream headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &Writer{writer: w, flusher: flusher}, nil
}

// WriteEvent writes an SSE event with the given type and data.
func (w *Writer) WriteEvent(eventType EventType, data string) error {
	_, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", eventType, data)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteJSON writes an SSE event with JSON-encoded data.
func (w *Writer) WriteJSON(eventType EventType, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return w.WriteEvent(eventType, string(jsonData))
}

// WriteChunk writes one content chunk.
func (w *Writer) WriteChunk(content string) error {
	return w.WriteJSON(EventMessage, &Chunk{Content: content})
}

// WriteCompletion writes the terminal done event.
func (w *Writer) WriteCompletion(completion *Completion) error {
	completion.Done = true
	return w.WriteJSON(EventDone, completion)
}

// WriteError writes the terminal error event.
func (w *Writer) WriteError(code, message, details string) error {
	return w.WriteJSON(EventError, &ErrorEvent{
		Code:    code,
		Message: message,
		Details: details,
		Done:    true,
	})
}
