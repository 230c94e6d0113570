package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQwen(t *testing.T, url string) *qwen {
	t.Helper()
	p, err := newQwen(Credentials{APIKey: "sk-qwen", APIBase: url})
	require.NoError(t, err)
	p.initialInterval = time.Millisecond
	p.maxInterval = 5 * time.Millisecond
	return p
}

func TestQwenChatCompletion_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services/aigc/text-generation/generation", r.URL.Path)
		assert.Equal(t, "Bearer sk-qwen", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "qwen-max", body["model"])

		input := body["input"].(map[string]interface{})
		messages := input["messages"].([]interface{})
		assert.Len(t, messages, 1)

		parameters := body["parameters"].(map[string]interface{})
		assert.Equal(t, "message", parameters["result_format"])

		fmt.Fprint(w, `{
			"request_id": "req-1",
			"output": {"choices": [{"message": {"role": "assistant", "content": "ni hao"}, "finish_reason": "stop"}]},
			"usage": {"input_tokens": 12, "output_tokens": 4}
		}`)
	}))
	defer server.Close()

	p := testQwen(t, server.URL)

	resp, err := p.ChatCompletion(context.Background(), &ChatRequest{
		Model:    "qwen-max",
		Messages: chatReq().Messages,
	})
	require.NoError(t, err)
	assert.Equal(t, "ni hao", resp.Content)
	assert.Equal(t, "qwen-max", resp.Model)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 4, resp.Usage.CompletionTokens)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
}

func TestQwenChatCompletion_ErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code": "InvalidParameter", "message": "model is required", "request_id": "req-2"}`)
	}))
	defer server.Close()

	p := testQwen(t, server.URL)

	_, err := p.ChatCompletion(context.Background(), chatReq())
	require.Error(t, err)

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.False(t, provErr.Transient)
	assert.Contains(t, provErr.Message, "InvalidParameter")
}

func TestQwenChatCompletionStream_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "enable", r.Header.Get("X-DashScope-SSE"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		parameters := body["parameters"].(map[string]interface{})
		assert.Equal(t, true, parameters["incremental_output"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data:{"output": {"choices": [{"message": {"content": "ni"}, "finish_reason": "null"}]}}`+"\n\n")
		fmt.Fprint(w, `data:{"output": {"choices": [{"message": {"content": " hao"}, "finish_reason": "stop"}]}, "usage": {"input_tokens": 6, "output_tokens": 2, "total_tokens": 8}}`+"\n\n")
	}))
	defer server.Close()

	p := testQwen(t, server.URL)

	chunks, err := p.ChatCompletionStream(context.Background(), &ChatRequest{
		Model:    "qwen-max",
		Messages: chatReq().Messages,
	})
	require.NoError(t, err)

	var content string
	var done *Chunk
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		if chunk.Done {
			done = chunk
			continue
		}
		content += chunk.Content
	}

	assert.Equal(t, "ni hao", content)
	require.NotNil(t, done)
	assert.Equal(t, "qwen-max", done.Model)
	require.NotNil(t, done.Usage)
	assert.Equal(t, 8, done.Usage.TotalTokens)
}

func TestNewQwen_RequiresAPIKey(t *testing.T) {
	_, err := newQwen(Credentials{})
	assert.Error(t, err)
}
