package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const (
	// retryMaxAttempts is the total attempt budget per call.
	retryMaxAttempts = 3

	retryInitialInterval = 2 * time.Second
	retryMaxInterval     = 10 * time.Second
)

// openAICompatible speaks the OpenAI chat completions wire protocol. Four
// of the five supported backends expose this API verbatim and differ only
// in base URL.
type openAICompatible struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client

	// Shrunk in tests to keep retry loops fast.
	initialInterval time.Duration
	maxInterval     time.Duration
}

func newOpenAICompatible(name, defaultBase string, creds Credentials) (*openAICompatible, error) {
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", name)
	}

	baseURL := defaultBase
	if creds.APIBase != "" {
		baseURL = strings.TrimRight(creds.APIBase, "/")
	}

	return &openAICompatible{
		name:            name,
		apiKey:          creds.APIKey,
		baseURL:         baseURL,
		client:          &http.Client{Timeout: 5 * time.Minute},
		initialInterval: retryInitialInterval,
		maxInterval:     retryMaxInterval,
	}, nil
}

// Name returns the registered provider name.
func (p *openAICompatible) Name() string {
	return p.name
}

func (p *openAICompatible) backoff(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.initialInterval
	expo.MaxInterval = p.maxInterval
	expo.Multiplier = 2
	return backoff.WithContext(backoff.WithMaxRetries(expo, retryMaxAttempts-1), ctx)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

type chatStreamChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type chatStreamChunk struct {
	Model   string             `json:"model"`
	Choices []chatStreamChoice `json:"choices"`
	Usage   *Usage             `json:"usage"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *openAICompatible) requestBody(req *ChatRequest, stream bool) ([]byte, error) {
	body := make(map[string]interface{}, len(req.Params)+4)
	for k, v := range req.Params {
		body[k] = v
	}

	messages := make([]chatMessage, len(req.Messages))
	for i, turn := range req.Messages {
		messages[i] = chatMessage{Role: string(turn.Role), Content: turn.Content}
	}

	body["model"] = req.Model
	body["messages"] = messages
	body["stream"] = stream
	if stream {
		body["stream_options"] = map[string]interface{}{"include_usage": true}
	} else {
		delete(body, "stream_options")
	}

	return json.Marshal(body)
}

func (p *openAICompatible) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	return httpReq, nil
}

// statusError converts a non-2xx response into a classified provider error.
func (p *openAICompatible) statusError(resp *http.Response) *Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(data))
	var body apiErrorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		message = body.Error.Message
	}

	return &Error{
		Provider:   p.name,
		StatusCode: resp.StatusCode,
		Message:    message,
		Transient:  transientStatus(resp.StatusCode),
	}
}

func permanentIfNotTransient(err error) error {
	if IsTransient(err) {
		return err
	}
	return backoff.Permanent(err)
}

// ChatCompletion performs a blocking completion with retry on transient
// failures.
func (p *openAICompatible) ChatCompletion(ctx context.Context, req *ChatRequest) (*Response, error) {
	body, err := p.requestBody(req, false)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var result *Response
	operation := func() error {
		httpReq, err := p.newRequest(ctx, body)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return &Error{Provider: p.name, Message: err.Error(), Transient: true, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return permanentIfNotTransient(p.statusError(resp))
		}

		var completion chatCompletionResponse
		if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
			return backoff.Permanent(&Error{Provider: p.name, Message: fmt.Sprintf("unreadable response: %v", err), Err: err})
		}
		if len(completion.Choices) == 0 {
			return backoff.Permanent(&Error{Provider: p.name, Message: "response contained no choices"})
		}

		result = &Response{
			Content: completion.Choices[0].Message.Content,
			Model:   completion.Model,
			Usage:   completion.Usage,
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("provider", p.name).Dur("wait", wait).Msg("Retrying chat completion")
	}

	if err := backoff.RetryNotify(operation, p.backoff(ctx), notify); err != nil {
		return nil, err
	}
	return result, nil
}

// ChatCompletionStream starts a streamed completion. Only stream
// establishment is retried; once bytes are flowing a failure surfaces as
// an error chunk.
func (p *openAICompatible) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan *Chunk, error) {
	body, err := p.requestBody(req, true)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var resp *http.Response
	operation := func() error {
		httpReq, err := p.newRequest(ctx, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Accept", "text/event-stream")

		r, err := p.client.Do(httpReq)
		if err != nil {
			return &Error{Provider: p.name, Message: err.Error(), Transient: true, Err: err}
		}
		if r.StatusCode != http.StatusOK {
			defer r.Body.Close()
			return permanentIfNotTransient(p.statusError(r))
		}

		resp = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("provider", p.name).Dur("wait", wait).Msg("Retrying stream establishment")
	}

	if err := backoff.RetryNotify(operation, p.backoff(ctx), notify); err != nil {
		return nil, err
	}

	ch := make(chan *Chunk, 64)
	go p.readStream(ctx, resp, ch)
	return ch, nil
}

func (p *openAICompatible) readStream(ctx context.Context, resp *http.Response, ch chan<- *Chunk) {
	defer close(ch)
	defer resp.Body.Close()

	var (
		model string
		usage *Usage
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}

		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}

		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		select {
		case ch <- &Chunk{Content: chunk.Choices[0].Delta.Content}:
		case <-ctx.Done():
			// The consumer may already be gone; never block on the
			// way out.
			select {
			case ch <- &Chunk{Err: ctx.Err()}:
			default:
			}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case ch <- &Chunk{Err: &Error{Provider: p.name, Message: fmt.Sprintf("stream read failed: %v", err), Transient: true, Err: err}}:
		case <-ctx.Done():
		}
		return
	}

	select {
	case ch <- &Chunk{Done: true, Model: model, Usage: usage}:
	case <-ctx.Done():
	}
}

var _ Provider = (*openAICompatible)(nil)
