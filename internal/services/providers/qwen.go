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

const qwenDefaultBase = "https://dashscope.aliyuncs.com/api/v1"

// qwen speaks the DashScope native text-generation API. Unlike the other
// backends it nests messages under an input object and reports usage with
// its own field names, so it gets a dedicated client.
type qwen struct {
	apiKey  string
	baseURL string
	client  *http.Client

	initialInterval time.Duration
	maxInterval     time.Duration
}

func newQwen(creds Credentials) (*qwen, error) {
	if creds.APIKey == "" {
		return nil, fmt.Errorf("qwen: API key is required")
	}

	baseURL := qwenDefaultBase
	if creds.APIBase != "" {
		baseURL = strings.TrimRight(creds.APIBase, "/")
	}

	return &qwen{
		apiKey:          creds.APIKey,
		baseURL:         baseURL,
		client:          &http.Client{Timeout: 5 * time.Minute},
		initialInterval: retryInitialInterval,
		maxInterval:     retryMaxInterval,
	}, nil
}

// Name returns the registered provider name.
func (p *qwen) Name() string {
	return "qwen"
}

func (p *qwen) backoff(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.initialInterval
	expo.MaxInterval = p.maxInterval
	expo.Multiplier = 2
	return backoff.WithContext(backoff.WithMaxRetries(expo, retryMaxAttempts-1), ctx)
}

type qwenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

func (u *qwenUsage) usage() *Usage {
	if u == nil {
		return nil
	}
	total := u.TotalTokens
	if total == 0 {
		total = u.InputTokens + u.OutputTokens
	}
	return &Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      total,
	}
}

type qwenResponse struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Output    struct {
		Choices []struct {
			Message      chatMessage `json:"message"`
			FinishReason string      `json:"finish_reason"`
		} `json:"choices"`
	} `json:"output"`
	Usage *qwenUsage `json:"usage"`
}

func (p *qwen) requestBody(req *ChatRequest, stream bool) ([]byte, error) {
	messages := make([]chatMessage, len(req.Messages))
	for i, turn := range req.Messages {
		messages[i] = chatMessage{Role: string(turn.Role), Content: turn.Content}
	}

	parameters := make(map[string]interface{}, len(req.Params)+2)
	for k, v := range req.Params {
		parameters[k] = v
	}
	parameters["result_format"] = "message"
	if stream {
		parameters["incremental_output"] = true
	}

	return json.Marshal(map[string]interface{}{
		"model":      req.Model,
		"input":      map[string]interface{}{"messages": messages},
		"parameters": parameters,
	})
}

func (p *qwen) newRequest(ctx context.Context, body []byte, stream bool) (*http.Request, error) {
	url := p.baseURL + "/services/aigc/text-generation/generation"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if stream {
		httpReq.Header.Set("X-DashScope-SSE", "enable")
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

func (p *qwen) statusError(resp *http.Response) *Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(data))
	var body qwenResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		message = fmt.Sprintf("%s: %s", body.Code, body.Message)
	}

	return &Error{
		Provider:   "qwen",
		StatusCode: resp.StatusCode,
		Message:    message,
		Transient:  transientStatus(resp.StatusCode),
	}
}

// ChatCompletion performs a blocking completion with retry on transient
// failures.
func (p *qwen) ChatCompletion(ctx context.Context, req *ChatRequest) (*Response, error) {
	body, err := p.requestBody(req, false)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var result *Response
	operation := func() error {
		httpReq, err := p.newRequest(ctx, body, false)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return &Error{Provider: "qwen", Message: err.Error(), Transient: true, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return permanentIfNotTransient(p.statusError(resp))
		}

		var qr qwenResponse
		if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
			return backoff.Permanent(&Error{Provider: "qwen", Message: fmt.Sprintf("unreadable response: %v", err), Err: err})
		}
		if len(qr.Output.Choices) == 0 {
			return backoff.Permanent(&Error{Provider: "qwen", Message: "response contained no choices"})
		}

		result = &Response{
			Content: qr.Output.Choices[0].Message.Content,
			Model:   req.Model,
		}
		if u := qr.Usage.usage(); u != nil {
			result.Usage = *u
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("provider", "qwen").Dur("wait", wait).Msg("Retrying chat completion")
	}

	if err := backoff.RetryNotify(operation, p.backoff(ctx), notify); err != nil {
		return nil, err
	}
	return result, nil
}

// ChatCompletionStream starts a streamed completion over DashScope SSE.
func (p *qwen) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan *Chunk, error) {
	body, err := p.requestBody(req, true)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var resp *http.Response
	operation := func() error {
		httpReq, err := p.newRequest(ctx, body, true)
		if err != nil {
			return backoff.Permanent(err)
		}

		r, err := p.client.Do(httpReq)
		if err != nil {
			return &Error{Provider: "qwen", Message: err.Error(), Transient: true, Err: err}
		}
		if r.StatusCode != http.StatusOK {
			defer r.Body.Close()
			return permanentIfNotTransient(p.statusError(r))
		}

		resp = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("provider", "qwen").Dur("wait", wait).Msg("Retrying stream establishment")
	}

	if err := backoff.RetryNotify(operation, p.backoff(ctx), notify); err != nil {
		return nil, err
	}

	ch := make(chan *Chunk, 64)
	go p.readStream(ctx, resp, req.Model, ch)
	return ch, nil
}

func (p *qwen) readStream(ctx context.Context, resp *http.Response, model string, ch chan<- *Chunk) {
	defer close(ch)
	defer resp.Body.Close()

	var usage *Usage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var qr qwenResponse
		if err := json.Unmarshal([]byte(payload), &qr); err != nil {
			continue
		}

		if u := qr.Usage.usage(); u != nil {
			usage = u
		}

		if len(qr.Output.Choices) == 0 {
			continue
		}
		choice := qr.Output.Choices[0]

		if choice.Message.Content != "" {
			select {
			case ch <- &Chunk{Content: choice.Message.Content}:
			case <-ctx.Done():
				// The consumer may already be gone; never block on
				// the way out.
				select {
				case ch <- &Chunk{Err: ctx.Err()}:
				default:
				}
				return
			}
		}

		// Incremental output signals completion through finish_reason
		// instead of a sentinel line.
		if choice.FinishReason != "" && choice.FinishReason != "null" {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case ch <- &Chunk{Err: &Error{Provider: "qwen", Message: fmt.Sprintf("stream read failed: %v", err), Transient: true, Err: err}}:
		case <-ctx.Done():
		}
		return
	}

	select {
	case ch <- &Chunk{Done: true, Model: model, Usage: usage}:
	case <-ctx.Done():
	}
}

var _ Provider = (*qwen)(nil)
