package llmprovider

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

	"github.com/nexusrag/core/internal/coreerrors"
)

// ProviderKind selects a concrete endpoint-default variant.
type ProviderKind string

const (
	KindOpenAI   ProviderKind = "openai"
	KindDeepSeek ProviderKind = "deepseek"
	KindLiteLLM  ProviderKind = "litellm"
	KindGeneric  ProviderKind = "generic"
)

// defaultEndpoints gives each known kind its conventional base URL; a
// Config.Endpoint always overrides this when non-empty.
var defaultEndpoints = map[ProviderKind]string{
	KindOpenAI:   "https://api.openai.com/v1",
	KindDeepSeek: "https://api.deepseek.com/v1",
	KindLiteLLM:  "http://localhost:4000",
	KindGeneric:  "",
}

// New resolves kind to a concrete Provider. Only one provider is active
// in a process at a time; callers hold the returned value for the
// lifetime of the configured model.
func New(kind ProviderKind, cfg Config) Provider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoints[kind]
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type client struct {
	cfg        Config
	httpClient *http.Client
}

type chatRequestBody struct {
	Model          string        `json:"model"`
	Messages       []Message     `json:"messages"`
	Stream         bool          `json:"stream"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	StreamOptions  *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatChoice struct {
	Delta        Message `json:"delta"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatCompletionBody struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

func (c *client) buildRequest(ctx context.Context, req Request, stream bool) (*http.Request, error) {
	body := chatRequestBody{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		Stream:      stream,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if stream {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ProtocolError, "encoding chat request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ProtocolError, "building chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return httpReq, nil
}

// Infer issues a single non-streaming completion, retrying on network
// error or a 500/502/503/504 response up to cfg.MaxRetries times; any
// other status, including every 4xx and 429, is returned without retry.
func (c *client) Infer(ctx context.Context, req Request) (*Response, error) {
	var result *Response

	err := withRetry(ctx, c.cfg.MaxRetries, c.cfg.RetryDelay, func() (int, error) {
		httpReq, err := c.buildRequest(ctx, req, false)
		if err != nil {
			return 0, err
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return 0, coreerrors.Wrap(coreerrors.LLMUnavailable, "chat completion request failed", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, coreerrors.Wrap(coreerrors.ProtocolError, "reading chat response", err)
		}

		if resp.StatusCode >= 400 {
			kind := coreerrors.LLMUnavailable
			if resp.StatusCode < 500 {
				kind = coreerrors.ProtocolError
			}
			return resp.StatusCode, coreerrors.New(kind, fmt.Sprintf("chat completion returned %d: %s", resp.StatusCode, truncateForError(body)))
		}

		var parsed chatCompletionBody
		if err := json.Unmarshal(body, &parsed); err != nil {
			return resp.StatusCode, coreerrors.Wrap(coreerrors.ProtocolError, "decoding chat response", err)
		}
		if len(parsed.Choices) == 0 {
			return resp.StatusCode, coreerrors.New(coreerrors.ProtocolError, "chat response has no choices")
		}

		result = &Response{
			Text:         parsed.Choices[0].Message.Content,
			Usage:        parsed.Usage,
			Model:        parsed.Model,
			FinishReason: parsed.Choices[0].FinishReason,
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// InferStream issues a streaming completion, parsing Server-Sent Events
// off the response body and emitting one StreamChunk per event on the
// returned channel. The channel is closed after a done or error chunk.
func (c *client) InferStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	httpReq, err := c.buildRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.LLMUnavailable, "chat completion stream request failed", err)
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, coreerrors.New(coreerrors.LLMUnavailable, fmt.Sprintf("chat completion stream returned %d: %s", resp.StatusCode, truncateForError(body)))
	}

	out := make(chan StreamChunk)
	go c.pumpStream(resp.Body, out)
	return out, nil
}

func (c *client) pumpStream(body io.ReadCloser, out chan<- StreamChunk) {
	defer close(out)
	defer body.Close()

	var usage Usage
	var finishReason string

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			out <- StreamChunk{Type: StreamChunkDone, Usage: usage, FinishReason: finishReason}
			return
		}

		var chunk chatCompletionBody
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			out <- StreamChunk{Type: StreamChunkError, Message: "malformed stream chunk: " + err.Error()}
			return
		}

		if chunk.Usage.TotalTokens > 0 {
			usage = chunk.Usage
		}
		if len(chunk.Choices) > 0 {
			if chunk.Choices[0].FinishReason != "" {
				finishReason = chunk.Choices[0].FinishReason
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				out <- StreamChunk{Type: StreamChunkContent, Content: content}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		out <- StreamChunk{Type: StreamChunkError, Message: "stream read error: " + err.Error()}
		return
	}

	// Upstream closed without a [DONE] sentinel; still report what we have.
	out <- StreamChunk{Type: StreamChunkDone, Usage: usage, FinishReason: finishReason}
}

// Health probes GET /models and treats any 2xx as available.
func (c *client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"/models", nil)
	if err != nil {
		return false
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func truncateForError(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
