// Package llmprovider implements an OpenAI-compatible chat-completion
// client: blocking inference, SSE streaming inference, retry with
// exponential backoff, and a health probe. Adapted from the retry and
// SSE-parsing patterns of an OpenAI-style provider adapter, re-pointed at
// a minimal {text, usage, model, finish_reason} response shape instead of
// a tool-call-capable chat response.
package llmprovider

import (
	"context"
	"time"
)

// Message is one turn in a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat-completion request.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int // 0 means unset
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of a blocking Infer call.
type Response struct {
	Text         string
	Usage        Usage
	Model        string
	FinishReason string
}

// StreamChunkType discriminates the kind of event on an InferStream channel.
type StreamChunkType string

const (
	StreamChunkContent StreamChunkType = "content"
	StreamChunkDone    StreamChunkType = "done"
	StreamChunkError   StreamChunkType = "error"
)

// StreamChunk is one event emitted by InferStream.
type StreamChunk struct {
	Type         StreamChunkType
	Content      string
	Usage        Usage
	FinishReason string
	Message      string // populated when Type == StreamChunkError
}

// Config configures a Provider.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

// Provider is the capability set every concrete variant implements.
type Provider interface {
	Infer(ctx context.Context, req Request) (*Response, error)
	InferStream(ctx context.Context, req Request) (<-chan StreamChunk, error)
	Health(ctx context.Context) bool
}
