// Package chatorchestrator drives a single chat run end to end: query
// preprocessing, retrieval, prompt assembly, and LLM generation, emitting
// a strictly ordered typed event stream. Adapted from the framing
// discipline of a Server-Sent-Events handler — an immediate opening
// event, one message per content delta, and a guaranteed terminal event —
// generalized here to the project's own event taxonomy instead of a
// JSON-RPC message envelope.
package chatorchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nexusrag/core/internal/coreerrors"
	"github.com/nexusrag/core/internal/llmprovider"
	"github.com/nexusrag/core/internal/queryprocessor"
	"github.com/nexusrag/core/internal/queue"
	"github.com/nexusrag/core/internal/ratelimit"
	"github.com/nexusrag/core/internal/searchengine"
)

// Config carries the orchestrator's defaults, sourced from the
// chat.{...} configuration knobs.
type Config struct {
	DefaultTemperature    float64
	DefaultMaxTokens      int
	DefaultSearchLimit    int
	IncludeSourcesDefault bool
	SystemPromptTemplate  string // must contain "{context}"
}

func DefaultConfig() Config {
	return Config{
		DefaultTemperature:    0.7,
		DefaultMaxTokens:      2048,
		DefaultSearchLimit:    5,
		IncludeSourcesDefault: true,
		SystemPromptTemplate:  "You are a helpful assistant. Use the following context to answer the user's question.\n\n{context}",
	}
}

// Request is a single chat turn.
type Request struct {
	ThreadID       string
	RunID          string
	MessageID      string
	UserID         string
	Message        string
	SearchLimit    int
	Temperature    float64
	MaxTokens      int
	IncludeSources *bool
}

// Response is the result of the synchronous Chat entry point.
type Response struct {
	ThreadID  string
	RunID     string
	MessageID string
	Response  string
	Sources   []KnowledgeSource
	Usage     llmprovider.Usage
}

// Orchestrator drives chat runs.
type Orchestrator struct {
	cfg         Config
	provider    llmprovider.Provider
	chatLimiter *ratelimit.Limiter
	llmQueue    *queue.Queue
	queryProc   *queryprocessor.Processor
	search      *searchengine.Engine
}

// New creates an Orchestrator.
func New(cfg Config, provider llmprovider.Provider, chatLimiter *ratelimit.Limiter, llmQueue *queue.Queue, queryProc *queryprocessor.Processor, search *searchengine.Engine) *Orchestrator {
	return &Orchestrator{cfg: cfg, provider: provider, chatLimiter: chatLimiter, llmQueue: llmQueue, queryProc: queryProc, search: search}
}

func (o *Orchestrator) resolveIDs(req Request) (threadID, runID, messageID string) {
	threadID, runID, messageID = req.ThreadID, req.RunID, req.MessageID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}
	return
}

func (o *Orchestrator) resolveOptions(req Request) (temperature float64, maxTokens, searchLimit int, includeSources bool) {
	temperature = o.cfg.DefaultTemperature
	if req.Temperature != 0 {
		temperature = req.Temperature
	}
	maxTokens = o.cfg.DefaultMaxTokens
	if req.MaxTokens != 0 {
		maxTokens = req.MaxTokens
	}
	searchLimit = o.cfg.DefaultSearchLimit
	if req.SearchLimit != 0 {
		searchLimit = req.SearchLimit
	}
	includeSources = o.cfg.IncludeSourcesDefault
	if req.IncludeSources != nil {
		includeSources = *req.IncludeSources
	}
	return
}

// ChatStream runs the full streaming algorithm, sending events on the
// returned channel. A non-nil error means admission was rejected before
// any event was emitted — the channel is nil and the framing layer
// should surface a rate-limit error directly rather than read a stream.
// Otherwise the channel is always terminated by exactly one of
// RUN_FINISHED or RUN_ERROR, then closed.
func (o *Orchestrator) ChatStream(ctx context.Context, req Request) (<-chan Event, error) {
	if !o.chatLimiter.TryAcquire() {
		return nil, coreerrors.New(coreerrors.RateLimited, "chat admission rejected")
	}

	out := make(chan Event)
	go o.runStream(ctx, req, out)
	return out, nil
}

func (o *Orchestrator) runStream(ctx context.Context, req Request, out chan<- Event) {
	defer close(out)

	threadID, runID, messageID := o.resolveIDs(req)
	temperature, maxTokens, searchLimit, includeSources := o.resolveOptions(req)

	out <- Event{Type: EventRunStarted, ThreadID: threadID, RunID: runID}

	prepared, err := o.prepare(ctx, req.UserID, req.Message, searchLimit)
	if err != nil {
		out <- Event{Type: EventRunError, ThreadID: threadID, RunID: runID, Error: err.Error()}
		return
	}

	if includeSources && len(prepared.sources) > 0 {
		out <- Event{Type: EventCustom, ThreadID: threadID, RunID: runID, Name: "knowledge_sources", Value: prepared.sources}
	}

	out <- Event{Type: EventTextMessageStart, ThreadID: threadID, RunID: runID, MessageID: messageID, Role: "assistant"}

	if o.provider == nil {
		out <- Event{Type: EventRunError, ThreadID: threadID, RunID: runID, Error: errNoProvider.Error()}
		return
	}

	stream, err := o.llmQueue.Submit(func() (interface{}, error) {
		return o.provider.InferStream(ctx, llmprovider.Request{
			Messages: []llmprovider.Message{
				{Role: "system", Content: prepared.systemPrompt},
				{Role: "user", Content: req.Message},
			},
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
	})
	if err != nil {
		out <- Event{Type: EventRunError, ThreadID: threadID, RunID: runID, Error: err.Error()}
		return
	}

	result := <-stream.Done
	if result.Err != nil {
		out <- Event{Type: EventRunError, ThreadID: threadID, RunID: runID, Error: result.Err.Error()}
		return
	}
	chunks := result.Value.(<-chan llmprovider.StreamChunk)

	var usage llmprovider.Usage
	var gotUsage bool
	for chunk := range chunks {
		switch chunk.Type {
		case llmprovider.StreamChunkContent:
			out <- Event{Type: EventTextMessageChunk, ThreadID: threadID, RunID: runID, MessageID: messageID, Delta: chunk.Content}
		case llmprovider.StreamChunkDone:
			usage, gotUsage = chunk.Usage, true
		case llmprovider.StreamChunkError:
			out <- Event{Type: EventRunError, ThreadID: threadID, RunID: runID, Error: chunk.Message}
			return
		}
	}

	out <- Event{Type: EventTextMessageEnd, ThreadID: threadID, RunID: runID, MessageID: messageID}
	if gotUsage {
		out <- Event{Type: EventCustom, ThreadID: threadID, RunID: runID, Name: "token_usage", Value: usage}
	}
	out <- Event{Type: EventRunFinished, ThreadID: threadID, RunID: runID}
}

// Chat runs the synchronous variant: identical preparation, a single
// blocking Infer call, no event stream.
func (o *Orchestrator) Chat(ctx context.Context, req Request) (*Response, error) {
	threadID, runID, messageID := o.resolveIDs(req)
	temperature, maxTokens, searchLimit, _ := o.resolveOptions(req)

	if !o.chatLimiter.TryAcquire() {
		return nil, coreerrors.New(coreerrors.RateLimited, "chat admission rejected")
	}

	if o.provider == nil {
		return nil, errNoProvider
	}

	prepared, err := o.prepare(ctx, req.UserID, req.Message, searchLimit)
	if err != nil {
		return nil, err
	}

	future, err := o.llmQueue.Submit(func() (interface{}, error) {
		return o.provider.Infer(ctx, llmprovider.Request{
			Messages: []llmprovider.Message{
				{Role: "system", Content: prepared.systemPrompt},
				{Role: "user", Content: req.Message},
			},
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
	})
	if err != nil {
		return nil, err
	}

	result := <-future.Done
	if result.Err != nil {
		return nil, result.Err
	}
	resp := result.Value.(*llmprovider.Response)

	return &Response{
		ThreadID:  threadID,
		RunID:     runID,
		MessageID: messageID,
		Response:  resp.Text,
		Sources:   prepared.sources,
		Usage:     resp.Usage,
	}, nil
}

var errNoProvider = coreerrors.New(coreerrors.LLMUnavailable, "no LLM provider configured")

type preparedContext struct {
	systemPrompt string
	sources      []KnowledgeSource
}

func (o *Orchestrator) prepare(ctx context.Context, userID, message string, searchLimit int) (*preparedContext, error) {
	var pre *searchengine.Preprocessed
	if o.queryProc != nil {
		qr := o.queryProc.Process(ctx, message)
		variants := qr.ExpandedQueries
		if len(variants) == 0 {
			variants = []string{qr.ProcessedQuery}
		}
		pre = &searchengine.Preprocessed{Query: qr.ProcessedQuery, Variants: variants}
	}

	var chunks []searchengine.Chunk
	if o.search != nil {
		resp, err := o.search.Search(ctx, userID, message, searchLimit, 0, pre)
		if err != nil {
			return nil, err
		}
		chunks = resp.Chunks
	}

	sources := make([]KnowledgeSource, len(chunks))
	for i, c := range chunks {
		sources[i] = KnowledgeSource{
			ChunkID:       c.ChunkID,
			DocumentTitle: c.DocumentTitle,
			ContentPreview: previewOf(c.Text),
			Score:         c.Score,
		}
	}

	contextText := buildContextText(chunks)
	systemPrompt := strings.Replace(o.cfg.SystemPromptTemplate, "{context}", contextText, 1)

	return &preparedContext{systemPrompt: systemPrompt, sources: sources}, nil
}

func buildContextText(chunks []searchengine.Chunk) string {
	if len(chunks) == 0 {
		return "no context"
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		label := c.DocumentTitle
		if label == "" {
			label = fmt.Sprintf("%d", i)
		}
		parts[i] = fmt.Sprintf("【%s】\n%s", label, c.Text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func previewOf(text string) string {
	const max = 100
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + "..."
}
