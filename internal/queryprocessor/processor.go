// Package queryprocessor rewrites or expands a user's raw search query via
// an LLM, silently degrading to the original query whenever the LLM is
// unavailable, rate-limited, slow to respond, or returns something that
// cannot be parsed.
package queryprocessor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nexusrag/core/internal/llmprovider"
	"github.com/nexusrag/core/internal/queue"
	"github.com/nexusrag/core/internal/ratelimit"
)

// Method reports how the processed query was produced.
type Method string

const (
	MethodLLM      Method = "llm"
	MethodOriginal Method = "original"
)

// Result is the output of Process.
type Result struct {
	ProcessedQuery string
	Method         Method
	ExpandedQueries []string
	QueryIntent    string
}

// Config controls expansion behavior.
type Config struct {
	ExpansionEnabled bool
	MaxQueries       int // cap on expanded_queries, default 3
}

func DefaultConfig() Config {
	return Config{ExpansionEnabled: true, MaxQueries: 3}
}

// Processor rewrites or expands queries through an LLM provider, gated by
// a rate limiter and run through a bounded queue.
type Processor struct {
	cfg      Config
	provider llmprovider.Provider // nil means no LLM configured
	limiter  *ratelimit.Limiter
	queue    *queue.Queue
}

// New creates a Processor. provider may be nil to disable LLM-backed
// processing entirely (every query degrades to MethodOriginal).
func New(cfg Config, provider llmprovider.Provider, limiter *ratelimit.Limiter, q *queue.Queue) *Processor {
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = 3
	}
	return &Processor{cfg: cfg, provider: provider, limiter: limiter, queue: q}
}

// Process runs the rewrite/expand algorithm, degrading silently to the
// original query on any failure or unavailability.
func (p *Processor) Process(ctx context.Context, query string) Result {
	if len(query) < 5 {
		return Result{ProcessedQuery: query, Method: MethodOriginal}
	}

	if p.provider == nil {
		return Result{ProcessedQuery: query, Method: MethodOriginal}
	}

	if p.cfg.ExpansionEnabled && p.limiter.TryAcquire() {
		if result, ok := p.tryExpand(ctx, query); ok {
			return result
		}
	}

	if p.limiter.TryAcquire() {
		if result, ok := p.tryRewrite(ctx, query); ok {
			return result
		}
	}

	return Result{ProcessedQuery: query, Method: MethodOriginal}
}

type expansionPayload struct {
	Intent          string   `json:"intent"`
	PrimaryQuery    string   `json:"primary_query"`
	ExpandedQueries []string `json:"expanded_queries"`
}

func (p *Processor) tryExpand(ctx context.Context, query string) (Result, bool) {
	prompt := "Given the search query below, respond with JSON {\"intent\": string, \"primary_query\": string, \"expanded_queries\": [string]}.\nQuery: " + query

	text, err := p.infer(ctx, prompt, 0.3, 300)
	if err != nil {
		return Result{}, false
	}

	var payload expansionPayload
	if !parseJSONDefensive(text, &payload) {
		return Result{}, false
	}
	if payload.PrimaryQuery == "" {
		return Result{}, false
	}

	queries := []string{payload.PrimaryQuery}
	seen := map[string]bool{payload.PrimaryQuery: true}
	for _, q := range payload.ExpandedQueries {
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		queries = append(queries, q)
		if len(queries) >= p.cfg.MaxQueries+1 {
			break
		}
	}
	if !seen[query] {
		queries = append(queries, query)
	}

	return Result{
		ProcessedQuery:  payload.PrimaryQuery,
		Method:          MethodLLM,
		ExpandedQueries: queries,
		QueryIntent:     payload.Intent,
	}, true
}

func (p *Processor) tryRewrite(ctx context.Context, query string) (Result, bool) {
	prompt := "Rewrite the following search query to be more precise, returning only the rewritten query text with no explanation.\nQuery: " + query

	text, err := p.infer(ctx, prompt, 0.1, 100)
	if err != nil {
		return Result{}, false
	}

	rewritten := strings.TrimSpace(text)
	if len(rewritten) < 2 || rewritten == query {
		return Result{}, false
	}
	return Result{ProcessedQuery: rewritten, Method: MethodLLM}, true
}

func (p *Processor) infer(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	future, err := p.queue.Submit(func() (interface{}, error) {
		resp, err := p.provider.Infer(ctx, llmprovider.Request{
			Messages: []llmprovider.Message{
				{Role: "user", Content: prompt},
			},
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return nil, err
		}
		return resp.Text, nil
	})
	if err != nil {
		return "", err
	}

	result := <-future.Done
	if result.Err != nil {
		return "", result.Err
	}
	return result.Value.(string), nil
}

// parseJSONDefensive decodes text into out, accepting bare JSON, JSON
// fenced in ```json ... ``` blocks, or the largest {...} substring.
func parseJSONDefensive(text string, out interface{}) bool {
	candidates := []string{strings.TrimSpace(text)}

	if fenced := extractFenced(text); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if largest := extractLargestBraceSpan(text); largest != "" {
		candidates = append(candidates, largest)
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		if json.Unmarshal([]byte(c), out) == nil {
			return true
		}
	}
	return false
}

func extractFenced(text string) string {
	const fence = "```json"
	start := strings.Index(text, fence)
	if start == -1 {
		return ""
	}
	start += len(fence)
	end := strings.Index(text[start:], "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(text[start : start+end])
}

func extractLargestBraceSpan(text string) string {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last == -1 || last <= first {
		return ""
	}
	return text[first : last+1]
}
