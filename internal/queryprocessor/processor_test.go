package queryprocessor

import (
	"context"
	"testing"

	"github.com/nexusrag/core/internal/llmprovider"
	"github.com/nexusrag/core/internal/queue"
	"github.com/nexusrag/core/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	inferFn func(ctx context.Context, req llmprovider.Request) (*llmprovider.Response, error)
}

func (f *fakeProvider) Infer(ctx context.Context, req llmprovider.Request) (*llmprovider.Response, error) {
	return f.inferFn(ctx, req)
}
func (f *fakeProvider) InferStream(ctx context.Context, req llmprovider.Request) (<-chan llmprovider.StreamChunk, error) {
	panic("not used")
}
func (f *fakeProvider) Health(ctx context.Context) bool { return true }

func newProcessor(t *testing.T, cfg Config, provider llmprovider.Provider) *Processor {
	t.Helper()
	limiter := ratelimit.New(10, 10)
	q := queue.New(2, 10)
	return New(cfg, provider, limiter, q)
}

func TestProcess_ShortQueryReturnsOriginal(t *testing.T) {
	p := newProcessor(t, DefaultConfig(), nil)
	r := p.Process(context.Background(), "hi")
	assert.Equal(t, MethodOriginal, r.Method)
	assert.Equal(t, "hi", r.ProcessedQuery)
}

func TestProcess_NoProviderDegradesToOriginal(t *testing.T) {
	p := newProcessor(t, DefaultConfig(), nil)
	r := p.Process(context.Background(), "find me some documents")
	assert.Equal(t, MethodOriginal, r.Method)
}

func TestProcess_ExpansionParsesJSON(t *testing.T) {
	provider := &fakeProvider{inferFn: func(ctx context.Context, req llmprovider.Request) (*llmprovider.Response, error) {
		return &llmprovider.Response{Text: `{"intent":"lookup","primary_query":"refined query","expanded_queries":["variant a","variant b"]}`}, nil
	}}
	p := newProcessor(t, DefaultConfig(), provider)

	r := p.Process(context.Background(), "original query text")
	require.Equal(t, MethodLLM, r.Method)
	assert.Equal(t, "refined query", r.ProcessedQuery)
	assert.Equal(t, "lookup", r.QueryIntent)
	assert.Contains(t, r.ExpandedQueries, "variant a")
	assert.Contains(t, r.ExpandedQueries, "original query text")
}

func TestProcess_ExpansionParsesFencedJSON(t *testing.T) {
	provider := &fakeProvider{inferFn: func(ctx context.Context, req llmprovider.Request) (*llmprovider.Response, error) {
		return &llmprovider.Response{Text: "Here is the result:\n```json\n{\"primary_query\":\"fenced query\",\"expanded_queries\":[]}\n```"}, nil
	}}
	p := newProcessor(t, DefaultConfig(), provider)

	r := p.Process(context.Background(), "original query text")
	require.Equal(t, MethodLLM, r.Method)
	assert.Equal(t, "fenced query", r.ProcessedQuery)
}

func TestProcess_ExpansionCapsAtMaxQueries(t *testing.T) {
	provider := &fakeProvider{inferFn: func(ctx context.Context, req llmprovider.Request) (*llmprovider.Response, error) {
		return &llmprovider.Response{Text: `{"primary_query":"p","expanded_queries":["a","b","c","d","e"]}`}, nil
	}}
	cfg := Config{ExpansionEnabled: true, MaxQueries: 2}
	p := newProcessor(t, cfg, provider)

	r := p.Process(context.Background(), "original query text")
	// primary + up to MaxQueries expanded + original, at most MaxQueries+2
	assert.LessOrEqual(t, len(r.ExpandedQueries), cfg.MaxQueries+2)
}

func TestProcess_FallsBackToRewriteOnBadExpansionJSON(t *testing.T) {
	provider := &fakeProvider{inferFn: func(ctx context.Context, req llmprovider.Request) (*llmprovider.Response, error) {
		if req.MaxTokens == 300 {
			return &llmprovider.Response{Text: "not json at all"}, nil
		}
		return &llmprovider.Response{Text: "a tighter rewritten query"}, nil
	}}
	p := newProcessor(t, DefaultConfig(), provider)

	r := p.Process(context.Background(), "original query text")
	assert.Equal(t, MethodLLM, r.Method)
	assert.Equal(t, "a tighter rewritten query", r.ProcessedQuery)
}

func TestProcess_RewriteRejectsUnchangedOrTooShort(t *testing.T) {
	provider := &fakeProvider{inferFn: func(ctx context.Context, req llmprovider.Request) (*llmprovider.Response, error) {
		return &llmprovider.Response{Text: "original query text"}, nil
	}}
	cfg := Config{ExpansionEnabled: false}
	p := newProcessor(t, cfg, provider)

	r := p.Process(context.Background(), "original query text")
	assert.Equal(t, MethodOriginal, r.Method)
}

func TestProcess_LLMErrorDegradesSilently(t *testing.T) {
	provider := &fakeProvider{inferFn: func(ctx context.Context, req llmprovider.Request) (*llmprovider.Response, error) {
		return nil, assertError{}
	}}
	p := newProcessor(t, DefaultConfig(), provider)

	r := p.Process(context.Background(), "original query text")
	assert.Equal(t, MethodOriginal, r.Method)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestProcess_RewriteRequiresItsOwnAdmissionCheck(t *testing.T) {
	limiter := ratelimit.New(1, 0) // exactly one token, no refill
	q := queue.New(1, 1)
	var rewriteAttempted bool
	provider := &fakeProvider{inferFn: func(ctx context.Context, req llmprovider.Request) (*llmprovider.Response, error) {
		if req.MaxTokens == 300 {
			return &llmprovider.Response{Text: "not json at all"}, nil
		}
		rewriteAttempted = true
		return &llmprovider.Response{Text: "a tighter rewritten query"}, nil
	}}
	p := New(DefaultConfig(), provider, limiter, q)

	r := p.Process(context.Background(), "original query text")
	assert.Equal(t, MethodOriginal, r.Method)
	assert.False(t, rewriteAttempted, "rewrite must not run once the single token was spent on expansion")
}

func TestProcess_RateLimiterRejectionDegrades(t *testing.T) {
	limiter := ratelimit.New(1, 0)
	limiter.TryAcquire() // drain the single token
	q := queue.New(1, 1)
	provider := &fakeProvider{inferFn: func(ctx context.Context, req llmprovider.Request) (*llmprovider.Response, error) {
		t.Fatal("should never be called when rate limiter rejects")
		return nil, nil
	}}
	p := New(DefaultConfig(), provider, limiter, q)

	r := p.Process(context.Background(), "original query text")
	assert.Equal(t, MethodOriginal, r.Method)
}
