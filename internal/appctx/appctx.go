// Package appctx assembles the process-wide application context: the
// metadata store, rate limiters, queues, backend client, LLM provider,
// and the processors/orchestrators built from them. Components are
// constructed in dependency order and released in reverse, replacing the
// module-level shared singletons a simpler program might reach for with
// one explicit value a caller constructs, threads through, and closes.
package appctx

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nexusrag/core/internal/chatorchestrator"
	"github.com/nexusrag/core/internal/chunker"
	"github.com/nexusrag/core/internal/config"
	"github.com/nexusrag/core/internal/ingestion"
	"github.com/nexusrag/core/internal/llmprovider"
	"github.com/nexusrag/core/internal/metadatastore"
	"github.com/nexusrag/core/internal/queryprocessor"
	"github.com/nexusrag/core/internal/queue"
	"github.com/nexusrag/core/internal/ratelimit"
	"github.com/nexusrag/core/internal/searchengine"
	"github.com/nexusrag/core/internal/vectorclient"
)

// Context is the fully wired application: every component a request
// handler needs, plus a Close method for graceful shutdown.
type Context struct {
	Config *config.Config
	Logger *logrus.Logger

	Store         *metadatastore.Store
	VectorClient  *vectorclient.Client
	LLMProvider   llmprovider.Provider
	LLMLimiter    *ratelimit.Limiter
	ChatLimiter   *ratelimit.Limiter
	LLMQueue      *queue.Queue
	QueryProcessor *queryprocessor.Processor
	SearchEngine  *searchengine.Engine
	Ingestion     *ingestion.Coordinator
	Chat          *chatorchestrator.Orchestrator
}

// New wires every component in dependency order: store, limiters,
// queues, backend client, LLM provider, processors, orchestrators.
func New(cfg *config.Config, logger *logrus.Logger) (*Context, error) {
	if logger == nil {
		logger = logrus.New()
	}

	store, err := metadatastore.Open(cfg.Metadata.DatabasePath)
	if err != nil {
		return nil, err
	}

	llmLimiter := ratelimit.New(cfg.RateLimit.LLMCapacity, cfg.RateLimit.LLMRefill)
	chatLimiter := ratelimit.New(cfg.RateLimit.ChatCapacity, cfg.RateLimit.ChatRefill)

	llmQueue := queue.New(cfg.Queue.LLMConcurrency, cfg.Queue.LLMMaxSize)

	vectorBackend := vectorclient.New(vectorclient.Config{
		BaseURL:       cfg.Vector.BaseURL,
		HybridWeights: [2]float64{cfg.Vector.HybridWeightVec, cfg.Vector.HybridWeightBM25},
	}, logger)

	var provider llmprovider.Provider
	if cfg.LLM.APIKey != "" || cfg.LLM.Endpoint != "" {
		provider = llmprovider.NewFromTag(cfg.LLM.ProviderTag, llmprovider.Config{
			Endpoint:   cfg.LLM.Endpoint,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: cfg.LLM.MaxRetries,
			RetryDelay: cfg.LLM.RetryDelay,
		})
	}

	qp := queryprocessor.New(queryprocessor.Config{
		ExpansionEnabled: cfg.Query.ExpansionEnabled,
		MaxQueries:       cfg.Query.MaxQueries,
	}, provider, llmLimiter, llmQueue)

	search := searchengine.New(searchengine.Config{
		DefaultLimit:   cfg.Search.DefaultLimit,
		MaxLimit:       cfg.Search.MaxLimit,
		MinSearchScore: cfg.Search.MinSearchScore,
	}, vectorBackend, store, qp, logger)

	chunkCfg := chunker.Config{ChunkSize: cfg.Chunk.ChunkSize, ChunkOverlap: cfg.Chunk.ChunkOverlap}
	ingest := ingestion.New(store, vectorBackend, chunkCfg, nil, nil, logger)

	chat := chatorchestrator.New(chatorchestrator.Config{
		DefaultTemperature:    cfg.Chat.DefaultTemperature,
		DefaultMaxTokens:      cfg.Chat.DefaultMaxTokens,
		DefaultSearchLimit:    cfg.Chat.DefaultSearchLimit,
		IncludeSourcesDefault: cfg.Chat.IncludeSourcesDefault,
		SystemPromptTemplate:  cfg.Chat.SystemPromptTemplate,
	}, provider, chatLimiter, llmQueue, qp, search)

	return &Context{
		Config:         cfg,
		Logger:         logger,
		Store:          store,
		VectorClient:   vectorBackend,
		LLMProvider:    provider,
		LLMLimiter:     llmLimiter,
		ChatLimiter:    chatLimiter,
		LLMQueue:       llmQueue,
		QueryProcessor: qp,
		SearchEngine:   search,
		Ingestion:      ingest,
		Chat:           chat,
	}, nil
}

// Health reports whether the downstream backends this process depends on
// are reachable.
func (c *Context) Health(ctx context.Context) map[string]bool {
	status := map[string]bool{
		"vector_backend": c.VectorClient.Health(ctx),
	}
	if c.LLMProvider != nil {
		status["llm_provider"] = c.LLMProvider.Health(ctx)
	}
	return status
}

// Close releases resources in reverse dependency order: close the queue
// first (rejecting every pending job, and any further submission, with
// queue_cleared; jobs already running are not interrupted), then flush
// the store.
func (c *Context) Close() error {
	c.LLMQueue.Close()
	return c.Store.Close()
}
