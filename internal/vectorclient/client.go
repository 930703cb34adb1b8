// Package vectorclient implements a retrying HTTP client for the vector
// search backend: search, hybrid-search, batched upsert, delete, health.
// Adapted from a Qdrant HTTP client's struct layout, mutex-guarded
// connection state, generic doRequest JSON helper, and retry-with-backoff,
// re-pointed at the RAG core's own wire protocol (POST /search, POST
// /hybrid, POST /add, GET /upsert, POST /addobject, POST /delete, GET
// /health) rather than Qdrant's native API.
package vectorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexusrag/core/internal/coreerrors"
)

const (
	defaultTimeout      = 30 * time.Second
	indexBatchTimeout    = 60 * time.Second
	healthTimeout        = 5 * time.Second
	batchSize            = 50
	maxBatchRetries      = 3 // retries after the first attempt; 4 attempts total
)

// SearchResult is one ranked hit from the backend.
type SearchResult struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Doc is an item to be indexed.
type Doc struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Config configures a Client.
type Config struct {
	BaseURL        string
	HybridWeights  [2]float64 // [vec, bm25]
}

// Client is a mutex-guarded HTTP client for the vector backend. The index
// path (/add -> /upsert) is serialized through a private single-lane
// queue so concurrent ingests never interleave add/upsert pairs.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logrus.Logger

	mu          sync.RWMutex
	hybridDead  bool // set once /hybrid has failed as backend_unavailable (404, 5xx or network error)

	indexMu sync.Mutex // single-lane serialization for the index path
}

// New creates a Client.
func New(cfg Config, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// Search performs a purely semantic search.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	body := map[string]interface{}{"query": query, "limit": limit}
	var results []SearchResult
	if err := c.doJSON(ctx, http.MethodPost, "/search", body, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// HybridSearch performs semantic+keyword fusion search, degrading to
// Search automatically if the backend does not implement /hybrid.
func (c *Client) HybridSearch(ctx context.Context, query string, limit int) (results []SearchResult, usedHybrid bool, err error) {
	c.mu.RLock()
	dead := c.hybridDead
	c.mu.RUnlock()

	if !dead {
		ctx2, cancel := context.WithTimeout(ctx, defaultTimeout)
		defer cancel()

		body := map[string]interface{}{
			"query":   query,
			"limit":   limit,
			"weights": []float64{c.cfg.HybridWeights[0], c.cfg.HybridWeights[1]},
		}
		err = c.doJSON(ctx2, http.MethodPost, "/hybrid", body, &results)
		if err == nil {
			return results, true, nil
		}
		// Both a 404 (endpoint not implemented) and a network-level failure
		// (connection refused, timeout, DNS) surface as BackendUnavailable;
		// either one means the backend can't serve hybrid right now, so both
		// degrade to the plain vector search rather than propagating.
		if !coreerrors.Is(err, coreerrors.BackendUnavailable) {
			return nil, false, err
		}

		c.mu.Lock()
		c.hybridDead = true
		c.mu.Unlock()
		c.logger.WithField("query", query).WithError(err).Info("hybrid endpoint unavailable, degrading to vector search")
	}

	results, err = c.Search(ctx, query, limit)
	return results, false, err
}

// Index batches and upserts text documents.
func (c *Client) Index(ctx context.Context, docs []Doc) error {
	return c.indexVia(ctx, "/add", docs)
}

// IndexMultimodal batches and upserts non-text documents via /addobject,
// falling back to the text /add endpoint on 404.
func (c *Client) IndexMultimodal(ctx context.Context, docs []Doc) error {
	return c.indexVia(ctx, "/addobject", docs)
}

func (c *Client) indexVia(ctx context.Context, addPath string, docs []Doc) error {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	var batchErrors []error
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		if err := c.commitBatch(ctx, addPath, batch); err != nil {
			batchErrors = append(batchErrors, fmt.Errorf("batch [%d:%d]: %w", start, end, err))
		}
	}

	if len(batchErrors) > 0 {
		return coreerrors.Wrap(coreerrors.BackendUnavailable, "one or more index batches failed", joinErrors(batchErrors))
	}
	return nil
}

func (c *Client) commitBatch(ctx context.Context, addPath string, batch []Doc) error {
	ctx, cancel := context.WithTimeout(ctx, indexBatchTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= maxBatchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.doJSON(ctx, http.MethodPost, addPath, batch, nil)
		if err != nil && addPath == "/addobject" && isNotFound(err) {
			err = c.doJSON(ctx, http.MethodPost, "/add", batch, nil)
		}
		if err != nil {
			lastErr = err
			continue
		}

		if err := c.commitUpsert(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (c *Client) commitUpsert(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodGet, "/upsert", nil, nil)
	if err == nil {
		return nil
	}
	// An upsert issued after an empty buffer commonly surfaces as a 500;
	// this is benign, not a failure.
	if isServerError(err) {
		return nil
	}
	return err
}

// Delete removes the given chunk IDs from the backend.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return c.doJSON(ctx, http.MethodPost, "/delete", ids, nil)
}

// Health probes backend availability without raising on failure.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// doJSON issues a JSON request and decodes the JSON response into out
// (skipped if out is nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return coreerrors.Wrap(coreerrors.ProtocolError, "encoding request body", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ProtocolError, "building request", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return coreerrors.Wrap(coreerrors.BackendUnavailable, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ProtocolError, "reading response body", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return coreerrors.New(coreerrors.BackendUnavailable, "404 not found")
	}
	if resp.StatusCode >= 500 {
		return coreerrors.Wrap(coreerrors.BackendUnavailable, fmt.Sprintf("server error %d", resp.StatusCode), fmt.Errorf("%s", respBody))
	}
	if resp.StatusCode >= 400 {
		return coreerrors.Wrap(coreerrors.BackendRejected, fmt.Sprintf("client error %d", resp.StatusCode), fmt.Errorf("%s", respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return coreerrors.Wrap(coreerrors.ProtocolError, "decoding response body", err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return coreerrors.Is(err, coreerrors.BackendUnavailable) && strings.Contains(err.Error(), "404")
}

func isServerError(err error) bool {
	return coreerrors.Is(err, coreerrors.BackendUnavailable) && strings.Contains(err.Error(), "server error")
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}
