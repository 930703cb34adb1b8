// Package searchengine resolves a user query into a ranked, token-budgeted
// list of passages. Single-query searches go straight to the vector
// backend's hybrid endpoint; multi-query searches (query expansion)
// fuse each variant's ranking via Reciprocal Rank Fusion. Adapted from
// the RRF/weighted/max fusion algorithms of a hybrid-search package,
// narrowed here to the single RRF path the query processor's expansion
// step actually produces.
package searchengine

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nexusrag/core/internal/metadatastore"
	"github.com/nexusrag/core/internal/queryprocessor"
	"github.com/nexusrag/core/internal/tokencount"
	"github.com/nexusrag/core/internal/vectorclient"
)

const rrfK = 60

// Config carries search-wide tunables.
type Config struct {
	DefaultLimit   int
	MaxLimit       int
	MinSearchScore float64
}

func DefaultConfig() Config {
	return Config{DefaultLimit: 5, MaxLimit: 20, MinSearchScore: 0.30}
}

// Chunk is one ranked, resolved passage in a search response.
type Chunk struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	Text          string  `json:"text"`
	Score         float64 `json:"score"`
	DocumentTitle string  `json:"document_title"`
	MediaType     string  `json:"media_type,omitempty"`
	MediaURL      string  `json:"media_url,omitempty"`
	Category      string  `json:"category,omitempty"`
	Tokens        int     `json:"tokens"`
}

// Response is the result of Search.
type Response struct {
	ProviderName string
	Chunks       []Chunk
	TotalTokens  int
	Metadata     Metadata
}

// Metadata accompanies a Response.
type Metadata struct {
	SearchMode  string
	ResultsCount int
	MinScore    float64
}

// Preprocessed lets a caller bypass the query processor with an
// already-computed primary query and variant list.
type Preprocessed struct {
	Query    string
	Variants []string
}

// Engine executes searches against the vector backend and metadata store.
type Engine struct {
	cfg     Config
	backend *vectorclient.Client
	store   *metadatastore.Store
	qp      *queryprocessor.Processor
	logger  *logrus.Logger
}

// New creates an Engine.
func New(cfg Config, backend *vectorclient.Client, store *metadatastore.Store, qp *queryprocessor.Processor, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{cfg: cfg, backend: backend, store: store, qp: qp, logger: logger}
}

type fusedCandidate struct {
	result  vectorclient.SearchResult
	rrf     float64
	maxScore float64
}

// Search runs the full search pipeline for a single query.
func (e *Engine) Search(ctx context.Context, userID, query string, limit int, tokenBudget int, preprocessed *Preprocessed) (*Response, error) {
	effectiveLimit := e.cfg.DefaultLimit
	if limit > 0 {
		effectiveLimit = limit
	}
	if effectiveLimit > e.cfg.MaxLimit {
		effectiveLimit = e.cfg.MaxLimit
	}

	variants := []string{query}
	if preprocessed != nil {
		variants = preprocessed.Variants
		if len(variants) == 0 {
			variants = []string{preprocessed.Query}
		}
	} else if e.qp != nil {
		result := e.qp.Process(ctx, query)
		if len(result.ExpandedQueries) > 0 {
			variants = result.ExpandedQueries
		} else {
			variants = []string{result.ProcessedQuery}
		}
	}

	fetchLimit := 2 * effectiveLimit

	var candidates []fusedCandidate
	if len(variants) == 1 {
		results, _, err := e.backend.HybridSearch(ctx, variants[0], fetchLimit)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			candidates = append(candidates, fusedCandidate{result: r, rrf: r.Score, maxScore: r.Score})
		}
	} else {
		candidates = e.fuseMultiQuery(ctx, variants, fetchLimit)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].rrf != candidates[j].rrf {
			return candidates[i].rrf > candidates[j].rrf
		}
		if candidates[i].maxScore != candidates[j].maxScore {
			return candidates[i].maxScore > candidates[j].maxScore
		}
		return candidates[i].result.ID < candidates[j].result.ID
	})
	if len(candidates) > fetchLimit {
		candidates = candidates[:fetchLimit]
	}

	var surviving []fusedCandidate
	for _, c := range candidates {
		if c.maxScore < e.cfg.MinSearchScore {
			continue
		}
		surviving = append(surviving, c)
	}

	chunks, totalTokens := e.resolveAndBudget(ctx, surviving, effectiveLimit, tokenBudget)

	return &Response{
		ProviderName: "vectorclient",
		Chunks:       chunks,
		TotalTokens:  totalTokens,
		Metadata: Metadata{
			SearchMode:   "hybrid",
			ResultsCount: len(chunks),
			MinScore:     e.cfg.MinSearchScore,
		},
	}, nil
}

func (e *Engine) fuseMultiQuery(ctx context.Context, variants []string, fetchLimit int) []fusedCandidate {
	scores := make(map[string]float64)
	maxScores := make(map[string]float64)
	byID := make(map[string]vectorclient.SearchResult)

	for _, variant := range variants {
		results, _, err := e.backend.HybridSearch(ctx, variant, fetchLimit)
		if err != nil {
			e.logger.WithError(err).WithField("variant", variant).Warn("hybrid search failed for query variant, skipping")
			continue
		}
		for rank, r := range results {
			scores[r.ID] += 1.0 / float64(rrfK+rank+1)
			if r.Score > maxScores[r.ID] {
				maxScores[r.ID] = r.Score
			}
			byID[r.ID] = r
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	candidates := make([]fusedCandidate, 0, len(ids))
	for _, id := range ids {
		candidates = append(candidates, fusedCandidate{result: byID[id], rrf: scores[id], maxScore: maxScores[id]})
	}
	return candidates
}

var headingPattern = regexp.MustCompile(`(?m)^#+\s+(.+)$`)
var markupPattern = regexp.MustCompile(`[*_` + "`" + `#>\[\]()]`)

func (e *Engine) resolveAndBudget(ctx context.Context, candidates []fusedCandidate, effectiveLimit, tokenBudget int) ([]Chunk, int) {
	var chunks []Chunk
	totalTokens := 0

	for _, c := range candidates {
		if len(chunks) >= effectiveLimit {
			break
		}

		docID := splitChunkID(c.result.ID)
		title, mediaType, mediaURL, category := e.resolveDocumentFields(ctx, docID, c.result)

		tokens := tokencount.Estimate(c.result.Text)
		if tokenBudget > 0 && totalTokens+tokens > tokenBudget {
			break
		}

		chunks = append(chunks, Chunk{
			ChunkID:       c.result.ID,
			DocumentID:    docID,
			Text:          c.result.Text,
			Score:         c.maxScore,
			DocumentTitle: title,
			MediaType:     mediaType,
			MediaURL:      mediaURL,
			Category:      category,
			Tokens:        tokens,
		})
		totalTokens += tokens
	}

	return chunks, totalTokens
}

func (e *Engine) resolveDocumentFields(ctx context.Context, docID string, result vectorclient.SearchResult) (title, mediaType, mediaURL, category string) {
	var doc *metadatastore.Document
	if e.store != nil {
		if d, err := e.store.Get(ctx, docID); err == nil {
			doc = d
		}
	}

	title = firstNonEmpty(
		docField(doc, func(d *metadatastore.Document) string { return d.Title }),
		metadataString(result.Metadata, "document_title"),
		titleFromText(result.Text),
		"Unknown",
	)
	mediaType = firstNonEmpty(
		docField(doc, func(d *metadatastore.Document) string { return d.MediaType }),
		metadataString(result.Metadata, "media_type"),
	)
	mediaURL = firstNonEmpty(
		docField(doc, func(d *metadatastore.Document) string { return d.MediaURL }),
		metadataString(result.Metadata, "media_url"),
	)
	category = firstNonEmpty(
		docField(doc, func(d *metadatastore.Document) string { return d.Category }),
		metadataString(result.Metadata, "category"),
	)
	return
}

func docField(doc *metadatastore.Document, get func(*metadatastore.Document) string) string {
	if doc == nil {
		return ""
	}
	return get(doc)
}

func metadataString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// titleFromText extracts a presentable title from raw chunk text: the
// first Markdown heading, else the first non-empty line with Markdown
// markup stripped, truncated to 50 characters.
func titleFromText(text string) string {
	if m := headingPattern.FindStringSubmatch(text); len(m) == 2 {
		return truncate(strings.TrimSpace(m[1]), 50)
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		stripped := strings.TrimSpace(markupPattern.ReplaceAllString(line, ""))
		if stripped != "" {
			return truncate(stripped, 50)
		}
	}
	return ""
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// splitChunkID recovers the owning document ID from a "<docid>_chunk_<n>"
// chunk ID.
func splitChunkID(chunkID string) string {
	idx := strings.LastIndex(chunkID, "_chunk_")
	if idx == -1 {
		return chunkID
	}
	return chunkID[:idx]
}
