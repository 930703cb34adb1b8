package searchengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/nexusrag/core/internal/metadatastore"
	"github.com/nexusrag/core/internal/vectorclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *metadatastore.Store {
	t.Helper()
	s, err := metadatastore.Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSearch_SingleQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]vectorclient.SearchResult{
			{ID: "doc1_chunk_0", Score: 0.9, Text: "# Title Heading\nBody text here."},
		})
	}))
	defer srv.Close()

	backend := vectorclient.New(vectorclient.Config{BaseURL: srv.URL}, nil)
	store := newTestStore(t)
	e := New(DefaultConfig(), backend, store, nil, nil)

	resp, err := e.Search(context.Background(), "user1", "find the thing", 5, 0, nil)
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "doc1", resp.Chunks[0].DocumentID)
	assert.Equal(t, "Title Heading", resp.Chunks[0].DocumentTitle)
	assert.Equal(t, "hybrid", resp.Metadata.SearchMode)
}

func TestSearch_FiltersBelowMinScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]vectorclient.SearchResult{
			{ID: "doc1_chunk_0", Score: 0.1, Text: "low score text"},
		})
	}))
	defer srv.Close()

	backend := vectorclient.New(vectorclient.Config{BaseURL: srv.URL}, nil)
	e := New(DefaultConfig(), backend, newTestStore(t), nil, nil)

	resp, err := e.Search(context.Background(), "user1", "query text here", 5, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Chunks)
}

func TestSearch_MultiQueryRRFFusion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		q, _ := body["query"].(string)
		switch q {
		case "variant a":
			json.NewEncoder(w).Encode([]vectorclient.SearchResult{
				{ID: "doc1_chunk_0", Score: 0.8, Text: "from variant a"},
				{ID: "doc2_chunk_0", Score: 0.5, Text: "also from a"},
			})
		case "variant b":
			json.NewEncoder(w).Encode([]vectorclient.SearchResult{
				{ID: "doc2_chunk_0", Score: 0.9, Text: "from variant b"},
			})
		}
	}))
	defer srv.Close()

	backend := vectorclient.New(vectorclient.Config{BaseURL: srv.URL}, nil)
	e := New(DefaultConfig(), backend, newTestStore(t), nil, nil)

	pre := &Preprocessed{Query: "variant a", Variants: []string{"variant a", "variant b"}}
	resp, err := e.Search(context.Background(), "user1", "variant a", 5, 0, pre)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Chunks)
	// doc2_chunk_0 appears in both variants so should rank first by RRF.
	assert.Equal(t, "doc2_chunk_0", resp.Chunks[0].ChunkID)
}

func TestSearch_MultiQueryRRFFusion_TieBreaksDeterministically(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The two variants rank the same two chunks in opposite order with
		// equal scores, so their RRF sums and max scores both tie; the
		// result order must still be deterministic (by chunk ID) across
		// repeated calls.
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		b := vectorclient.SearchResult{ID: "docB_chunk_0", Score: 0.5, Text: "tied result b"}
		a := vectorclient.SearchResult{ID: "docA_chunk_0", Score: 0.5, Text: "tied result a"}
		if q, _ := body["query"].(string); q == "variant b" {
			json.NewEncoder(w).Encode([]vectorclient.SearchResult{a, b})
			return
		}
		json.NewEncoder(w).Encode([]vectorclient.SearchResult{b, a})
	}))
	defer srv.Close()

	backend := vectorclient.New(vectorclient.Config{BaseURL: srv.URL}, nil)
	e := New(DefaultConfig(), backend, newTestStore(t), nil, nil)
	pre := &Preprocessed{Query: "q", Variants: []string{"variant a", "variant b"}}

	for i := 0; i < 5; i++ {
		resp, err := e.Search(context.Background(), "user1", "q", 5, 0, pre)
		require.NoError(t, err)
		require.Len(t, resp.Chunks, 2)
		assert.Equal(t, "docA_chunk_0", resp.Chunks[0].ChunkID)
		assert.Equal(t, "docB_chunk_0", resp.Chunks[1].ChunkID)
	}
}

func TestSearch_TokenBudgetStopsBeforeOverflow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]vectorclient.SearchResult{
			{ID: "doc1_chunk_0", Score: 0.9, Text: "short"},
			{ID: "doc1_chunk_1", Score: 0.8, Text: "this is a much longer piece of text that consumes many more tokens than the first chunk did"},
		})
	}))
	defer srv.Close()

	backend := vectorclient.New(vectorclient.Config{BaseURL: srv.URL}, nil)
	e := New(DefaultConfig(), backend, newTestStore(t), nil, nil)

	resp, err := e.Search(context.Background(), "user1", "query text here", 5, 3, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, resp.TotalTokens, 3)
}

func TestSearch_DocumentTitleResolvesFromStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]vectorclient.SearchResult{
			{ID: "doc1_chunk_0", Score: 0.9, Text: "no heading here"},
		})
	}))
	defer srv.Close()

	store := newTestStore(t)
	require.NoError(t, store.Upsert(context.Background(), &metadatastore.Document{
		DocumentID: "doc1", Title: "Stored Title", Status: metadatastore.StatusIndexed,
	}))

	backend := vectorclient.New(vectorclient.Config{BaseURL: srv.URL}, nil)
	e := New(DefaultConfig(), backend, store, nil, nil)

	resp, err := e.Search(context.Background(), "user1", "query text here", 5, 0, nil)
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "Stored Title", resp.Chunks[0].DocumentTitle)
}
