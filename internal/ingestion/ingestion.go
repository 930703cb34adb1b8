// Package ingestion coordinates document ingestion: hashing for dedup,
// chunking, batched vector indexing, and metadata persistence. Text
// extraction for binary formats (PDF, DOCX) and blob storage are treated
// as pluggable externalities — callers that need them provide a
// MediaExtractor/BlobStore; the coordinator itself only sequences the
// steps and handles partial-failure bookkeeping.
package ingestion

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexusrag/core/internal/chunker"
	"github.com/nexusrag/core/internal/coreerrors"
	"github.com/nexusrag/core/internal/hasher"
	"github.com/nexusrag/core/internal/metadatastore"
	"github.com/nexusrag/core/internal/vectorclient"
)

// newDocumentID generates a document_id of the form
// "doc_<timebase36>_<rand36>": a base36 timestamp component for rough
// chronological ordering, plus a base36 random component for uniqueness
// within the same tick.
func newDocumentID() string {
	timebase := strconv.FormatInt(time.Now().UnixNano(), 36)
	randPart := strconv.FormatInt(rand.Int63(), 36)
	return fmt.Sprintf("doc_%s_%s", timebase, randPart)
}

// MediaExtractor turns binary file content into indexable text plus a
// resolved media type tag. When no extractor is configured (nil), every
// file is treated as opaque and no text is extracted.
type MediaExtractor interface {
	Extract(ctx context.Context, content []byte, mime string) (text string, mediaType string, err error)
}

// BlobStore persists raw file bytes out of band and returns a URL a
// client can later retrieve them from.
type BlobStore interface {
	Put(ctx context.Context, id string, content []byte) (url string, err error)
	Delete(ctx context.Context, url string) error
}

// TextRequest ingests a raw text document.
type TextRequest struct {
	Title       string
	Content     string
	Category    string
	Description string
	Metadata    map[string]interface{}
}

// FileRequest ingests a binary document.
type FileRequest struct {
	Title       string
	Bytes       []byte
	MIME        string
	Category    string
	Description string
	Metadata    map[string]interface{}
}

// Result is returned by both ingest entry points.
type Result struct {
	DocumentID  string
	Status      string
	ChunksCount int
	Message     string
}

// Coordinator wires together dedup, chunking, indexing, and persistence.
type Coordinator struct {
	store     *metadatastore.Store
	backend   *vectorclient.Client
	chunkCfg  chunker.Config
	extractor MediaExtractor
	blobs     BlobStore
	logger    *logrus.Logger
}

// New creates a Coordinator. extractor and blobs may be nil to disable
// binary-file text extraction and blob persistence respectively.
func New(store *metadatastore.Store, backend *vectorclient.Client, chunkCfg chunker.Config, extractor MediaExtractor, blobs BlobStore, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{store: store, backend: backend, chunkCfg: chunkCfg, extractor: extractor, blobs: blobs, logger: logger}
}

// IngestText ingests a plain-text document.
func (c *Coordinator) IngestText(ctx context.Context, req TextRequest) (*Result, error) {
	hash := hasher.Text(req.Content)

	if existing, err := c.store.FindByContentHash(ctx, hash); err != nil {
		return nil, err
	} else if existing != nil {
		return &Result{
			DocumentID:  existing.DocumentID,
			Status:      metadatastore.StatusIndexed,
			ChunksCount: existing.ChunksCount,
			Message:     "duplicate, returning existing",
		}, nil
	}

	documentID := newDocumentID()
	chunks := c.chunkCfg.Chunk(req.Content, documentID, req.Title, req.Metadata)

	return c.commit(ctx, documentID, req.Title, req.Category, req.Description, req.Metadata, "", "", hash, chunks, false)
}

// IngestFile ingests a binary document, optionally extracting text via
// the configured MediaExtractor and persisting the raw bytes via the
// configured BlobStore.
func (c *Coordinator) IngestFile(ctx context.Context, req FileRequest) (*Result, error) {
	hash := hasher.Bytes(req.Bytes)

	if existing, err := c.store.FindByContentHash(ctx, hash); err != nil {
		return nil, err
	} else if existing != nil {
		return &Result{
			DocumentID:  existing.DocumentID,
			Status:      metadatastore.StatusIndexed,
			ChunksCount: existing.ChunksCount,
			Message:     "duplicate, returning existing",
		}, nil
	}

	documentID := newDocumentID()

	var extractedText, mediaType string
	if c.extractor != nil {
		text, mt, err := c.extractor.Extract(ctx, req.Bytes, req.MIME)
		if err != nil {
			c.logger.WithError(err).Warn("media extraction failed, falling back to title/description only")
		} else {
			extractedText, mediaType = text, mt
		}
	}
	if mediaType == "" {
		mediaType = mimeToMediaType(req.MIME)
	}

	body := extractedText
	if body == "" {
		body = req.Title + "\n" + req.Description
	}

	var mediaURL string
	isTextMedia := mediaType == "text" || mediaType == ""
	if !isTextMedia && c.blobs != nil {
		url, err := c.blobs.Put(ctx, documentID, req.Bytes)
		if err != nil {
			c.logger.WithError(err).Warn("blob persistence failed")
		} else {
			mediaURL = url
		}
	}

	var chunks []chunker.Chunk
	if isTextMedia {
		chunks = c.chunkCfg.Chunk(body, documentID, req.Title, req.Metadata)
	} else {
		// Exactly one synthetic chunk per non-text medium: the pixels are
		// the vector backend's business, not the coordinator's.
		syntheticText := fmt.Sprintf("%s\n%s", req.Title, req.Description)
		chunks = []chunker.Chunk{{
			ChunkID:  chunker.ChunkID(documentID, 0),
			Text:     syntheticText,
			Metadata: req.Metadata,
		}}
	}

	return c.commit(ctx, documentID, req.Title, req.Category, req.Description, req.Metadata, mediaType, mediaURL, hash, chunks, !isTextMedia)
}

func (c *Coordinator) commit(ctx context.Context, documentID, title, category, description string, metadata map[string]interface{}, mediaType, mediaURL, hash string, chunks []chunker.Chunk, multimodal bool) (*Result, error) {
	docs := make([]vectorclient.Doc, len(chunks))
	for i, ch := range chunks {
		docs[i] = vectorclient.Doc{ID: ch.ChunkID, Text: ch.Text, Metadata: ch.Metadata}
	}

	var indexErr error
	if multimodal {
		indexErr = c.backend.IndexMultimodal(ctx, docs)
	} else {
		indexErr = c.backend.Index(ctx, docs)
	}

	if indexErr != nil {
		if err := c.store.Upsert(ctx, &metadatastore.Document{
			DocumentID:  documentID,
			Title:       title,
			Category:    category,
			Description: description,
			Metadata:    metadata,
			Status:      metadatastore.StatusFailed,
			ChunksCount: 0,
			MediaType:   mediaType,
			MediaURL:    mediaURL,
		}); err != nil {
			return nil, err
		}
		return nil, coreerrors.Wrap(coreerrors.IndexPartialFailure, "indexing failed", indexErr)
	}

	if err := c.store.Upsert(ctx, &metadatastore.Document{
		DocumentID:  documentID,
		Title:       title,
		Category:    category,
		Description: description,
		Metadata:    metadata,
		Status:      metadatastore.StatusIndexed,
		ChunksCount: len(chunks),
		MediaType:   mediaType,
		MediaURL:    mediaURL,
		ContentHash: hash,
	}); err != nil {
		return nil, err
	}

	return &Result{DocumentID: documentID, Status: metadatastore.StatusIndexed, ChunksCount: len(chunks)}, nil
}

// Delete removes a document's chunks from the vector backend, its blob
// (if any), and its metadata row.
func (c *Coordinator) Delete(ctx context.Context, documentID string) error {
	doc, err := c.store.Get(ctx, documentID)
	if err != nil {
		return err
	}

	chunkIDs, err := c.store.ChunkIDs(ctx, documentID)
	if err != nil {
		return err
	}
	if len(chunkIDs) > 0 {
		if err := c.backend.Delete(ctx, chunkIDs); err != nil {
			return err
		}
	}

	if doc.MediaURL != "" && c.blobs != nil {
		if err := c.blobs.Delete(ctx, doc.MediaURL); err != nil {
			c.logger.WithError(err).Warn("blob deletion failed")
		}
	}

	return c.store.Delete(ctx, documentID)
}

func mimeToMediaType(mime string) string {
	switch {
	case len(mime) >= 5 && mime[:5] == "image":
		return "image"
	case len(mime) >= 5 && mime[:5] == "video":
		return "video"
	case len(mime) >= 5 && mime[:5] == "audio":
		return "audio"
	case len(mime) >= 4 && mime[:4] == "text":
		return "text"
	default:
		return "document"
	}
}
