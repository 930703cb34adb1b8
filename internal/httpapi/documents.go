package httpapi

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nexusrag/core/internal/coreerrors"
	"github.com/nexusrag/core/internal/ingestion"
)

type ingestTextRequest struct {
	Title       string                 `json:"title" binding:"required"`
	Content     string                 `json:"content" binding:"required"`
	Category    string                 `json:"category,omitempty"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (h *Handler) IngestText(c *gin.Context) {
	var req ingestTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": coreerrors.New(coreerrors.InvalidRequest, err.Error()).Error()})
		return
	}

	result, err := h.app.Ingestion.IngestText(c.Request.Context(), ingestion.TextRequest{
		Title:       req.Title,
		Content:     req.Content,
		Category:    req.Category,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"document_id":  result.DocumentID,
		"status":       result.Status,
		"chunks_count": result.ChunksCount,
		"message":      result.Message,
	})
}

// maxFileSize caps ingest_file's base64-decoded payload; the configured
// ceiling exists to bound memory for a single request, not to police
// document content.
const maxFileSize = 50 * 1024 * 1024

type ingestFileRequest struct {
	Title       string                 `json:"title" binding:"required"`
	FileBase64  string                 `json:"file" binding:"required"`
	MIME        string                 `json:"mime" binding:"required"`
	Category    string                 `json:"category,omitempty"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (h *Handler) IngestFile(c *gin.Context) {
	var req ingestFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": coreerrors.New(coreerrors.InvalidRequest, err.Error()).Error()})
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.FileBase64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file must be base64-encoded"})
		return
	}
	if len(data) > maxFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
		return
	}

	result, err := h.app.Ingestion.IngestFile(c.Request.Context(), ingestion.FileRequest{
		Title:       req.Title,
		Bytes:       data,
		MIME:        req.MIME,
		Category:    req.Category,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"document_id":  result.DocumentID,
		"status":       result.Status,
		"chunks_count": result.ChunksCount,
		"message":      result.Message,
	})
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document ID required"})
		return
	}

	if err := h.app.Ingestion.Delete(c.Request.Context(), id); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"document_id": id, "deleted": true})
}

func (h *Handler) ListDocuments(c *gin.Context) {
	limit := atoiDefault(c.Query("limit"), 20)
	offset := atoiDefault(c.Query("offset"), 0)

	docs, total, err := h.app.Store.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs, "total": total})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
