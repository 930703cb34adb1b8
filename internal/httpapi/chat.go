package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexusrag/core/internal/chatorchestrator"
	"github.com/nexusrag/core/internal/coreerrors"
)

type chatOptions struct {
	SearchLimit    int     `json:"search_limit,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	MaxTokens      int     `json:"max_tokens,omitempty"`
	IncludeSources *bool   `json:"include_sources,omitempty"`
}

type chatRequest struct {
	Message  string      `json:"message" binding:"required"`
	ThreadID string      `json:"threadId,omitempty"`
	RunID    string      `json:"runId,omitempty"`
	UserID   string      `json:"user_id,omitempty"`
	Options  chatOptions `json:"options,omitempty"`
}

func toOrchestratorRequest(req chatRequest) chatorchestrator.Request {
	return chatorchestrator.Request{
		ThreadID:       req.ThreadID,
		RunID:          req.RunID,
		UserID:         req.UserID,
		Message:        req.Message,
		SearchLimit:    req.Options.SearchLimit,
		Temperature:    req.Options.Temperature,
		MaxTokens:      req.Options.MaxTokens,
		IncludeSources: req.Options.IncludeSources,
	}
}

// ChatStream streams a chat run as Server-Sent Events: one "data: <json>"
// frame per Event, flushed immediately so the client sees deltas as they
// arrive rather than buffered at response end.
func (h *Handler) ChatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": coreerrors.New(coreerrors.InvalidRequest, err.Error()).Error()})
		return
	}

	events, err := h.app.Chat.ChatStream(c.Request.Context(), toOrchestratorRequest(req))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}
	for event := range events {
		b, err := json.Marshal(event)
		if err != nil {
			continue
		}
		c.Writer.Write([]byte("data: "))
		c.Writer.Write(b)
		c.Writer.Write([]byte("\n\n"))
		flusher.Flush()

		select {
		case <-c.Request.Context().Done():
			return
		default:
		}
	}
}

// ChatSync runs the blocking chat entry point and returns a single JSON
// response.
func (h *Handler) ChatSync(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": coreerrors.New(coreerrors.InvalidRequest, err.Error()).Error()})
		return
	}

	resp, err := h.app.Chat.Chat(c.Request.Context(), toOrchestratorRequest(req))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"threadId":  resp.ThreadID,
		"runId":     resp.RunID,
		"messageId": resp.MessageID,
		"response":  resp.Response,
		"sources":   resp.Sources,
		"usage":     resp.Usage,
	})
}
