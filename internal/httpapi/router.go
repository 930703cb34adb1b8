// Package httpapi is the thin gin layer adapting the core's in-process
// service interfaces to JSON HTTP endpoints. Adapted from the handler
// style of a RAG HTTP layer — one handler method per route, a uniform
// {"error": ...} JSON body on failure, status codes resolved from the
// operation's error kind — and from the SSE-framing discipline of an
// event-stream handler for /chat.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexusrag/core/internal/appctx"
)

// NewRouter builds the gin engine exposing /chat, /provider/search,
// /documents, and /health.
func NewRouter(app *appctx.Context) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	h := &Handler{app: app}

	r.GET("/health", h.Health)
	r.POST("/provider/search", h.Search)
	r.POST("/documents", h.IngestText)
	r.POST("/documents/file", h.IngestFile)
	r.DELETE("/documents/:id", h.DeleteDocument)
	r.GET("/documents", h.ListDocuments)
	r.POST("/chat", h.ChatStream)
	r.POST("/chat/sync", h.ChatSync)

	return r
}

// Handler holds the wired application context every route dispatches
// against.
type Handler struct {
	app *appctx.Context
}

func (h *Handler) Health(c *gin.Context) {
	status := h.app.Health(c.Request.Context())
	allUp := true
	for _, up := range status {
		if !up {
			allUp = false
			break
		}
	}
	code := http.StatusOK
	if !allUp {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status})
}
