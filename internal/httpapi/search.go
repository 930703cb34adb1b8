package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexusrag/core/internal/coreerrors"
)

type searchRequest struct {
	UserID      string                 `json:"user_id" binding:"required"`
	Query       string                 `json:"query" binding:"required"`
	Limit       int                    `json:"limit,omitempty"`
	TokenBudget int                    `json:"token_budget,omitempty"`
	Filters     map[string]interface{} `json:"filters,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (h *Handler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": coreerrors.New(coreerrors.InvalidRequest, err.Error()).Error()})
		return
	}

	resp, err := h.app.SearchEngine.Search(c.Request.Context(), req.UserID, req.Query, req.Limit, req.TokenBudget, nil)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider_name": resp.ProviderName,
		"chunks":        resp.Chunks,
		"total_tokens":  resp.TotalTokens,
		"metadata": gin.H{
			"search_mode":  resp.Metadata.SearchMode,
			"results_count": resp.Metadata.ResultsCount,
			"min_score":    resp.Metadata.MinScore,
		},
	})
}
