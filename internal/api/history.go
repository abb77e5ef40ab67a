package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/research/internal/database"
	"github.com/jonesrussell/north-cloud/research/internal/domain"
)

func (h *Handler) ListHistory(c *gin.Context) {
	filter := database.HistoryFilter{
		ActionType: domain.ActionType(c.Query("action_type")),
		QueryID:    c.Query("query_id"),
		SourceID:   c.Query("source_id"),
	}
	if filter.ActionType != "" && !filter.ActionType.Valid() {
		badRequest(c, "unknown action_type")
		return
	}
	if raw := c.Query("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 0 {
			badRequest(c, "days must be a non-negative integer")
			return
		}
		filter.Days = days
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	entries, err := h.history.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "list history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries, "count": len(entries)})
}
