package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
	"github.com/jonesrussell/north-cloud/research/internal/history"
)

func (h *Handler) ListResults(c *gin.Context) {
	limit, _, ok := pagination(c)
	if !ok {
		return
	}
	includeSuperseded, ok := optionalBool(c, "include_superseded")
	if !ok {
		return
	}

	queryID := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.queries.GetByID(ctx, queryID); err != nil {
		h.respondError(c, "list results", err)
		return
	}

	results, err := h.results.ListByQuery(ctx, queryID, includeSuperseded != nil && *includeSuperseded, limit)
	if err != nil {
		h.respondError(c, "list results", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (h *Handler) SaveResult(c *gin.Context) {
	h.markResult(c, domain.ActionResultSaved)
}

func (h *Handler) UseResult(c *gin.Context) {
	h.markResult(c, domain.ActionResultUsed)
}

func (h *Handler) markResult(c *gin.Context, action domain.ActionType) {
	ctx := c.Request.Context()
	res, err := h.results.GetByID(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, string(action), err)
		return
	}

	subject := history.Subject{QueryID: res.QueryID}
	if res.SourceID != nil {
		subject.SourceID = *res.SourceID
	}
	details := domain.JSONBMap{"result_id": res.ID, "url": res.URL, "title": res.Title}
	if recErr := h.recorder.Record(ctx, action, subject, 0, nil, details); recErr != nil {
		h.respondError(c, string(action), recErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result_id": res.ID, "action": action})
}
