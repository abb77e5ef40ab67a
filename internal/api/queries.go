package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/research/internal/database"
	"github.com/jonesrussell/north-cloud/research/internal/domain"
	"github.com/jonesrussell/north-cloud/research/internal/history"
	"github.com/jonesrussell/north-cloud/research/internal/scheduler"
)

const entityQuery = "query"

type queryRequest struct {
	Name                string           `json:"name"`
	QueryText           string           `json:"query_text"`
	Type                domain.QueryType `json:"type"`
	Categories          []string         `json:"categories"`
	IncludeSources      []string         `json:"include_sources"`
	ExcludeSources      []string         `json:"exclude_sources"`
	MaxResults          int              `json:"max_results"`
	FreshnessDays       int              `json:"freshness_days"`
	MinReliabilityScore float64          `json:"min_reliability_score"`
	ScheduleEnabled     bool             `json:"schedule_enabled"`
	ScheduleFrequency   domain.Frequency `json:"schedule_frequency"`
}

func (r queryRequest) apply(q *domain.Query) {
	q.Name = r.Name
	q.QueryText = r.QueryText
	q.Type = r.Type
	q.Categories = r.Categories
	q.IncludeSources = r.IncludeSources
	q.ExcludeSources = r.ExcludeSources
	q.MaxResults = r.MaxResults
	q.FreshnessDays = r.FreshnessDays
	q.MinReliabilityScore = r.MinReliabilityScore
	q.ScheduleEnabled = r.ScheduleEnabled
	q.ScheduleFrequency = r.ScheduleFrequency
}

// prepare normalizes and validates q and sets its next run. A schedule that
// was already active with the same frequency keeps its next run.
func (h *Handler) prepare(q *domain.Query, previous *domain.Query) error {
	q.Normalize()
	if err := q.Validate(); err != nil {
		return err
	}
	if !q.ScheduleEnabled {
		return nil
	}
	if previous != nil && previous.ScheduleEnabled && previous.ScheduleFrequency == q.ScheduleFrequency && previous.NextRunAt != nil {
		q.NextRunAt = previous.NextRunAt
		return nil
	}
	next, err := scheduler.NextRun(q.ScheduleFrequency, h.now())
	if err != nil {
		return err
	}
	q.NextRunAt = &next
	return nil
}

func (h *Handler) ListQueries(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}
	scheduled, ok := optionalBool(c, "scheduled")
	if !ok {
		return
	}

	queries, err := h.queries.List(c.Request.Context(), database.QueryFilter{
		Scheduled: scheduled,
		Type:      domain.QueryType(c.Query("type")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.respondError(c, "list queries", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queries": queries, "count": len(queries), "limit": limit, "offset": offset})
}

func (h *Handler) GetQuery(c *gin.Context) {
	q, err := h.queries.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get query", err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) CreateQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	var q domain.Query
	req.apply(&q)
	if err := h.prepare(&q, nil); err != nil {
		h.respondError(c, "create query", err)
		return
	}
	if err := h.queries.Create(c.Request.Context(), &q); err != nil {
		h.respondError(c, "create query", err)
		return
	}
	h.audit(c, history.Subject{QueryID: q.ID}, entityQuery, "create", domain.JSONBMap{"name": q.Name})
	c.JSON(http.StatusCreated, q)
}

func (h *Handler) UpdateQuery(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.queries.GetByID(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, "update query", err)
		return
	}

	var req queryRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		badRequest(c, "invalid request body")
		return
	}

	previous := *existing
	req.apply(existing)
	if prepErr := h.prepare(existing, &previous); prepErr != nil {
		h.respondError(c, "update query", prepErr)
		return
	}
	if updateErr := h.queries.Update(ctx, existing); updateErr != nil {
		h.respondError(c, "update query", updateErr)
		return
	}
	h.audit(c, history.Subject{QueryID: existing.ID}, entityQuery, "update", domain.JSONBMap{"name": existing.Name})
	c.JSON(http.StatusOK, existing)
}

// DeleteQuery removes the query and, through the foreign key, its results.
func (h *Handler) DeleteQuery(c *gin.Context) {
	id := c.Param("id")
	if err := h.queries.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, "delete query", err)
		return
	}
	h.audit(c, history.Subject{QueryID: id}, entityQuery, "delete", nil)
	c.Status(http.StatusNoContent)
}

func (h *Handler) RunQuery(c *gin.Context) {
	summary, err := h.pipeline.RunQuery(detached(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "run query", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
