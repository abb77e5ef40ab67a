package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/research/internal/database"
	"github.com/jonesrussell/north-cloud/research/internal/domain"
	"github.com/jonesrussell/north-cloud/research/internal/history"
	"github.com/jonesrussell/north-cloud/research/internal/importer"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
)

const (
	entitySource       = "source"
	maxImportFileBytes = 10 << 20
)

type sourceRequest struct {
	Name             string            `json:"name"`
	URL              string            `json:"url"`
	Domain           string            `json:"domain"`
	Type             domain.SourceType `json:"type"`
	Categories       []string          `json:"categories"`
	Active           *bool             `json:"active"`
	ReliabilityScore *float64          `json:"reliability_score"`
}

func (r sourceRequest) apply(s *domain.Source) {
	s.Name = r.Name
	s.URL = r.URL
	s.Domain = r.Domain
	s.Type = r.Type
	s.Categories = r.Categories
	if r.Active != nil {
		s.Active = *r.Active
	}
	if r.ReliabilityScore != nil {
		s.ReliabilityScore = *r.ReliabilityScore
	}
}

func (h *Handler) ListSources(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}
	active, ok := optionalBool(c, "active")
	if !ok {
		return
	}

	filter := database.SourceFilter{
		Active:    active,
		Type:      domain.SourceType(c.Query("type")),
		Category:  strings.ToLower(c.Query("category")),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
		Limit:     limit,
		Offset:    offset,
	}

	sources, err := h.sources.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "list sources", err)
		return
	}
	total, err := h.sources.Count(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "count sources", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sources": sources, "total": total, "limit": limit, "offset": offset})
}

func (h *Handler) GetSource(c *gin.Context) {
	src, err := h.sources.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get source", err)
		return
	}
	c.JSON(http.StatusOK, src)
}

func (h *Handler) CreateSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	src := domain.Source{Active: true, ReliabilityScore: domain.DefaultRelevance}
	req.apply(&src)
	src.Normalize()
	if err := src.Validate(); err != nil {
		h.respondError(c, "create source", err)
		return
	}

	if err := h.sources.Create(c.Request.Context(), &src); err != nil {
		h.respondError(c, "create source", err)
		return
	}
	h.audit(c, history.Subject{SourceID: src.ID}, entitySource, "create", domain.JSONBMap{"name": src.Name, "domain": src.Domain})

	infralogger.FromContext(c.Request.Context()).Info("Source created",
		infralogger.String("source_id", src.ID),
		infralogger.String("domain", src.Domain),
	)
	c.JSON(http.StatusCreated, src)
}

func (h *Handler) UpdateSource(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.sources.GetByID(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, "update source", err)
		return
	}

	var req sourceRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		badRequest(c, "invalid request body")
		return
	}
	// An unchanged URL keeps the stored domain; a new URL re-derives it.
	if req.Domain == "" && req.URL == existing.URL {
		req.Domain = existing.Domain
	}
	req.apply(existing)
	existing.Normalize()
	if validateErr := existing.Validate(); validateErr != nil {
		h.respondError(c, "update source", validateErr)
		return
	}

	if updateErr := h.sources.Update(ctx, existing); updateErr != nil {
		h.respondError(c, "update source", updateErr)
		return
	}
	h.audit(c, history.Subject{SourceID: existing.ID}, entitySource, "update", domain.JSONBMap{"name": existing.Name})
	c.JSON(http.StatusOK, existing)
}

type toggleRequest struct {
	Active *bool `json:"active"`
}

func (h *Handler) SetSourceActive(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		badRequest(c, "active is required")
		return
	}

	id := c.Param("id")
	if err := h.sources.SetActive(c.Request.Context(), id, *req.Active); err != nil {
		h.respondError(c, "toggle source", err)
		return
	}
	h.audit(c, history.Subject{SourceID: id}, entitySource, "toggle", domain.JSONBMap{"active": *req.Active})
	c.JSON(http.StatusOK, gin.H{"id": id, "active": *req.Active})
}

// DeleteSource soft-disables by default; ?hard=true removes the row.
func (h *Handler) DeleteSource(c *gin.Context) {
	hard, ok := optionalBool(c, "hard")
	if !ok {
		return
	}

	id := c.Param("id")
	operation := "disable"
	var err error
	if hard != nil && *hard {
		operation = "delete"
		err = h.sources.Delete(c.Request.Context(), id)
	} else {
		err = h.sources.SetActive(c.Request.Context(), id, false)
	}
	if err != nil {
		h.respondError(c, "delete source", err)
		return
	}
	h.audit(c, history.Subject{SourceID: id}, entitySource, operation, nil)
	c.Status(http.StatusNoContent)
}

type crawlRequest struct {
	QueryID string `json:"query_id"`
}

func (h *Handler) CrawlSource(c *gin.Context) {
	var req crawlRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	if req.QueryID == "" {
		req.QueryID = c.Query("query_id")
	}

	summary, err := h.pipeline.CrawlSource(detached(c), c.Param("id"), req.QueryID)
	if err != nil {
		h.respondError(c, "crawl source", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type importResponse struct {
	Created int                    `json:"created"`
	Errors  []importer.ImportError `json:"errors"`
}

// ImportSources creates sources from an uploaded .xlsx workbook. Row
// failures, including insert failures, are reported per row.
func (h *Handler) ImportSources(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".xlsx") {
		badRequest(c, "file must be an .xlsx workbook")
		return
	}
	if fileHeader.Size > maxImportFileBytes {
		badRequest(c, "file too large")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "cannot read upload")
		return
	}
	defer func() { _ = file.Close() }()

	parsed, err := importer.ParseExcel(file)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	resp := importResponse{Errors: parsed.Errors}
	ctx := c.Request.Context()
	for _, row := range parsed.Sources {
		src := row.Source
		if createErr := h.sources.Create(ctx, &src); createErr != nil {
			resp.Errors = append(resp.Errors, importer.ImportError{Row: row.Row, Error: "insert failed"})
			infralogger.FromContext(ctx).Warn("Import row failed",
				infralogger.Int("row", row.Row),
				infralogger.Error(createErr),
			)
			continue
		}
		resp.Created++
	}
	h.audit(c, history.Subject{}, entitySource, "import", domain.JSONBMap{
		"file":    fileHeader.Filename,
		"created": resp.Created,
		"errors":  len(resp.Errors),
	})
	c.JSON(http.StatusOK, resp)
}
