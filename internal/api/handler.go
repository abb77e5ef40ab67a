// Package api serves the admin and cron HTTP surface.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/research/internal/database"
	"github.com/jonesrussell/north-cloud/research/internal/domain"
	"github.com/jonesrussell/north-cloud/research/internal/history"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/research/internal/research"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type SourceStore interface {
	Create(ctx context.Context, s *domain.Source) error
	GetByID(ctx context.Context, id string) (*domain.Source, error)
	List(ctx context.Context, filter database.SourceFilter) ([]domain.Source, error)
	Count(ctx context.Context, filter database.SourceFilter) (int, error)
	Update(ctx context.Context, s *domain.Source) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type QueryStore interface {
	Create(ctx context.Context, q *domain.Query) error
	GetByID(ctx context.Context, id string) (*domain.Query, error)
	List(ctx context.Context, filter database.QueryFilter) ([]domain.Query, error)
	Update(ctx context.Context, q *domain.Query) error
	Delete(ctx context.Context, id string) error
}

type ResultStore interface {
	GetByID(ctx context.Context, id string) (*domain.Result, error)
	ListByQuery(ctx context.Context, queryID string, includeSuperseded bool, limit int) ([]domain.Result, error)
}

type HistoryStore interface {
	List(ctx context.Context, filter database.HistoryFilter) ([]domain.HistoryEntry, error)
}

// Pipeline is the research service as the handlers use it.
type Pipeline interface {
	RunQuery(ctx context.Context, queryID string) (*research.RunSummary, error)
	CrawlSource(ctx context.Context, sourceID, queryID string) (*research.CrawlSummary, error)
	Tick(ctx context.Context) (*research.TickSummary, error)
}

// Handler holds the dependencies of every route.
type Handler struct {
	sources  SourceStore
	queries  QueryStore
	results  ResultStore
	history  HistoryStore
	pipeline Pipeline
	recorder *history.Recorder
	logger   infralogger.Logger
	now      func() time.Time
}

type Deps struct {
	Sources  SourceStore
	Queries  QueryStore
	Results  ResultStore
	History  HistoryStore
	Pipeline Pipeline
	Recorder *history.Recorder
	Logger   infralogger.Logger
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		sources:  deps.Sources,
		queries:  deps.Queries,
		results:  deps.Results,
		history:  deps.History,
		pipeline: deps.Pipeline,
		recorder: deps.Recorder,
		logger:   deps.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// respondError maps service and storage errors onto status codes. Unknown
// errors are logged and reported as "failed to <op>".
func (h *Handler) respondError(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	msg := "failed to " + op

	switch {
	case errors.Is(err, database.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalid):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, research.ErrNotConfigured):
		status, msg = http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, research.ErrQueryRunning):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, research.ErrUpstream):
		status, msg = http.StatusBadGateway, err.Error()
	}

	log := infralogger.FromContext(c.Request.Context())
	if status == http.StatusInternalServerError {
		log.Error("Request failed", infralogger.String("op", op), infralogger.Error(err))
	} else {
		log.Debug("Request rejected", infralogger.String("op", op), infralogger.Int("status", status), infralogger.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// audit appends a config_change entry. A failed write is logged by the recorder.
func (h *Handler) audit(c *gin.Context, subject history.Subject, entity, operation string, extra domain.JSONBMap) {
	details := domain.JSONBMap{"entity": entity, "operation": operation}
	for k, v := range extra {
		details[k] = v
	}
	_ = h.recorder.Record(c.Request.Context(), domain.ActionConfigChange, subject, 0, nil, details)
}

func pagination(c *gin.Context) (limit, offset int, ok bool) {
	limit, offset = defaultPageSize, 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = min(n, maxPageSize)
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

func optionalBool(c *gin.Context, name string) (value *bool, ok bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(c, name+" must be true or false")
		return nil, false
	}
	return &b, true
}

// detached keeps a pipeline run alive when the client disconnects.
func detached(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
