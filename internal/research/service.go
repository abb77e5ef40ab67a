// Package research runs the ingestion pipeline: select sources, fetch, score,
// aggregate and persist, with an audit entry for every step.
package research

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
	"github.com/jonesrussell/north-cloud/research/internal/events"
	"github.com/jonesrussell/north-cloud/research/internal/extract"
	"github.com/jonesrussell/north-cloud/research/internal/history"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/research/internal/metrics"
)

var (
	// ErrQueryRunning is returned when the query already has a run in this process.
	ErrQueryRunning = errors.New("query run already in progress")
	// ErrNotConfigured is returned before a run when search or model credentials are missing.
	ErrNotConfigured = errors.New("research pipeline not configured")
	// ErrUpstream wraps a search failure surfaced by a single-source crawl.
	ErrUpstream = errors.New("upstream search failed")
)

type SourceStore interface {
	GetByID(ctx context.Context, id string) (*domain.Source, error)
	ListActive(ctx context.Context) ([]domain.Source, error)
	MarkCrawled(ctx context.Context, id string, at time.Time) error
}

type QueryStore interface {
	GetByID(ctx context.Context, id string) (*domain.Query, error)
	ListDue(ctx context.Context, now time.Time) ([]domain.Query, error)
	MarkRun(ctx context.Context, id string, lastRunAt time.Time, nextRunAt *time.Time) error
}

type ResultStore interface {
	SupersedeCurrent(ctx context.Context, queryID string) (int64, error)
	Insert(ctx context.Context, results []domain.Result) error
	CurrentURLs(ctx context.Context, queryID string) (map[string]struct{}, error)
}

type PostStore interface {
	PublishDue(ctx context.Context, now time.Time) ([]domain.ContentPost, error)
}

// Fetcher runs one site-scoped search.
type Fetcher interface {
	Fetch(ctx context.Context, queryText string, src domain.Source, limit int) ([]extract.Page, error)
}

// Scorer makes one model call per page.
type Scorer interface {
	Score(ctx context.Context, queryText string, page extract.Page) (domain.Result, error)
}

// Deps wires a Service. Events and Metrics may be nil. Ready reports a
// missing upstream key before any run starts; nil means always ready.
type Deps struct {
	Sources  SourceStore
	Queries  QueryStore
	Results  ResultStore
	Posts    PostStore
	Fetcher  Fetcher
	Scorer   Scorer
	Recorder *history.Recorder
	Events   *events.Publisher
	Metrics  *metrics.Metrics
	Logger   infralogger.Logger
	Ready    func() error
}

// Options tune the pipeline.
type Options struct {
	Concurrency int
	DropUndated bool
}

// Service orchestrates query runs and single-source crawls.
type Service struct {
	sources  SourceStore
	queries  QueryStore
	results  ResultStore
	posts    PostStore
	fetcher  Fetcher
	scorer   Scorer
	recorder *history.Recorder
	events   *events.Publisher
	metrics  *metrics.Metrics
	logger   infralogger.Logger
	ready    func() error
	opts     Options

	guard runGuard
	now   func() time.Time
}

func NewService(deps Deps, opts Options) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	ready := deps.Ready
	if ready == nil {
		ready = func() error { return nil }
	}
	return &Service{
		sources:  deps.Sources,
		queries:  deps.Queries,
		results:  deps.Results,
		posts:    deps.Posts,
		fetcher:  deps.Fetcher,
		scorer:   deps.Scorer,
		recorder: deps.Recorder,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		ready:    ready,
		opts:     opts,
		guard:    runGuard{running: make(map[string]struct{})},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ready reports whether search and model credentials are configured.
func (s *Service) Ready() error {
	if err := s.ready(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	return nil
}

// runGuard allows one in-flight run per query within this process.
type runGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func (g *runGuard) acquire(queryID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.running[queryID]; busy {
		return false
	}
	g.running[queryID] = struct{}{}
	return true
}

func (g *runGuard) release(queryID string) {
	g.mu.Lock()
	delete(g.running, queryID)
	g.mu.Unlock()
}

func (s *Service) lockQuery(queryID string) (func(), error) {
	if !s.guard.acquire(queryID) {
		return nil, fmt.Errorf("query %s: %w", queryID, ErrQueryRunning)
	}
	return func() { s.guard.release(queryID) }, nil
}
