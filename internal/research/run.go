package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/research/internal/aggregate"
	"github.com/jonesrussell/north-cloud/research/internal/domain"
	"github.com/jonesrussell/north-cloud/research/internal/events"
	"github.com/jonesrussell/north-cloud/research/internal/fetcher"
	"github.com/jonesrussell/north-cloud/research/internal/history"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/research/internal/scheduler"
)

// RunSummary describes a finished query run.
type RunSummary struct {
	QueryID         string          `json:"query_id"`
	HistoryID       string          `json:"history_id"`
	SourcesSearched int             `json:"sources_searched"`
	SourcesFailed   int             `json:"sources_failed"`
	DocumentsScored int             `json:"documents_scored"`
	ScoreFailures   int             `json:"score_failures"`
	Superseded      int64           `json:"superseded"`
	ResultsCount    int             `json:"results_count"`
	Results         []domain.Result `json:"results"`
	NextRunAt       *time.Time      `json:"next_run_at,omitempty"`
	DurationMs      int64           `json:"duration_ms"`
}

func (r *RunSummary) details() domain.JSONBMap {
	return domain.JSONBMap{
		"results_count":    r.ResultsCount,
		"sources_searched": r.SourcesSearched,
		"sources_failed":   r.SourcesFailed,
		"documents_scored": r.DocumentsScored,
		"score_failures":   r.ScoreFailures,
		"superseded":       r.Superseded,
	}
}

// RunQuery executes the full pipeline for one query. Source search and scoring
// failures are recorded and skipped; persistence failures abort the run and
// mark its query_run entry failed.
func (s *Service) RunQuery(ctx context.Context, queryID string) (*RunSummary, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}

	unlock, err := s.lockQuery(queryID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	q, err := s.queries.GetByID(ctx, queryID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	action, err := s.recorder.Begin(ctx, domain.ActionQueryRun, history.Subject{QueryID: q.ID},
		domain.JSONBMap{"query_text": q.QueryText, "max_results": q.MaxResults})
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{QueryID: q.ID, HistoryID: action.ID(), Results: []domain.Result{}}
	runErr := s.execute(ctx, q, summary)
	summary.DurationMs = time.Since(started).Milliseconds()

	// The entry must close even when the caller's context is gone.
	finishCtx := context.WithoutCancel(ctx)
	finishErr := action.Finish(finishCtx, runErr, summary.details())

	s.metrics.QueryRun(runErr == nil, time.Since(started).Seconds())
	s.logRun(q, summary, runErr)

	if runErr != nil {
		return nil, runErr
	}
	if finishErr != nil {
		return nil, finishErr
	}

	s.events.PublishAsync(events.Event{
		EventType: events.QueryRunCompleted,
		QueryID:   q.ID,
		Payload: map[string]any{
			"results_count":    summary.ResultsCount,
			"sources_searched": summary.SourcesSearched,
			"sources_failed":   summary.SourcesFailed,
		},
	})
	return summary, nil
}

func (s *Service) execute(ctx context.Context, q *domain.Query, summary *RunSummary) error {
	active, err := s.sources.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	eligible := fetcher.EligibleSources(*q, active)
	summary.SourcesSearched = len(eligible)

	outcomes, err := s.crawlAll(ctx, q, eligible)
	if err != nil {
		return err
	}

	candidates := make([]domain.Result, 0)
	for _, out := range outcomes {
		if out.fetchErr != nil {
			summary.SourcesFailed++
		}
		summary.ScoreFailures += out.scoreFailures
		summary.DocumentsScored += len(out.scored)
		candidates = append(candidates, out.scored...)
	}

	final := aggregate.Aggregate(candidates, s.aggregateOptions(q))
	if len(final) > 0 {
		superseded, supErr := s.results.SupersedeCurrent(ctx, q.ID)
		if supErr != nil {
			return fmt.Errorf("supersede results: %w", supErr)
		}
		summary.Superseded = superseded
		if insertErr := s.results.Insert(ctx, final); insertErr != nil {
			return fmt.Errorf("insert results: %w", insertErr)
		}
	}
	s.metrics.ResultsStored(len(final))
	summary.ResultsCount = len(final)
	summary.Results = final

	now := s.now()
	var next *time.Time
	if q.ScheduleEnabled {
		n, nextErr := scheduler.NextRun(q.ScheduleFrequency, now)
		if nextErr != nil {
			return nextErr
		}
		next = &n
	}
	if markErr := s.queries.MarkRun(ctx, q.ID, now, next); markErr != nil {
		return fmt.Errorf("mark query run: %w", markErr)
	}
	summary.NextRunAt = next
	return nil
}

// crawlAll fans out over sources with at most opts.Concurrency in flight.
// Outcomes keep the order of sources regardless of completion order.
func (s *Service) crawlAll(ctx context.Context, q *domain.Query, sources []domain.Source) ([]sourceOutcome, error) {
	outcomes := make([]sourceOutcome, len(sources))
	if len(sources) == 0 {
		return outcomes, nil
	}
	limit := fetcher.PerSourceLimit(q.MaxResults, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			out, err := s.crawl(gctx, q.ID, q.QueryText, src, limit)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (s *Service) logRun(q *domain.Query, summary *RunSummary, runErr error) {
	fields := []infralogger.Field{
		infralogger.String("query_id", q.ID),
		infralogger.Int("sources_searched", summary.SourcesSearched),
		infralogger.Int("sources_failed", summary.SourcesFailed),
		infralogger.Int("results_count", summary.ResultsCount),
		infralogger.Int64("duration_ms", summary.DurationMs),
	}
	if runErr != nil {
		s.logger.Error("Query run failed", append(fields, infralogger.Error(runErr))...)
		return
	}
	s.logger.Info("Query run completed", fields...)
}

// QueryOutcome is one query's entry in a tick summary.
type QueryOutcome struct {
	QueryID      string `json:"query_id"`
	ResultsCount int    `json:"results_count"`
	Skipped      bool   `json:"skipped,omitempty"`
	Error        string `json:"error,omitempty"`
}

// TickSummary is the outcome of one cron trigger.
type TickSummary struct {
	QueriesDue     int                  `json:"queries_due"`
	QueriesRun     int                  `json:"queries_run"`
	QueriesFailed  int                  `json:"queries_failed"`
	QueriesSkipped string               `json:"queries_skipped,omitempty"`
	Queries        []QueryOutcome       `json:"queries"`
	PostsPublished []domain.ContentPost `json:"posts_published"`
}

// Tick publishes due content posts and runs due queries one at a time. A
// failing query does not stop the rest. Queries are skipped, not failed, when
// the pipeline is not configured.
func (s *Service) Tick(ctx context.Context) (*TickSummary, error) {
	summary := &TickSummary{Queries: []QueryOutcome{}, PostsPublished: []domain.ContentPost{}}

	posts, err := s.PublishDue(ctx)
	if err != nil {
		return nil, err
	}
	summary.PostsPublished = posts

	if readyErr := s.Ready(); readyErr != nil {
		summary.QueriesSkipped = readyErr.Error()
		return summary, nil
	}

	due, err := s.queries.ListDue(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("list due queries: %w", err)
	}
	summary.QueriesDue = len(due)

	for _, q := range due {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		outcome := QueryOutcome{QueryID: q.ID}
		run, runErr := s.RunQuery(ctx, q.ID)
		switch {
		case errors.Is(runErr, ErrQueryRunning):
			outcome.Skipped = true
		case runErr != nil:
			outcome.Error = runErr.Error()
			summary.QueriesFailed++
		default:
			outcome.ResultsCount = run.ResultsCount
			summary.QueriesRun++
		}
		summary.Queries = append(summary.Queries, outcome)
	}
	return summary, nil
}

// PublishDue flips scheduled content posts whose time has come.
func (s *Service) PublishDue(ctx context.Context) ([]domain.ContentPost, error) {
	posts, err := s.posts.PublishDue(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if len(posts) > 0 {
		s.logger.Info("Published scheduled content", infralogger.Int("count", len(posts)))
	}
	return posts, nil
}
