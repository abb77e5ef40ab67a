package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/research/internal/aggregate"
	"github.com/jonesrussell/north-cloud/research/internal/domain"
	"github.com/jonesrussell/north-cloud/research/internal/events"
	"github.com/jonesrussell/north-cloud/research/internal/history"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
)

// sourceOutcome is what one source contributed to a run.
type sourceOutcome struct {
	source        domain.Source
	pages         int
	scored        []domain.Result
	scoreFailures int
	fetchErr      error
}

// crawl fetches and scores one source and records its source_crawl entry.
// A search failure is reported in the outcome; only persistence failures are
// returned as errors.
func (s *Service) crawl(ctx context.Context, queryID, queryText string, src domain.Source, limit int) (sourceOutcome, error) {
	started := time.Now()
	out := sourceOutcome{source: src, scored: []domain.Result{}}
	subject := history.Subject{QueryID: queryID, SourceID: src.ID}

	pages, err := s.fetcher.Fetch(ctx, queryText, src, limit)
	if err != nil {
		out.fetchErr = err
		s.metrics.SourceCrawl(false)
		s.logger.Warn("Source search failed",
			infralogger.String("source_id", src.ID),
			infralogger.String("domain", src.Domain),
			infralogger.Error(err),
		)
		details := domain.JSONBMap{"domain": src.Domain, "limit": limit}
		if recErr := s.recorder.Record(ctx, domain.ActionSourceCrawl, subject, time.Since(started), err, details); recErr != nil {
			return out, recErr
		}
		s.publishCrawled(queryID, out)
		return out, nil
	}
	out.pages = len(pages)

	sourceID := src.ID
	for _, page := range pages {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		res, scoreErr := s.scorer.Score(ctx, queryText, page)
		if scoreErr != nil {
			out.scoreFailures++
			s.metrics.DocumentScored(false)
			s.logger.Warn("Document scoring failed, skipping",
				infralogger.String("url", page.URL),
				infralogger.Error(scoreErr),
			)
			continue
		}
		s.metrics.DocumentScored(true)
		res.QueryID = queryID
		res.SourceID = &sourceID
		out.scored = append(out.scored, res)
	}

	if markErr := s.sources.MarkCrawled(ctx, src.ID, s.now()); markErr != nil {
		return out, fmt.Errorf("mark source crawled: %w", markErr)
	}

	s.metrics.SourceCrawl(true)
	details := domain.JSONBMap{
		"domain":           src.Domain,
		"limit":            limit,
		"documents_found":  out.pages,
		"documents_scored": len(out.scored),
		"score_failures":   out.scoreFailures,
	}
	if recErr := s.recorder.Record(ctx, domain.ActionSourceCrawl, subject, time.Since(started), nil, details); recErr != nil {
		return out, recErr
	}
	s.publishCrawled(queryID, out)
	return out, nil
}

func (s *Service) publishCrawled(queryID string, out sourceOutcome) {
	payload := map[string]any{
		"domain":           out.source.Domain,
		"success":          out.fetchErr == nil,
		"documents_scored": len(out.scored),
	}
	if out.fetchErr != nil {
		payload["error"] = out.fetchErr.Error()
	}
	s.events.PublishAsync(events.Event{
		EventType: events.SourceCrawled,
		QueryID:   queryID,
		SourceID:  out.source.ID,
		Payload:   payload,
	})
}

// CrawlSummary is the outcome of a single-source crawl.
type CrawlSummary struct {
	SourceID       string          `json:"source_id"`
	QueryID        string          `json:"query_id,omitempty"`
	SearchText     string          `json:"search_text"`
	DocumentsFound int             `json:"documents_found"`
	ScoreFailures  int             `json:"score_failures"`
	Inserted       int             `json:"inserted"`
	SkippedCurrent int             `json:"skipped_current"`
	Results        []domain.Result `json:"results"`
}

// CrawlSource searches one source on demand. With a queryID the scored batch is
// aggregated with that query's settings and inserted as current results, minus
// URLs already current for it. Without one the source's categories (or its
// name) are the search text and only previews are returned.
func (s *Service) CrawlSource(ctx context.Context, sourceID, queryID string) (*CrawlSummary, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}

	src, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	summary := &CrawlSummary{SourceID: src.ID, QueryID: queryID, Results: []domain.Result{}}
	var q *domain.Query
	limit := domain.DefaultMaxResults
	if queryID != "" {
		q, err = s.queries.GetByID(ctx, queryID)
		if err != nil {
			return nil, err
		}
		unlock, lockErr := s.lockQuery(q.ID)
		if lockErr != nil {
			return nil, lockErr
		}
		defer unlock()
		summary.SearchText = q.QueryText
		limit = q.MaxResults
	} else {
		summary.SearchText = defaultSearchText(*src)
	}

	out, err := s.crawl(ctx, queryID, summary.SearchText, *src, limit)
	if err != nil {
		return nil, err
	}
	summary.DocumentsFound = out.pages
	summary.ScoreFailures = out.scoreFailures
	if out.fetchErr != nil {
		return summary, fmt.Errorf("%w: %w", ErrUpstream, out.fetchErr)
	}

	if q == nil {
		summary.Results = aggregate.Aggregate(out.scored, aggregate.Options{Now: s.now()})
		return summary, nil
	}

	batch := aggregate.Aggregate(out.scored, s.aggregateOptions(q))
	current, err := s.results.CurrentURLs(ctx, q.ID)
	if err != nil {
		return nil, fmt.Errorf("load current results: %w", err)
	}
	fresh := make([]domain.Result, 0, len(batch))
	for _, r := range batch {
		if _, dup := current[r.URL]; dup {
			summary.SkippedCurrent++
			continue
		}
		fresh = append(fresh, r)
	}
	if len(fresh) > 0 {
		if insertErr := s.results.Insert(ctx, fresh); insertErr != nil {
			return nil, fmt.Errorf("insert results: %w", insertErr)
		}
	}
	s.metrics.ResultsStored(len(fresh))
	summary.Inserted = len(fresh)
	summary.Results = fresh
	return summary, nil
}

func defaultSearchText(src domain.Source) string {
	if len(src.Categories) > 0 {
		return strings.Join(src.Categories, " ")
	}
	return src.Name
}

func (s *Service) aggregateOptions(q *domain.Query) aggregate.Options {
	return aggregate.Options{
		MaxResults:    q.MaxResults,
		FreshnessDays: q.FreshnessDays,
		DropUndated:   s.opts.DropUndated,
		Now:           s.now(),
	}
}
