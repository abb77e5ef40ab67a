package research_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/research/internal/database"
	"github.com/jonesrussell/north-cloud/research/internal/domain"
	"github.com/jonesrussell/north-cloud/research/internal/extract"
	"github.com/jonesrussell/north-cloud/research/internal/history"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/research/internal/llm"
	"github.com/jonesrussell/north-cloud/research/internal/research"
	"github.com/jonesrussell/north-cloud/research/internal/scoring"
)

type harness struct {
	sources *fakeSources
	queries *fakeQueries
	results *fakeResults
	posts   *fakePosts
	fetch   *fakeFetcher
	scorer  research.Scorer
	history *fakeHistory
	ready   func() error
	opts    research.Options
}

func newHarness(sources []domain.Source, queries ...domain.Query) *harness {
	return &harness{
		sources: newFakeSources(sources...),
		queries: newFakeQueries(queries...),
		results: &fakeResults{},
		posts:   &fakePosts{},
		fetch:   newFakeFetcher(),
		scorer:  &fakeScorer{},
		history: &fakeHistory{},
	}
}

func (h *harness) service() *research.Service {
	log := infralogger.NewNop()
	return research.NewService(research.Deps{
		Sources:  h.sources,
		Queries:  h.queries,
		Results:  h.results,
		Posts:    h.posts,
		Fetcher:  h.fetch,
		Scorer:   h.scorer,
		Recorder: history.NewRecorder(h.history, log),
		Logger:   log,
		Ready:    h.ready,
	}, h.opts)
}

func source(id, domainName string) domain.Source {
	return domain.Source{ID: id, Name: id, Domain: domainName, Active: true, ReliabilityScore: 0.8}
}

func TestRunQuery_TwoSourcesTopFive(t *testing.T) {
	t.Parallel()

	h := newHarness(
		[]domain.Source{source("a", "a.com"), source("b", "b.com")},
		domain.Query{ID: "q1", QueryText: "go generics", MaxResults: 5},
	)
	h.fetch.pages["a.com"] = []extract.Page{pageFor("a.com", "1", 0.9), pageFor("a.com", "2", 0.4), pageFor("a.com", "3", 0.7)}
	h.fetch.pages["b.com"] = []extract.Page{pageFor("b.com", "1", 0.8), pageFor("b.com", "2", 0.2), pageFor("b.com", "3", 0.6)}

	summary, err := h.service().RunQuery(context.Background(), "q1")
	require.NoError(t, err)

	assert.Equal(t, 3, h.fetch.limits["a.com"])
	assert.Equal(t, 3, h.fetch.limits["b.com"])
	assert.Equal(t, 2, summary.SourcesSearched)
	require.Equal(t, 5, summary.ResultsCount)

	scores := make([]float64, 0, len(summary.Results))
	for _, r := range summary.Results {
		scores = append(scores, r.RelevanceScore)
		assert.Equal(t, "q1", r.QueryID)
		require.NotNil(t, r.SourceID)
	}
	assert.Equal(t, []float64{0.9, 0.8, 0.7, 0.6, 0.4}, scores)
	assert.Len(t, h.results.current("q1"), 5)

	runs := h.history.byAction(domain.ActionQueryRun)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	require.NotNil(t, runs[0].CompletedAt)
	assert.Equal(t, 5, runs[0].Details["results_count"])
	assert.Equal(t, 2, runs[0].Details["sources_searched"])
	assert.Len(t, h.history.byAction(domain.ActionSourceCrawl), 2)
}

func TestRunQuery_FailingSourceContinues(t *testing.T) {
	t.Parallel()

	h := newHarness(
		[]domain.Source{source("a", "a.com"), source("b", "b.com")},
		domain.Query{ID: "q1", QueryText: "rust", MaxResults: 10},
	)
	h.fetch.pages["a.com"] = []extract.Page{pageFor("a.com", "1", 0.5)}
	h.fetch.errs["b.com"] = errors.New("search timeout")

	summary, err := h.service().RunQuery(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ResultsCount)
	assert.Equal(t, 1, summary.SourcesFailed)

	crawls := h.history.byAction(domain.ActionSourceCrawl)
	require.Len(t, crawls, 2)
	var failed *domain.HistoryEntry
	for i := range crawls {
		if !crawls[i].Success {
			failed = &crawls[i]
		}
	}
	require.NotNil(t, failed)
	require.NotNil(t, failed.SourceID)
	assert.Equal(t, "b", *failed.SourceID)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "search timeout")

	assert.Contains(t, h.sources.crawled, "a")
	assert.NotContains(t, h.sources.crawled, "b")

	runs := h.history.byAction(domain.ActionQueryRun)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
}

func TestRunQuery_DuplicateURLKeepsBest(t *testing.T) {
	t.Parallel()

	h := newHarness(
		[]domain.Source{source("a", "a.com"), source("b", "b.com")},
		domain.Query{ID: "q1", QueryText: "x", MaxResults: 10},
	)
	same := "https://a.com/shared"
	h.fetch.pages["a.com"] = []extract.Page{{URL: same, Content: "score=0.6"}}
	h.fetch.pages["b.com"] = []extract.Page{{URL: same, Content: "score=0.75"}}

	summary, err := h.service().RunQuery(context.Background(), "q1")
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.InDelta(t, 0.75, summary.Results[0].RelevanceScore, 0.0001)
	assert.Equal(t, "b", *summary.Results[0].SourceID)
}

type stubGenerator struct{ content string }

func (g stubGenerator) GenerateResponse(context.Context, string) (*llm.Response, error) {
	return &llm.Response{Content: g.content}, nil
}

func TestRunQuery_MissingRelevanceDefaults(t *testing.T) {
	t.Parallel()

	h := newHarness([]domain.Source{source("a", "a.com")}, domain.Query{ID: "q1", QueryText: "x", MaxResults: 3})
	h.scorer = scoring.NewScorer(stubGenerator{content: "Summary: fine\nTopics: go"}, infralogger.NewNop())
	h.fetch.pages["a.com"] = []extract.Page{pageFor("a.com", "1", 0)}

	summary, err := h.service().RunQuery(context.Background(), "q1")
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.InDelta(t, domain.DefaultRelevance, summary.Results[0].RelevanceScore, 0.0001)
}

func TestRunQuery_ScoringFailureSkipsDocument(t *testing.T) {
	t.Parallel()

	h := newHarness([]domain.Source{source("a", "a.com")}, domain.Query{ID: "q1", QueryText: "x", MaxResults: 3})
	h.fetch.pages["a.com"] = []extract.Page{pageFor("a.com", "1", 0.3), pageFor("a.com", "2", 0.4)}
	h.scorer = &fakeScorer{failURL: "https://a.com/1"}

	summary, err := h.service().RunQuery(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ResultsCount)
	assert.Equal(t, 1, summary.ScoreFailures)
}

func TestRunQuery_PersistenceErrorFailsRun(t *testing.T) {
	t.Parallel()

	h := newHarness([]domain.Source{source("a", "a.com")}, domain.Query{ID: "q1", QueryText: "x", MaxResults: 3})
	h.fetch.pages["a.com"] = []extract.Page{pageFor("a.com", "1", 0.3)}
	h.results.insertErr = errors.New("connection reset")

	_, err := h.service().RunQuery(context.Background(), "q1")
	require.Error(t, err)

	runs := h.history.byAction(domain.ActionQueryRun)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Success)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Contains(t, *runs[0].ErrorMessage, "connection reset")
	assert.Nil(t, h.queries.queries["q1"].LastRunAt)
}

func TestRunQuery_SupersedesPreviousBatch(t *testing.T) {
	t.Parallel()

	h := newHarness([]domain.Source{source("a", "a.com")}, domain.Query{ID: "q1", QueryText: "x", MaxResults: 2})
	h.fetch.pages["a.com"] = []extract.Page{pageFor("a.com", "1", 0.3)}
	svc := h.service()

	_, err := svc.RunQuery(context.Background(), "q1")
	require.NoError(t, err)
	second, err := svc.RunQuery(context.Background(), "q1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), second.Superseded)
	assert.Len(t, h.results.current("q1"), 1)
	assert.Len(t, h.results.rows, 2)
}

func TestRunQuery_NotConfigured(t *testing.T) {
	t.Parallel()

	h := newHarness(nil, domain.Query{ID: "q1", QueryText: "x", MaxResults: 2})
	h.ready = func() error { return llm.ErrNotConfigured }

	_, err := h.service().RunQuery(context.Background(), "q1")
	require.ErrorIs(t, err, research.ErrNotConfigured)
	require.ErrorIs(t, err, llm.ErrNotConfigured)
	assert.Empty(t, h.history.byAction(domain.ActionQueryRun))
}

func TestRunQuery_NotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)
	_, err := h.service().RunQuery(context.Background(), "missing")
	require.ErrorIs(t, err, database.ErrNotFound)
}

func TestRunQuery_SchedulesNextRun(t *testing.T) {
	t.Parallel()

	h := newHarness([]domain.Source{source("a", "a.com")}, domain.Query{
		ID: "q1", QueryText: "x", MaxResults: 2,
		ScheduleEnabled: true, ScheduleFrequency: domain.FrequencyDaily,
	})

	summary, err := h.service().RunQuery(context.Background(), "q1")
	require.NoError(t, err)
	require.NotNil(t, summary.NextRunAt)
	assert.True(t, summary.NextRunAt.After(time.Now()))
	assert.Equal(t, 0, summary.NextRunAt.Hour())
}

func TestRunQuery_SecondConcurrentRunRejected(t *testing.T) {
	t.Parallel()

	h := newHarness([]domain.Source{source("a", "a.com")}, domain.Query{ID: "q1", QueryText: "x", MaxResults: 2})
	h.fetch.gate = make(chan struct{})
	svc := h.service()

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = svc.RunQuery(context.Background(), "q1")
	}()

	require.Eventually(t, func() bool {
		return len(h.history.byAction(domain.ActionQueryRun)) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := svc.RunQuery(context.Background(), "q1")
	require.ErrorIs(t, err, research.ErrQueryRunning)

	close(h.fetch.gate)
	wg.Wait()
	require.NoError(t, firstErr)
}

func TestRunQuery_ConcurrentFanOutKeepsSourceOrder(t *testing.T) {
	t.Parallel()

	sources := []domain.Source{source("a", "a.com"), source("b", "b.com"), source("c", "c.com")}
	h := newHarness(sources, domain.Query{ID: "q1", QueryText: "x", MaxResults: 3})
	h.opts = research.Options{Concurrency: 3}
	for _, s := range sources {
		h.fetch.pages[s.Domain] = []extract.Page{pageFor(s.Domain, "p", 0.5)}
	}

	summary, err := h.service().RunQuery(context.Background(), "q1")
	require.NoError(t, err)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, "https://a.com/p", summary.Results[0].URL)
	assert.Equal(t, "https://b.com/p", summary.Results[1].URL)
	assert.Equal(t, "https://c.com/p", summary.Results[2].URL)
}

func TestCrawlSource_PreviewOnly(t *testing.T) {
	t.Parallel()

	src := source("a", "a.com")
	src.Categories = []string{"go", "cloud"}
	h := newHarness([]domain.Source{src})
	h.fetch.pages["a.com"] = []extract.Page{pageFor("a.com", "1", 0.4)}

	summary, err := h.service().CrawlSource(context.Background(), "a", "")
	require.NoError(t, err)
	assert.Equal(t, "go cloud", summary.SearchText)
	assert.Len(t, summary.Results, 1)
	assert.Zero(t, summary.Inserted)
	assert.Empty(t, h.results.rows)
	assert.Contains(t, h.sources.crawled, "a")
	assert.Len(t, h.history.byAction(domain.ActionSourceCrawl), 1)
}

func TestCrawlSource_WithQuerySkipsCurrentURLs(t *testing.T) {
	t.Parallel()

	h := newHarness([]domain.Source{source("a", "a.com")}, domain.Query{ID: "q1", QueryText: "x", MaxResults: 5})
	h.results.rows = []domain.Result{{QueryID: "q1", URL: "https://a.com/1"}}
	h.fetch.pages["a.com"] = []extract.Page{pageFor("a.com", "1", 0.4), pageFor("a.com", "2", 0.6)}

	summary, err := h.service().CrawlSource(context.Background(), "a", "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.SkippedCurrent)
	assert.Len(t, h.results.current("q1"), 2)
}

func TestCrawlSource_UpstreamFailure(t *testing.T) {
	t.Parallel()

	h := newHarness([]domain.Source{source("a", "a.com")})
	h.fetch.errs["a.com"] = errors.New("502 bad gateway")

	_, err := h.service().CrawlSource(context.Background(), "a", "")
	require.ErrorIs(t, err, research.ErrUpstream)

	crawls := h.history.byAction(domain.ActionSourceCrawl)
	require.Len(t, crawls, 1)
	assert.False(t, crawls[0].Success)
}

func TestTick_RunsDueAndPublishesPosts(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour)
	h := newHarness(
		[]domain.Source{source("a", "a.com")},
		domain.Query{ID: "due", QueryText: "x", MaxResults: 2, ScheduleEnabled: true,
			ScheduleFrequency: domain.FrequencyWeekly, NextRunAt: &past},
		domain.Query{ID: "idle", QueryText: "y", MaxResults: 2},
	)
	h.fetch.pages["a.com"] = []extract.Page{pageFor("a.com", "1", 0.4)}
	h.posts.posts = []domain.ContentPost{{ID: "p1", Status: domain.PostPublished}}

	summary, err := h.service().Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.QueriesDue)
	assert.Equal(t, 1, summary.QueriesRun)
	require.Len(t, summary.Queries, 1)
	assert.Equal(t, "due", summary.Queries[0].QueryID)
	assert.Len(t, summary.PostsPublished, 1)
	require.NotNil(t, h.queries.queries["due"].NextRunAt)
	assert.True(t, h.queries.queries["due"].NextRunAt.After(time.Now()))
}

func TestTick_NotConfiguredStillPublishes(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)
	h.ready = func() error { return errors.New("search api key missing") }
	h.posts.posts = []domain.ContentPost{{ID: "p1"}}

	summary, err := h.service().Tick(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, summary.QueriesSkipped)
	assert.Len(t, summary.PostsPublished, 1)
	assert.Zero(t, summary.QueriesRun)
}
