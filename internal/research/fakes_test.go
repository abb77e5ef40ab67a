package research_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/research/internal/database"
	"github.com/jonesrussell/north-cloud/research/internal/domain"
	"github.com/jonesrussell/north-cloud/research/internal/extract"
)

type fakeSources struct {
	mu      sync.Mutex
	sources []domain.Source
	crawled map[string]time.Time
}

func newFakeSources(sources ...domain.Source) *fakeSources {
	return &fakeSources{sources: sources, crawled: map[string]time.Time{}}
}

func (f *fakeSources) GetByID(_ context.Context, id string) (*domain.Source, error) {
	for _, s := range f.sources {
		if s.ID == id {
			src := s
			return &src, nil
		}
	}
	return nil, fmt.Errorf("source %s: %w", id, database.ErrNotFound)
}

func (f *fakeSources) ListActive(context.Context) ([]domain.Source, error) {
	out := make([]domain.Source, 0, len(f.sources))
	for _, s := range f.sources {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSources) MarkCrawled(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crawled[id] = at
	return nil
}

type fakeQueries struct {
	mu      sync.Mutex
	queries map[string]*domain.Query
	runs    map[string]*time.Time
}

func newFakeQueries(queries ...domain.Query) *fakeQueries {
	f := &fakeQueries{queries: map[string]*domain.Query{}, runs: map[string]*time.Time{}}
	for i := range queries {
		f.queries[queries[i].ID] = &queries[i]
	}
	return f
}

func (f *fakeQueries) GetByID(_ context.Context, id string) (*domain.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queries[id]
	if !ok {
		return nil, fmt.Errorf("query %s: %w", id, database.ErrNotFound)
	}
	cp := *q
	return &cp, nil
}

func (f *fakeQueries) ListDue(_ context.Context, now time.Time) ([]domain.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Query, 0)
	for _, q := range f.queries {
		if q.IsDue(now) {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeQueries) MarkRun(_ context.Context, id string, last time.Time, next *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.queries[id]
	q.LastRunAt = &last
	q.NextRunAt = next
	f.runs[id] = next
	return nil
}

type fakeResults struct {
	mu        sync.Mutex
	rows      []domain.Result
	insertErr error
}

func (f *fakeResults) SupersedeCurrent(_ context.Context, queryID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.rows {
		if f.rows[i].QueryID == queryID && !f.rows[i].IsDuplicate {
			f.rows[i].IsDuplicate = true
			n++
		}
	}
	return n, nil
}

func (f *fakeResults) Insert(_ context.Context, results []domain.Result) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, results...)
	return nil
}

func (f *fakeResults) CurrentURLs(_ context.Context, queryID string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]struct{}{}
	for _, r := range f.rows {
		if r.QueryID == queryID && !r.IsDuplicate {
			out[r.URL] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeResults) current(queryID string) []domain.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Result, 0)
	for _, r := range f.rows {
		if r.QueryID == queryID && !r.IsDuplicate {
			out = append(out, r)
		}
	}
	return out
}

type fakePosts struct {
	posts []domain.ContentPost
}

func (f *fakePosts) PublishDue(context.Context, time.Time) ([]domain.ContentPost, error) {
	out := f.posts
	f.posts = nil
	if out == nil {
		out = []domain.ContentPost{}
	}
	return out, nil
}

// fakeFetcher serves pages by source domain. A nil entry in errs means success.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string][]extract.Page
	errs   map[string]error
	calls  map[string]int
	limits map[string]int
	gate   chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:  map[string][]extract.Page{},
		errs:   map[string]error{},
		calls:  map[string]int{},
		limits: map[string]int{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ string, src domain.Source, limit int) ([]extract.Page, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[src.Domain]++
	f.limits[src.Domain] = limit
	if err := f.errs[src.Domain]; err != nil {
		return nil, err
	}
	pages := f.pages[src.Domain]
	if len(pages) > limit {
		pages = pages[:limit]
	}
	return pages, nil
}

// fakeScorer reads the relevance from a "score=<n>" marker in the page content.
type fakeScorer struct {
	failURL string
}

var errScoring = errors.New("model overloaded")

func (f *fakeScorer) Score(_ context.Context, _ string, page extract.Page) (domain.Result, error) {
	if page.URL == f.failURL {
		return domain.Result{}, errScoring
	}
	var score float64
	if i := strings.Index(page.Content, "score="); i >= 0 {
		_, _ = fmt.Sscanf(page.Content[i:], "score=%g", &score)
	}
	return domain.Result{
		Title:          page.Title,
		URL:            page.URL,
		Content:        page.Content,
		RelevanceScore: score,
		PublishedDate:  page.PublishedDate,
	}, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []*domain.HistoryEntry
	seq     int
}

func (f *fakeHistory) Create(_ context.Context, e *domain.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	e.ID = fmt.Sprintf("h-%d", f.seq)
	cp := *e
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeHistory) Complete(_ context.Context, e *domain.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.entries {
		if existing.ID == e.ID {
			if existing.CompletedAt != nil {
				return database.ErrNotFound
			}
			cp := *e
			f.entries[i] = &cp
			return nil
		}
	}
	return database.ErrNotFound
}

func (f *fakeHistory) byAction(action domain.ActionType) []domain.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.HistoryEntry, 0)
	for _, e := range f.entries {
		if e.ActionType == action {
			out = append(out, *e)
		}
	}
	return out
}

func pageFor(domainName, path string, score float64) extract.Page {
	return extract.Page{
		Title:   path,
		URL:     "https://" + domainName + "/" + path,
		Content: fmt.Sprintf("body score=%g", score),
	}
}
