package api_test

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
	"github.com/jonesrussell/north-cloud/research/internal/research"
)

func TestCreateSource_DerivesDomainAndAudits(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/sources", map[string]any{
		"name":       "Go Blog",
		"url":        "https://WWW.Go.dev/blog",
		"type":       "blog",
		"categories": []string{" Go ", "go", "Cloud"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	src := decode[domain.Source](t, w)
	assert.Equal(t, "go.dev", src.Domain)
	assert.True(t, src.Active)
	assert.Equal(t, []string{"go", "cloud"}, []string(src.Categories))
	assert.Equal(t, []domain.ActionType{domain.ActionConfigChange}, env.history.actions())
}

func TestCreateSource_Invalid(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/sources", map[string]any{"name": "x", "url": "ftp://x.io"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "url must be")
	assert.Empty(t, env.history.actions())
}

func TestGetSource_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/sources/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSource_SoftByDefault(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.sources = newMemSources(domain.Source{ID: "s1", Name: "a", Active: true})
	env.build(authConfig())

	w := env.do(t, http.MethodDelete, "/api/v1/sources/s1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, env.sources.rows["s1"].Active)
	assert.Empty(t, env.sources.deleted)

	w = env.do(t, http.MethodDelete, "/api/v1/sources/s1?hard=true", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"s1"}, env.sources.deleted)
}

func TestUpdateSource_RederivesDomainOnNewURL(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.sources = newMemSources(domain.Source{ID: "s1", Name: "a", URL: "https://old.io", Domain: "old.io", Type: domain.SourceWebsite, Active: true})
	env.build(authConfig())

	w := env.do(t, http.MethodPut, "/api/v1/sources/s1", map[string]any{"name": "a", "url": "https://new.io/x"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "new.io", env.sources.rows["s1"].Domain)
}

func TestCrawlSource_PassesQueryID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.pipeline.On("CrawlSource", mock.Anything, "s1", "q1").
		Return(&research.CrawlSummary{SourceID: "s1", QueryID: "q1", Inserted: 2}, nil).Once()

	w := env.do(t, http.MethodPost, "/api/v1/sources/s1/crawl", map[string]string{"query_id": "q1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[research.CrawlSummary](t, w).Inserted)
	env.pipeline.AssertExpectations(t)
}

func TestCrawlSource_UpstreamFailureIs502(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.pipeline.On("CrawlSource", mock.Anything, "s1", "").
		Return(nil, errors.Join(research.ErrUpstream, errors.New("timeout"))).Once()

	w := env.do(t, http.MethodPost, "/api/v1/sources/s1/crawl", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestCreateQuery_ScheduledGetsNextRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/queries", map[string]any{
		"name":               "weekly ai",
		"query_text":         "ai agents",
		"schedule_enabled":   true,
		"schedule_frequency": "weekly",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	q := decode[domain.Query](t, w)
	assert.Equal(t, domain.DefaultMaxResults, q.MaxResults)
	require.NotNil(t, q.NextRunAt)
	assert.True(t, q.NextRunAt.After(time.Now()))
	assert.Equal(t, time.Sunday, q.NextRunAt.UTC().Weekday())
}

func TestCreateQuery_Invalid(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/queries", map[string]any{
		"name": "x", "query_text": "y", "max_results": 101,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunQuery_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"running", research.ErrQueryRunning, http.StatusConflict},
		{"not configured", research.ErrNotConfigured, http.StatusServiceUnavailable},
		{"storage", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			env.pipeline.On("RunQuery", mock.Anything, "q1").Return(nil, tt.err).Once()

			w := env.do(t, http.MethodPost, "/api/v1/queries/q1/run", nil)
			assert.Equal(t, tt.want, w.Code)
			body := decode[map[string]string](t, w)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRunQuery_Success(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.pipeline.On("RunQuery", mock.Anything, "q1").
		Return(&research.RunSummary{QueryID: "q1", ResultsCount: 4}, nil).Once()

	w := env.do(t, http.MethodPost, "/api/v1/queries/q1/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, decode[research.RunSummary](t, w).ResultsCount)
}

func TestListResults_CurrentOnlyByDefault(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.queries = newMemQueries(domain.Query{ID: "q1", Name: "q"})
	env.results.rows = []domain.Result{
		{ID: "r1", QueryID: "q1", URL: "https://a/1"},
		{ID: "r0", QueryID: "q1", URL: "https://a/0", IsDuplicate: true},
	}
	env.build(authConfig())

	w := env.do(t, http.MethodGet, "/api/v1/queries/q1/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 1, decode[map[string]any](t, w)["count"], 0)

	w = env.do(t, http.MethodGet, "/api/v1/queries/q1/results?include_superseded=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 2, decode[map[string]any](t, w)["count"], 0)
}

func TestSaveAndUseResult(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sourceID := "s1"
	env.results.rows = []domain.Result{{ID: "r1", QueryID: "q1", SourceID: &sourceID, URL: "https://a/1"}}

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/results/r1/save", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/results/r1/use", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/results/nope/use", nil).Code)

	assert.Equal(t, []domain.ActionType{domain.ActionResultSaved, domain.ActionResultUsed}, env.history.actions())
	require.NotNil(t, env.history.entries[0].SourceID)
	assert.Equal(t, "s1", *env.history.entries[0].SourceID)
}

func TestListHistory_Filters(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/history?action_type=source_crawl&days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, env.history.filters, 1)
	assert.Equal(t, domain.ActionSourceCrawl, env.history.filters[0].ActionType)
	assert.Equal(t, 7, env.history.filters[0].Days)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/history?action_type=bogus", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/history?days=-1", nil).Code)
}

func TestRunCron(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.pipeline.On("Tick", mock.Anything).Return(&research.TickSummary{QueriesRun: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/run", http.NoBody)
	req.Header.Set("X-Cron-Secret", "cron-secret")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[research.TickSummary](t, w).QueriesRun)

	// The admin token is not a cron credential.
	w = env.do(t, http.MethodPost, "/api/v1/cron/run", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	env.pipeline.AssertExpectations(t)
}

func TestImportSources(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"name", "url", "categories"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Go", "https://go.dev", "go"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"", "https://nameless.io", ""}))
	workbook, err := f.WriteToBuffer()
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "sources.xlsx")
	require.NoError(t, err)
	_, err = part.Write(workbook.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sources/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[struct {
		Created int `json:"created"`
		Errors  []struct {
			Row int `json:"row"`
		} `json:"errors"`
	}](t, w)
	assert.Equal(t, 1, resp.Created)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 3, resp.Errors[0].Row)
	assert.Len(t, env.sources.rows, 1)
}
