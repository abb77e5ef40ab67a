package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/research/internal/database"
	"github.com/jonesrussell/north-cloud/research/internal/domain"
)

var historyCols = []string{
	"id", "action_type", "query_id", "source_id", "success", "duration_ms",
	"error_message", "details", "created_at", "completed_at",
}

func TestHistoryRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewHistoryRepository(db)
	qid := "q-1"

	mock.ExpectExec("INSERT INTO research_history").
		WithArgs(sqlmock.AnyArg(), "query_run", qid, nil, false, nil, nil, []byte("{}"), sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &domain.HistoryEntry{ActionType: domain.ActionQueryRun, QueryID: &qid}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	expectationsMet(t, mock)
}

func TestHistoryRepository_Complete_OnlyOnce(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewHistoryRepository(db)
	duration := int64(1500)

	mock.ExpectExec(`UPDATE research_history .+ WHERE id = \$1 AND completed_at IS NULL`).
		WithArgs("h-1", true, duration, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE research_history .+ WHERE id = \$1 AND completed_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	entry := &domain.HistoryEntry{
		ID: "h-1", Success: true, DurationMs: &duration,
		Details: domain.JSONBMap{"results_count": 3},
	}
	require.NoError(t, repo.Complete(context.Background(), entry))
	require.NotNil(t, entry.CompletedAt)

	err := repo.Complete(context.Background(), &domain.HistoryEntry{ID: "h-1"})
	require.ErrorIs(t, err, database.ErrNotFound)
	expectationsMet(t, mock)
}

func TestHistoryRepository_List_Filters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewHistoryRepository(db)
	now := time.Now()

	mock.ExpectQuery(`WHERE 1=1 AND action_type = \$1 AND created_at >= \$2 ORDER BY created_at DESC, id ASC LIMIT \$3`).
		WithArgs("source_crawl", sqlmock.AnyArg(), 1000).
		WillReturnRows(sqlmock.NewRows(historyCols).AddRow(
			"h-1", "source_crawl", "q-1", "src-1", false, 120,
			"search failed", []byte(`{"query":"ai site:a.com"}`), now, now,
		))

	entries, err := repo.List(context.Background(), database.HistoryFilter{
		ActionType: domain.ActionSourceCrawl, Days: 7, Limit: 5000,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	require.NotNil(t, entries[0].ErrorMessage)
	assert.Equal(t, "search failed", *entries[0].ErrorMessage)
	assert.Equal(t, "ai site:a.com", entries[0].Details["query"])
	expectationsMet(t, mock)
}

func TestHistoryRepository_List_DefaultLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewHistoryRepository(db)

	mock.ExpectQuery(`FROM research_history WHERE 1=1 ORDER BY created_at DESC, id ASC LIMIT \$1`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(historyCols))

	entries, err := repo.List(context.Background(), database.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	expectationsMet(t, mock)
}
