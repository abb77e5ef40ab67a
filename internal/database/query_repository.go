package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
)

const queryColumns = `id, name, query_text, type, categories, include_sources, exclude_sources,
	max_results, freshness_days, min_reliability_score, schedule_enabled, schedule_frequency,
	last_run_at, next_run_at, created_at, updated_at`

// QueryRepository persists research queries.
type QueryRepository struct {
	db *sqlx.DB
}

func NewQueryRepository(db *sqlx.DB) *QueryRepository {
	return &QueryRepository{db: db}
}

// QueryFilter narrows List.
type QueryFilter struct {
	Scheduled *bool
	Type      domain.QueryType
	Limit     int
	Offset    int
}

func (r *QueryRepository) Create(ctx context.Context, q *domain.Query) error {
	now := time.Now().UTC()
	q.ID = uuid.New().String()
	q.CreatedAt = now
	q.UpdatedAt = now

	query := `
		INSERT INTO research_queries (
			id, name, query_text, type, categories, include_sources, exclude_sources,
			max_results, freshness_days, min_reliability_score, schedule_enabled,
			schedule_frequency, next_run_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		q.ID, q.Name, q.QueryText, q.Type, q.Categories, q.IncludeSources, q.ExcludeSources,
		q.MaxResults, q.FreshnessDays, q.MinReliabilityScore, q.ScheduleEnabled,
		q.ScheduleFrequency, q.NextRunAt, q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert query: %w", err)
	}
	return nil
}

func (r *QueryRepository) GetByID(ctx context.Context, id string) (*domain.Query, error) {
	var q domain.Query
	query := `SELECT ` + queryColumns + ` FROM research_queries WHERE id = $1`
	if err := r.db.GetContext(ctx, &q, query, id); err != nil {
		return nil, wrapGet(err, "query", id)
	}
	return &q, nil
}

func (r *QueryRepository) List(ctx context.Context, filter QueryFilter) ([]domain.Query, error) {
	query := `SELECT ` + queryColumns + ` FROM research_queries WHERE 1=1`
	var args []any

	if filter.Scheduled != nil {
		args = append(args, *filter.Scheduled)
		query += ` AND schedule_enabled = $` + strconv.Itoa(len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += ` AND type = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, filter.Limit, filter.Offset)
	}

	queries := make([]domain.Query, 0)
	if err := r.db.SelectContext(ctx, &queries, query, args...); err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	return queries, nil
}

// ListDue returns scheduled queries whose next run is unset or not after now,
// oldest schedule first.
func (r *QueryRepository) ListDue(ctx context.Context, now time.Time) ([]domain.Query, error) {
	query := `SELECT ` + queryColumns + ` FROM research_queries
		WHERE schedule_enabled = TRUE AND (next_run_at IS NULL OR next_run_at <= $1)
		ORDER BY next_run_at ASC NULLS FIRST, id ASC`

	queries := make([]domain.Query, 0)
	if err := r.db.SelectContext(ctx, &queries, query, now); err != nil {
		return nil, fmt.Errorf("list due queries: %w", err)
	}
	return queries, nil
}

func (r *QueryRepository) Update(ctx context.Context, q *domain.Query) error {
	q.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE research_queries
		SET name = $2, query_text = $3, type = $4, categories = $5, include_sources = $6,
			exclude_sources = $7, max_results = $8, freshness_days = $9,
			min_reliability_score = $10, schedule_enabled = $11, schedule_frequency = $12,
			next_run_at = $13, updated_at = $14
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		q.ID, q.Name, q.QueryText, q.Type, q.Categories, q.IncludeSources,
		q.ExcludeSources, q.MaxResults, q.FreshnessDays,
		q.MinReliabilityScore, q.ScheduleEnabled, q.ScheduleFrequency,
		q.NextRunAt, q.UpdatedAt,
	)
	if execErr := execRequireRows(result, err, notFound("query", q.ID)); execErr != nil {
		return fmt.Errorf("update query: %w", execErr)
	}
	return nil
}

// MarkRun stamps a completed run. nextRunAt is nil for unscheduled queries.
func (r *QueryRepository) MarkRun(ctx context.Context, id string, lastRunAt time.Time, nextRunAt *time.Time) error {
	query := `UPDATE research_queries SET last_run_at = $2, next_run_at = $3, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, lastRunAt, nextRunAt)
	if execErr := execRequireRows(result, err, notFound("query", id)); execErr != nil {
		return fmt.Errorf("mark query run: %w", execErr)
	}
	return nil
}

// Delete removes a query and, through the foreign key, its results.
func (r *QueryRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM research_queries WHERE id = $1`, id)
	if execErr := execRequireRows(result, err, notFound("query", id)); execErr != nil {
		return fmt.Errorf("delete query: %w", execErr)
	}
	return nil
}
