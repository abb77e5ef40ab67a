package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
)

const resultColumns = `id, query_id, source_id, title, url, content, summary, key_points,
	relevance_score, topics, published_date, is_duplicate, created_at`

// ResultRepository persists scored results.
type ResultRepository struct {
	db *sqlx.DB
}

func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// SupersedeCurrent marks every current result of queryID as a duplicate and
// reports how many rows changed.
func (r *ResultRepository) SupersedeCurrent(ctx context.Context, queryID string) (int64, error) {
	query := `UPDATE research_results SET is_duplicate = TRUE WHERE query_id = $1 AND is_duplicate = FALSE`
	result, err := r.db.ExecContext(ctx, query, queryID)
	if err != nil {
		return 0, fmt.Errorf("supersede results: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("supersede results: %w", err)
	}
	return n, nil
}

// Insert stores results in order, assigning ids and timestamps. The first
// failing row stops the batch; earlier rows stay committed.
func (r *ResultRepository) Insert(ctx context.Context, results []domain.Result) error {
	query := `
		INSERT INTO research_results (
			id, query_id, source_id, title, url, content, summary, key_points,
			relevance_score, topics, published_date, is_duplicate, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	now := time.Now().UTC()
	for i := range results {
		res := &results[i]
		res.ID = uuid.New().String()
		res.CreatedAt = now
		res.IsDuplicate = false

		_, err := r.db.ExecContext(ctx, query,
			res.ID, res.QueryID, res.SourceID, res.Title, res.URL, res.Content, res.Summary,
			res.KeyPoints, res.RelevanceScore, res.Topics, res.PublishedDate, res.IsDuplicate, res.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert result %d of %d: %w", i+1, len(results), err)
		}
	}
	return nil
}

func (r *ResultRepository) GetByID(ctx context.Context, id string) (*domain.Result, error) {
	var res domain.Result
	if err := r.db.GetContext(ctx, &res, `SELECT `+resultColumns+` FROM research_results WHERE id = $1`, id); err != nil {
		return nil, wrapGet(err, "result", id)
	}
	return &res, nil
}

// ListByQuery returns current results by relevance, or every row when includeSuperseded is set.
func (r *ResultRepository) ListByQuery(
	ctx context.Context,
	queryID string,
	includeSuperseded bool,
	limit int,
) ([]domain.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM research_results WHERE query_id = $1`
	if !includeSuperseded {
		query += ` AND is_duplicate = FALSE`
	}
	query += ` ORDER BY is_duplicate ASC, relevance_score DESC, created_at DESC LIMIT $2`

	results := make([]domain.Result, 0)
	if err := r.db.SelectContext(ctx, &results, query, queryID, limit); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

// CurrentURLs returns the URLs of queryID's current results.
func (r *ResultRepository) CurrentURLs(ctx context.Context, queryID string) (map[string]struct{}, error) {
	var urls []string
	query := `SELECT url FROM research_results WHERE query_id = $1 AND is_duplicate = FALSE`
	if err := r.db.SelectContext(ctx, &urls, query, queryID); err != nil {
		return nil, fmt.Errorf("list current urls: %w", err)
	}

	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		set[u] = struct{}{}
	}
	return set, nil
}
