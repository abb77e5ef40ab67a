package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
)

// ContentPostRepository publishes scheduled site content.
type ContentPostRepository struct {
	db *sqlx.DB
}

func NewContentPostRepository(db *sqlx.DB) *ContentPostRepository {
	return &ContentPostRepository{db: db}
}

// PublishDue flips every scheduled post due at or before now to published in a
// single statement and returns the rows it changed.
func (r *ContentPostRepository) PublishDue(ctx context.Context, now time.Time) ([]domain.ContentPost, error) {
	query := `
		UPDATE content_posts
		SET status = $1, published_at = $3, updated_at = $3
		WHERE status = $2 AND scheduled_for IS NOT NULL AND scheduled_for <= $3
		RETURNING id, title, status, scheduled_for, published_at
	`

	posts := make([]domain.ContentPost, 0)
	if err := r.db.SelectContext(ctx, &posts, query, domain.PostPublished, domain.PostScheduled, now); err != nil {
		return nil, fmt.Errorf("publish due posts: %w", err)
	}
	return posts, nil
}
