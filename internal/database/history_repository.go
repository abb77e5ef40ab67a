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

const historyColumns = `id, action_type, query_id, source_id, success, duration_ms,
	error_message, details, created_at, completed_at`

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// HistoryRepository appends and completes audit entries.
type HistoryRepository struct {
	db *sqlx.DB
}

func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// HistoryFilter narrows List. Days > 0 keeps entries created in the last N days.
type HistoryFilter struct {
	ActionType domain.ActionType
	QueryID    string
	SourceID   string
	Days       int
	Limit      int
}

// Create appends e. Entries created with CompletedAt set are final on insert.
func (r *HistoryRepository) Create(ctx context.Context, e *domain.HistoryEntry) error {
	e.ID = uuid.New().String()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO research_history (
			id, action_type, query_id, source_id, success, duration_ms,
			error_message, details, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.ActionType, e.QueryID, e.SourceID, e.Success, e.DurationMs,
		e.ErrorMessage, e.Details, e.CreatedAt, e.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// Complete finalizes an open entry. Completing twice, or completing an entry
// that was final on insert, returns ErrNotFound.
func (r *HistoryRepository) Complete(ctx context.Context, e *domain.HistoryEntry) error {
	if e.CompletedAt == nil {
		now := time.Now().UTC()
		e.CompletedAt = &now
	}

	query := `
		UPDATE research_history
		SET success = $2, duration_ms = $3, error_message = $4, details = $5, completed_at = $6
		WHERE id = $1 AND completed_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		e.ID, e.Success, e.DurationMs, e.ErrorMessage, e.Details, e.CompletedAt,
	)
	if execErr := execRequireRows(result, err, notFound("open history entry", e.ID)); execErr != nil {
		return fmt.Errorf("complete history entry: %w", execErr)
	}
	return nil
}

// List returns newest entries first.
func (r *HistoryRepository) List(ctx context.Context, filter HistoryFilter) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM research_history WHERE 1=1`
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		query += ` AND ` + cond + ` $` + strconv.Itoa(len(args))
	}

	if filter.ActionType != "" {
		add("action_type =", filter.ActionType)
	}
	if filter.QueryID != "" {
		add("query_id =", filter.QueryID)
	}
	if filter.SourceID != "" {
		add("source_id =", filter.SourceID)
	}
	if filter.Days > 0 {
		add("created_at >=", time.Now().UTC().AddDate(0, 0, -filter.Days))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	args = append(args, limit)
	query += ` ORDER BY created_at DESC, id ASC LIMIT $` + strconv.Itoa(len(args))

	entries := make([]domain.HistoryEntry, 0)
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}
