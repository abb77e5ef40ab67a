package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
)

const sourceColumns = `id, name, url, domain, type, categories, active,
	reliability_score, last_crawled_at, created_at, updated_at`

// SourceRepository persists research sources.
type SourceRepository struct {
	db *sqlx.DB
}

func NewSourceRepository(db *sqlx.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// SourceFilter narrows List and Count.
type SourceFilter struct {
	Active    *bool
	Type      domain.SourceType
	Category  string
	Search    string // ILIKE on name or domain
	SortBy    string // name, domain, reliability_score, created_at, last_crawled_at
	SortOrder string // asc, desc
	Limit     int
	Offset    int
}

var sourceSortColumns = map[string]string{
	"name":              "name",
	"domain":            "domain",
	"reliability_score": "reliability_score",
	"created_at":        "created_at",
	"last_crawled_at":   "last_crawled_at",
}

func (r *SourceRepository) Create(ctx context.Context, s *domain.Source) error {
	now := time.Now().UTC()
	s.ID = uuid.New().String()
	s.CreatedAt = now
	s.UpdatedAt = now

	query := `
		INSERT INTO research_sources (
			id, name, url, domain, type, categories, active,
			reliability_score, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Name, s.URL, s.Domain, s.Type, s.Categories, s.Active,
		s.ReliabilityScore, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

func (r *SourceRepository) GetByID(ctx context.Context, id string) (*domain.Source, error) {
	var s domain.Source
	query := `SELECT ` + sourceColumns + ` FROM research_sources WHERE id = $1`
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		return nil, wrapGet(err, "source", id)
	}
	return &s, nil
}

// List returns sources matching filter. A zero Limit returns every match.
func (r *SourceRepository) List(ctx context.Context, filter SourceFilter) ([]domain.Source, error) {
	where, args := buildSourceWhere(filter)
	// #nosec G202 -- where clause uses placeholders, order column comes from a whitelist
	query := `SELECT ` + sourceColumns + ` FROM research_sources WHERE 1=1` + where +
		buildOrder(filter.SortBy, filter.SortOrder, sourceSortColumns, "name")

	if filter.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, filter.Limit, filter.Offset)
	}

	sources := make([]domain.Source, 0)
	if err := r.db.SelectContext(ctx, &sources, query, args...); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// ListActive returns every active source ordered by name.
func (r *SourceRepository) ListActive(ctx context.Context) ([]domain.Source, error) {
	active := true
	return r.List(ctx, SourceFilter{Active: &active})
}

// Count ignores Limit, Offset and sorting.
func (r *SourceRepository) Count(ctx context.Context, filter SourceFilter) (int, error) {
	where, args := buildSourceWhere(filter)
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM research_sources WHERE 1=1`+where, args...); err != nil {
		return 0, fmt.Errorf("count sources: %w", err)
	}
	return count, nil
}

func (r *SourceRepository) Update(ctx context.Context, s *domain.Source) error {
	s.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE research_sources
		SET name = $2, url = $3, domain = $4, type = $5, categories = $6,
			active = $7, reliability_score = $8, updated_at = $9
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		s.ID, s.Name, s.URL, s.Domain, s.Type, s.Categories,
		s.Active, s.ReliabilityScore, s.UpdatedAt,
	)
	if execErr := execRequireRows(result, err, notFound("source", s.ID)); execErr != nil {
		return fmt.Errorf("update source: %w", execErr)
	}
	return nil
}

// SetActive toggles a source without touching its other fields.
func (r *SourceRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE research_sources SET active = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, active)
	if execErr := execRequireRows(result, err, notFound("source", id)); execErr != nil {
		return fmt.Errorf("set source active: %w", execErr)
	}
	return nil
}

// MarkCrawled records a successful fetch.
func (r *SourceRepository) MarkCrawled(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE research_sources SET last_crawled_at = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if execErr := execRequireRows(result, err, notFound("source", id)); execErr != nil {
		return fmt.Errorf("mark source crawled: %w", execErr)
	}
	return nil
}

// Delete removes a source row. Results keep their rows with source_id set to NULL.
func (r *SourceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM research_sources WHERE id = $1`, id)
	if execErr := execRequireRows(result, err, notFound("source", id)); execErr != nil {
		return fmt.Errorf("delete source: %w", execErr)
	}
	return nil
}

func buildSourceWhere(filter SourceFilter) (clause string, args []any) {
	var b strings.Builder
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Active != nil {
		b.WriteString(" AND active = " + next(*filter.Active))
	}
	if filter.Type != "" {
		b.WriteString(" AND type = " + next(filter.Type))
	}
	if filter.Category != "" {
		b.WriteString(" AND " + next(strings.ToLower(filter.Category)) + " = ANY(categories)")
	}
	if filter.Search != "" {
		p := next("%" + filter.Search + "%")
		b.WriteString(" AND (name ILIKE " + p + " OR domain ILIKE " + p + ")")
	}
	return b.String(), args
}

// buildOrder returns an ORDER BY clause using only whitelisted columns.
func buildOrder(sortBy, sortOrder string, allowed map[string]string, fallback string) string {
	col, ok := allowed[sortBy]
	if !ok {
		col = fallback
	}
	dir := "ASC"
	if strings.EqualFold(sortOrder, "desc") {
		dir = "DESC"
	}
	return " ORDER BY " + col + " " + dir + ", id ASC"
}
