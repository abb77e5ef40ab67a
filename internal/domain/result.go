package domain

import (
	"time"

	"github.com/lib/pq"
)

// Result is a scored document produced by a query run. A newer batch for the
// same query marks older rows IsDuplicate; rows are never deleted.
type Result struct {
	ID             string         `db:"id"              json:"id"`
	QueryID        string         `db:"query_id"        json:"query_id"`
	SourceID       *string        `db:"source_id"       json:"source_id,omitempty"`
	Title          string         `db:"title"           json:"title"`
	URL            string         `db:"url"             json:"url"`
	Content        string         `db:"content"         json:"content"`
	Summary        string         `db:"summary"         json:"summary"`
	KeyPoints      pq.StringArray `db:"key_points"      json:"key_points"`
	RelevanceScore float64        `db:"relevance_score" json:"relevance_score"`
	Topics         pq.StringArray `db:"topics"          json:"topics"`
	PublishedDate  *time.Time     `db:"published_date"  json:"published_date,omitempty"`
	IsDuplicate    bool           `db:"is_duplicate"    json:"is_duplicate"`
	CreatedAt      time.Time      `db:"created_at"      json:"created_at"`
}

// Analysis is the structured reading of one model response.
type Analysis struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Relevance float64  `json:"relevance"`
	Topics    []string `json:"topics"`
}
