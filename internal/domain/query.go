package domain

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// QueryType labels the intent of a query. It does not change pipeline behaviour.
type QueryType string

const (
	QueryTopic       QueryType = "topic"
	QueryCompetitive QueryType = "competitive"
	QueryTrending    QueryType = "trending"
	QueryCustom      QueryType = "custom"
)

func (t QueryType) Valid() bool {
	switch t {
	case QueryTopic, QueryCompetitive, QueryTrending, QueryCustom:
		return true
	default:
		return false
	}
}

// Frequency is the cadence of a scheduled query.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	default:
		return false
	}
}

// Query limits.
const (
	DefaultMaxResults = 10
	MaxMaxResults     = 100
)

// Query is a saved research request.
type Query struct {
	ID                  string         `db:"id"                    json:"id"`
	Name                string         `db:"name"                  json:"name"`
	QueryText           string         `db:"query_text"            json:"query_text"`
	Type                QueryType      `db:"type"                  json:"type"`
	Categories          pq.StringArray `db:"categories"            json:"categories"`
	IncludeSources      pq.StringArray `db:"include_sources"       json:"include_sources"`
	ExcludeSources      pq.StringArray `db:"exclude_sources"       json:"exclude_sources"`
	MaxResults          int            `db:"max_results"           json:"max_results"`
	FreshnessDays       int            `db:"freshness_days"        json:"freshness_days"`
	MinReliabilityScore float64        `db:"min_reliability_score" json:"min_reliability_score"`
	ScheduleEnabled     bool           `db:"schedule_enabled"      json:"schedule_enabled"`
	ScheduleFrequency   Frequency      `db:"schedule_frequency"    json:"schedule_frequency,omitempty"`
	LastRunAt           *time.Time     `db:"last_run_at"           json:"last_run_at,omitempty"`
	NextRunAt           *time.Time     `db:"next_run_at"           json:"next_run_at,omitempty"`
	CreatedAt           time.Time      `db:"created_at"            json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"            json:"updated_at"`
}

// Normalize applies defaults and cleans list fields.
func (q *Query) Normalize() {
	q.Name = strings.TrimSpace(q.Name)
	q.QueryText = strings.TrimSpace(q.QueryText)
	if q.Type == "" {
		q.Type = QueryTopic
	}
	if q.MaxResults == 0 {
		q.MaxResults = DefaultMaxResults
	}
	q.Categories = NormalizeCategories(q.Categories)
	q.IncludeSources = nonEmpty(q.IncludeSources)
	q.ExcludeSources = nonEmpty(q.ExcludeSources)
	if !q.ScheduleEnabled {
		q.NextRunAt = nil
	}
}

func (q *Query) Validate() error {
	if q.Name == "" {
		return invalidf("name is required")
	}
	if q.QueryText == "" {
		return invalidf("query_text is required")
	}
	if !q.Type.Valid() {
		return invalidf("unknown query type %q", q.Type)
	}
	if q.MaxResults < 1 || q.MaxResults > MaxMaxResults {
		return invalidf("max_results must be between 1 and %d", MaxMaxResults)
	}
	if q.FreshnessDays < 0 {
		return invalidf("freshness_days must not be negative")
	}
	if q.MinReliabilityScore < 0 || q.MinReliabilityScore > 1 {
		return invalidf("min_reliability_score must be between 0 and 1")
	}
	if q.ScheduleEnabled && !q.ScheduleFrequency.Valid() {
		return invalidf("schedule_frequency must be daily, weekly or monthly when scheduled")
	}
	if q.ScheduleFrequency != "" && !q.ScheduleFrequency.Valid() {
		return invalidf("unknown schedule_frequency %q", q.ScheduleFrequency)
	}
	return nil
}

// IsDue reports whether a scheduled query should run at now.
func (q *Query) IsDue(now time.Time) bool {
	if !q.ScheduleEnabled {
		return false
	}
	return q.NextRunAt == nil || !q.NextRunAt.After(now)
}

func nonEmpty(in []string) pq.StringArray {
	out := make(pq.StringArray, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
