package domain

import "time"

// ActionType names an audited action.
type ActionType string

const (
	ActionQueryRun     ActionType = "query_run"
	ActionSourceCrawl  ActionType = "source_crawl"
	ActionResultSaved  ActionType = "result_saved"
	ActionResultUsed   ActionType = "result_used"
	ActionConfigChange ActionType = "config_change"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionQueryRun, ActionSourceCrawl, ActionResultSaved, ActionResultUsed, ActionConfigChange:
		return true
	default:
		return false
	}
}

// HistoryEntry is one append-only audit record. An entry opened at the start of
// an action is completed exactly once; nothing else mutates it.
type HistoryEntry struct {
	ID           string     `db:"id"            json:"id"`
	ActionType   ActionType `db:"action_type"   json:"action_type"`
	QueryID      *string    `db:"query_id"      json:"query_id,omitempty"`
	SourceID     *string    `db:"source_id"     json:"source_id,omitempty"`
	Success      bool       `db:"success"       json:"success"`
	DurationMs   *int64     `db:"duration_ms"   json:"duration_ms,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	Details      JSONBMap   `db:"details"       json:"details,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
}

// ContentPost is a scheduled piece of site content flipped to published by the cron trigger.
type ContentPost struct {
	ID           string     `db:"id"            json:"id"`
	Title        string     `db:"title"         json:"title"`
	Status       string     `db:"status"        json:"status"`
	ScheduledFor *time.Time `db:"scheduled_for" json:"scheduled_for,omitempty"`
	PublishedAt  *time.Time `db:"published_at"  json:"published_at,omitempty"`
}

// Content post statuses.
const (
	PostScheduled = "scheduled"
	PostPublished = "published"
)
