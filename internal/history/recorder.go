// Package history writes the append-only audit trail.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
)

// Store persists history entries.
type Store interface {
	Create(ctx context.Context, e *domain.HistoryEntry) error
	Complete(ctx context.Context, e *domain.HistoryEntry) error
}

// Recorder opens, completes and appends audit entries.
type Recorder struct {
	store  Store
	logger infralogger.Logger
	now    func() time.Time
}

func NewRecorder(store Store, log infralogger.Logger) *Recorder {
	return &Recorder{store: store, logger: log, now: func() time.Time { return time.Now().UTC() }}
}

// Subject identifies what an entry is about. Either field may be empty.
type Subject struct {
	QueryID  string
	SourceID string
}

// Action is an open entry awaiting Finish.
type Action struct {
	rec     *Recorder
	entry   *domain.HistoryEntry
	started time.Time
}

// Begin persists an open entry marked unsuccessful until finished.
func (r *Recorder) Begin(ctx context.Context, action domain.ActionType, subject Subject, details domain.JSONBMap) (*Action, error) {
	started := r.now()
	entry := &domain.HistoryEntry{
		ActionType: action,
		QueryID:    optional(subject.QueryID),
		SourceID:   optional(subject.SourceID),
		Details:    details,
		CreatedAt:  started,
	}
	if err := r.store.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("begin %s entry: %w", action, err)
	}
	return &Action{rec: r, entry: entry, started: started}, nil
}

// ID returns the persisted entry id.
func (a *Action) ID() string {
	return a.entry.ID
}

// Finish completes the entry with the elapsed time. A nil runErr marks success.
// Details are merged over those given to Begin.
func (a *Action) Finish(ctx context.Context, runErr error, details domain.JSONBMap) error {
	completed := a.rec.now()
	a.entry.Success = runErr == nil
	a.entry.DurationMs = durationMs(completed.Sub(a.started))
	a.entry.CompletedAt = &completed
	if runErr != nil {
		msg := runErr.Error()
		a.entry.ErrorMessage = &msg
	}
	a.entry.Details = merge(a.entry.Details, details)

	if err := a.rec.store.Complete(ctx, a.entry); err != nil {
		a.rec.logger.Error("Failed to complete history entry",
			infralogger.String("entry_id", a.entry.ID),
			infralogger.String("action_type", string(a.entry.ActionType)),
			infralogger.Error(err),
		)
		return fmt.Errorf("finish %s entry: %w", a.entry.ActionType, err)
	}
	return nil
}

// Record appends a finished entry in one write.
func (r *Recorder) Record(
	ctx context.Context,
	action domain.ActionType,
	subject Subject,
	elapsed time.Duration,
	runErr error,
	details domain.JSONBMap,
) error {
	completed := r.now()
	entry := &domain.HistoryEntry{
		ActionType:  action,
		QueryID:     optional(subject.QueryID),
		SourceID:    optional(subject.SourceID),
		Success:     runErr == nil,
		DurationMs:  durationMs(elapsed),
		Details:     details,
		CreatedAt:   completed.Add(-elapsed),
		CompletedAt: &completed,
	}
	if runErr != nil {
		msg := runErr.Error()
		entry.ErrorMessage = &msg
	}

	if err := r.store.Create(ctx, entry); err != nil {
		r.logger.Error("Failed to record history entry",
			infralogger.String("action_type", string(action)),
			infralogger.Error(err),
		)
		return fmt.Errorf("record %s entry: %w", action, err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func durationMs(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

func merge(base, extra domain.JSONBMap) domain.JSONBMap {
	if len(extra) == 0 {
		return base
	}
	out := make(domain.JSONBMap, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
