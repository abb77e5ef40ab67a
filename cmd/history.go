package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/research/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/research/internal/database"
	"github.com/jonesrussell/north-cloud/research/internal/domain"
)

func newHistoryCommand() *cobra.Command {
	var (
		actionType string
		days       int
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the audit history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			action := domain.ActionType(actionType)
			if action != "" && !action.Valid() {
				return fmt.Errorf("unknown action type %q", actionType)
			}
			if days < 0 {
				return errors.New("--days must not be negative")
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				entries, err := app.History.List(ctx, database.HistoryFilter{ActionType: action, Days: days, Limit: limit})
				if err != nil {
					return fmt.Errorf("list history: %w", err)
				}
				renderHistory(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actionType, "action-type", "", "query_run, source_crawl, result_saved, result_used or config_change")
	cmd.Flags().IntVar(&days, "days", 0, "only entries from the last N days")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries (default 100)")
	return cmd
}

func renderHistory(w io.Writer, entries []domain.HistoryEntry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Created", "Action", "Query", "Source", "Success", "Duration", "Error"})

	for _, e := range entries {
		duration := "-"
		if e.DurationMs != nil {
			duration = fmt.Sprintf("%dms", *e.DurationMs)
		}
		t.AppendRow(table.Row{
			e.CreatedAt.Format(timeLayout), e.ActionType, deref(e.QueryID), deref(e.SourceID),
			e.Success, duration, deref(e.ErrorMessage),
		})
	}
	t.Render()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
