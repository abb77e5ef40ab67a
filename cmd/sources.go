package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/research/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/research/internal/database"
	"github.com/jonesrussell/north-cloud/research/internal/domain"
)

const timeLayout = "2006-01-02 15:04"

func newSourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect research sources",
	}
	cmd.AddCommand(newSourcesListCommand())
	return cmd
}

func newSourcesListCommand() *cobra.Command {
	var (
		activeOnly bool
		category   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				filter := database.SourceFilter{Category: strings.ToLower(category)}
				if activeOnly {
					filter.Active = &activeOnly
				}
				sources, err := app.Sources.List(ctx, filter)
				if err != nil {
					return fmt.Errorf("list sources: %w", err)
				}
				renderSources(cmd.OutOrStdout(), sources)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active sources")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	return cmd
}

func renderSources(w io.Writer, sources []domain.Source) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Domain", "Type", "Categories", "Reliability", "Active", "Last Crawled"})

	for _, s := range sources {
		lastCrawled := "-"
		if s.LastCrawledAt != nil {
			lastCrawled = s.LastCrawledAt.Format(timeLayout)
		}
		t.AppendRow(table.Row{
			s.ID, s.Name, s.Domain, s.Type, strings.Join(s.Categories, ", "),
			fmt.Sprintf("%.2f", s.ReliabilityScore), s.Active, lastCrawled,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(sources)})
	t.Render()
}
