package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/research/internal/bootstrap"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRunDueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-due",
		Short: "Run due scheduled queries and publish due content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				summary, err := app.Service.Tick(ctx)
				if err != nil {
					return fmt.Errorf("run due: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func newRunQueryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-query <query-id>",
		Short: "Run one query now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				summary, err := app.Service.RunQuery(ctx, args[0])
				if err != nil {
					return fmt.Errorf("run query: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func newCrawlSourceCommand() *cobra.Command {
	var queryID string
	cmd := &cobra.Command{
		Use:   "crawl-source <source-id>",
		Short: "Search one source now",
		Long:  `Searches a single source. With --query the results are stored against that query; otherwise they are printed only.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				summary, err := app.Service.CrawlSource(ctx, args[0], queryID)
				if err != nil {
					return fmt.Errorf("crawl source: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().StringVar(&queryID, "query", "", "store results against this query id")
	return cmd
}
