// Package cmd implements the research command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/research/internal/bootstrap"
)

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:           "research",
		Short:         "Research ingestion pipeline",
		Long:          `Crawls configured sources through a search API, scores each document with a language model and keeps ranked results with a full audit trail.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command until it returns or a signal cancels it.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH or ./config.yml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newServeCommand(),
		newRunDueCommand(),
		newRunQueryCommand(),
		newCrawlSourceCommand(),
		newSourcesCommand(),
		newHistoryCommand(),
	)
}

// withApp builds the application for one command and tears it down afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := bootstrap.LoadConfig(cfgFile, debug)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := bootstrap.CreateLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	app, err := bootstrap.NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}
