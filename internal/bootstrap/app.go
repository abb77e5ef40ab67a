// Package bootstrap wires configuration, storage, upstream clients and the
// research service for the CLI commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jonesrussell/north-cloud/research/internal/config"
	"github.com/jonesrussell/north-cloud/research/internal/database"
	"github.com/jonesrussell/north-cloud/research/internal/events"
	"github.com/jonesrussell/north-cloud/research/internal/fetcher"
	"github.com/jonesrussell/north-cloud/research/internal/history"
	infraconfig "github.com/jonesrussell/north-cloud/research/internal/infra/config"
	"github.com/jonesrussell/north-cloud/research/internal/infra/httpclient"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/research/internal/llm"
	"github.com/jonesrussell/north-cloud/research/internal/metrics"
	"github.com/jonesrussell/north-cloud/research/internal/research"
	"github.com/jonesrussell/north-cloud/research/internal/scoring"
	"github.com/jonesrussell/north-cloud/research/internal/search"
)

const defaultConfigPath = "config.yml"

// LoadConfig reads path, or CONFIG_PATH / config.yml when path is empty.
func LoadConfig(path string, debug bool) (*config.Config, error) {
	if path == "" {
		path = infraconfig.GetConfigPath(defaultConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Service.Debug = true
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// CreateLogger builds the service logger tagged with name and version.
func CreateLogger(cfg *config.Config) (infralogger.Logger, error) {
	logCfg := cfg.Logging
	logCfg.Development = logCfg.Development || cfg.Service.Debug

	log, err := infralogger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(
		infralogger.String("service", cfg.Service.Name),
		infralogger.String("version", cfg.Service.Version),
	), nil
}

// App holds every long-lived dependency.
type App struct {
	Config   *config.Config
	Logger   infralogger.Logger
	DB       *sqlx.DB
	Events   *events.Publisher
	Registry *prometheus.Registry

	Sources *database.SourceRepository
	Queries *database.QueryRepository
	Results *database.ResultRepository
	History *database.HistoryRepository
	Posts   *database.ContentPostRepository

	Recorder *history.Recorder
	Service  *research.Service
}

// NewApp connects to Postgres and (optionally) Redis and builds the pipeline.
// Missing search or model keys do not fail startup; runs answer
// research.ErrNotConfigured instead.
func NewApp(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*App, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("Connected to database",
		infralogger.String("host", cfg.Database.Host),
		infralogger.String("dbname", cfg.Database.DBName),
	)

	app := &App{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Events:   events.Connect(cfg.Redis, log),
		Registry: prometheus.NewRegistry(),
		Sources:  database.NewSourceRepository(db),
		Queries:  database.NewQueryRepository(db),
		Results:  database.NewResultRepository(db),
		History:  database.NewHistoryRepository(db),
		Posts:    database.NewContentPostRepository(db),
	}
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Recorder = history.NewRecorder(app.History, log)

	searchClient := search.New(cfg.Search, httpclient.New(cfg.Search.Timeout))
	generator, llmErr := llm.New(ctx, cfg.LLM)
	switch {
	case errors.Is(llmErr, llm.ErrNotConfigured):
		log.Warn("LLM API key not set, query runs disabled", infralogger.String("provider", cfg.LLM.Provider))
		generator = llm.Unconfigured{}
	case llmErr != nil:
		app.Close()
		return nil, fmt.Errorf("create llm client: %w", llmErr)
	}
	if !searchClient.Configured() {
		log.Warn("Search API key not set, query runs disabled")
	}

	app.Service = research.NewService(research.Deps{
		Sources:  app.Sources,
		Queries:  app.Queries,
		Results:  app.Results,
		Posts:    app.Posts,
		Fetcher:  fetcher.New(searchClient, cfg.Search.IncludeHTML),
		Scorer:   scoring.NewScorer(generator, log),
		Recorder: app.Recorder,
		Events:   app.Events,
		Metrics:  metrics.New(app.Registry),
		Logger:   log,
		Ready: func() error {
			if !searchClient.Configured() {
				return search.ErrNotConfigured
			}
			return llmErr
		},
	}, research.Options{
		Concurrency: cfg.Pipeline.Concurrency,
		DropUndated: cfg.Pipeline.DropUndated,
	})

	return app, nil
}

// Close releases Redis and the database pool.
func (a *App) Close() {
	if err := a.Events.Close(); err != nil {
		a.Logger.Error("Failed to close redis", infralogger.Error(err))
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("Failed to close database", infralogger.Error(err))
	}
}
