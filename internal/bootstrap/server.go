package bootstrap

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/research/internal/api"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/research/internal/scheduler"
	"github.com/jonesrussell/north-cloud/research/internal/server"
)

// NewHTTPServer builds the admin API server around app.
func NewHTTPServer(app *App) *server.Server {
	cfg := app.Config

	handler := api.NewHandler(api.Deps{
		Sources:  app.Sources,
		Queries:  app.Queries,
		Results:  app.Results,
		History:  app.History,
		Pipeline: app.Service,
		Recorder: app.Recorder,
		Logger:   app.Logger,
	})
	auth := api.AuthConfig{
		AdminToken:       cfg.Auth.AdminToken,
		JWTSecret:        cfg.Auth.JWTSecret,
		CronSecret:       cfg.Auth.CronSecret,
		CronSecretHeader: cfg.Auth.CronSecretHeader,
	}
	if auth.AdminToken == "" && auth.JWTSecret == "" {
		app.Logger.Warn("No admin credential configured, admin endpoints will answer 503")
	}

	checks := []server.Check{{Name: "database", Required: true, Ping: app.DB.PingContext}}
	if app.Events != nil {
		checks = append(checks, server.Check{Name: "redis", Ping: app.Events.Ping})
	}

	return server.New(server.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Port:           cfg.Service.Port,
		Debug:          cfg.Service.Debug,
		ReadTimeout:    cfg.Service.ReadTimeout,
		WriteTimeout:   cfg.Service.WriteTimeout,
		CORS: server.CORSConfig{
			Enabled:          len(cfg.Service.CORSOrigins) > 0,
			AllowedOrigins:   cfg.Service.CORSOrigins,
			AllowCredentials: true,
		},
	}, app.Logger, func(router *gin.Engine) {
		server.RegisterHealthRoutes(router, cfg.Service.Name, cfg.Service.Version, checks...)
		api.RegisterRoutes(router, handler, auth, promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
	})
}

// Serve runs the HTTP server, and the in-process scheduler when enabled,
// until ctx is cancelled or a shutdown signal arrives.
func Serve(ctx context.Context, app *App) error {
	if app.Config.Scheduler.Enabled {
		sched, err := scheduler.New(app.Config.Scheduler.Spec, func(tickCtx context.Context) error {
			_, tickErr := app.Service.Tick(tickCtx)
			return tickErr
		}, app.Logger)
		if err != nil {
			return err
		}
		if startErr := sched.Start(ctx); startErr != nil {
			return startErr
		}
		defer sched.Stop()
	}

	srv := NewHTTPServer(app)
	if err := srv.RunWithGracefulShutdown(ctx); err != nil {
		app.Logger.Error("Server error", infralogger.Error(err))
		return fmt.Errorf("server error: %w", err)
	}
	app.Logger.Info("Server exited")
	return nil
}
