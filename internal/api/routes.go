package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AuthConfig carries the credentials checked by the admin and cron groups.
type AuthConfig struct {
	AdminToken       string
	JWTSecret        string
	CronSecret       string
	CronSecretHeader string
}

// RegisterRoutes mounts /api/v1. metrics, when non-nil, is served on /metrics.
func RegisterRoutes(router *gin.Engine, h *Handler, auth AuthConfig, metrics http.Handler) {
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/api/v1")

	cron := v1.Group("/cron", CronAuth(auth.CronSecret, auth.CronSecretHeader))
	cron.POST("/run", h.RunCron)
	cron.GET("/run", h.RunCron)

	admin := v1.Group("", AdminAuth(auth.AdminToken, auth.JWTSecret))

	sources := admin.Group("/sources")
	sources.GET("", h.ListSources)
	sources.POST("", h.CreateSource)
	sources.POST("/import", h.ImportSources)
	sources.GET("/:id", h.GetSource)
	sources.PUT("/:id", h.UpdateSource)
	sources.PATCH("/:id/active", h.SetSourceActive)
	sources.DELETE("/:id", h.DeleteSource)
	sources.POST("/:id/crawl", h.CrawlSource)

	queries := admin.Group("/queries")
	queries.GET("", h.ListQueries)
	queries.POST("", h.CreateQuery)
	queries.GET("/:id", h.GetQuery)
	queries.PUT("/:id", h.UpdateQuery)
	queries.DELETE("/:id", h.DeleteQuery)
	queries.POST("/:id/run", h.RunQuery)
	queries.GET("/:id/results", h.ListResults)

	results := admin.Group("/results")
	results.POST("/:id/save", h.SaveResult)
	results.POST("/:id/use", h.UseResult)

	admin.GET("/history", h.ListHistory)
}
