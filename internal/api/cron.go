package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunCron runs due queries and publishes due content posts.
func (h *Handler) RunCron(c *gin.Context) {
	summary, err := h.pipeline.Tick(detached(c))
	if err != nil {
		h.respondError(c, "run cron", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
