package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"userhub/internal/httpx"
)

// Health always answers 200 while the process is up; dependency state is
// reported per check so a degraded cache does not take the API out of rotation.
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	checks := make(map[string]string, len(h.probes))
	for name, probe := range h.probes {
		if err := probe.Ping(ctx); err != nil {
			h.log.Error().Err(err).Str("check", name).Msg("health check failed")
			checks[name] = "error"
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	httpx.OK(c, http.StatusOK, "Server is running", gin.H{
		"status":      status,
		"environment": h.cfg.Environment,
		"checks":      checks,
	})
}
