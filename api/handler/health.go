package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/certcheck/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Prober checks that the portal is reachable.
type Prober interface {
	Probe(ctx context.Context) models.PortalProbe
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when the portal does not answer. Pass ?probe=false to
// skip the outbound check. A nil prober never probes.
func Health(sessions Sessions, prober Prober, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:         "healthy",
			Uptime:         time.Since(startTime).Round(time.Second).String(),
			ActiveSessions: sessions.Len(),
			Version:        Version,
		}

		if prober != nil && c.DefaultQuery("probe", "true") != "false" {
			probe := prober.Probe(c.Request.Context())
			resp.Portal = &probe
			if !probe.Reachable {
				resp.Status = "degraded"
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}
