package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/use-agent/certcheck/api/handler"
	"github.com/use-agent/certcheck/api/middleware"
	"github.com/use-agent/certcheck/config"
)

// Deps are the collaborators the routes are served by.
type Deps struct {
	Verifier handler.Verifier
	Sessions handler.Sessions
	Prober   handler.Prober

	// Gatherer backs /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → CORS
//	API:     RateLimit
//
// Health and metrics are outside the rate limit so monitoring probes always work.
func NewRouter(deps Deps, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.SetHTMLTemplate(handler.IndexTemplate)

	r.GET("/", handler.Index(deps.Verifier))
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(deps.Sessions, deps.Prober, startTime))

	limited := v1.Group("")
	limited.Use(middleware.RateLimit(cfg.RateLimit))

	limited.POST("/verifications", handler.StartVerification(deps.Verifier, cfg.Verify.StartTimeout))
	limited.GET("/verifications/:id", handler.PollVerification(deps.Verifier, cfg.Verify.PollTimeout))
	limited.GET("/verifications/:id/audit", handler.Audit(deps.Sessions))

	return r
}
