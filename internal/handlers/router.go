package handlers

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rotationsync/internal/logging"
)

// NewRouter mounts the API routes on a gin engine, plus /metrics served
// from gatherer.
func NewRouter(a *API, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logging.For("http")))

	for _, rt := range a.routes() {
		h := rt.handler
		r.Handle(rt.method, rt.path, func(c *gin.Context) {
			status, body := h(c.Request.Context(), c.Request.URL.Query())
			c.JSON(status, body)
		})
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return r
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).String(),
		)
	}
}
