package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// NewRouter wires the routes. A nil gatherer leaves /metrics out.
func NewRouter(h *Handler, gatherer prometheus.Gatherer, logger *logrus.Entry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger.WithField("component", "http")))

	r.GET("/status", h.Status)
	r.POST("/rounds/:kind", h.RunRound)

	patients := r.Group("/patients")
	patients.GET("", h.ListPatients)
	patients.POST("/sync", h.SyncRoster)
	patients.POST("/:reference/reenroll", h.Reenroll)

	notifications := r.Group("/notifications")
	notifications.POST("/read", h.MarkRead)
	notifications.POST("/history", h.History)
	notifications.GET("/:id", h.GetNotification)

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func requestLogger(logger *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last()).Error("Request failed")
			return
		}
		entry.Debug("Request handled")
	}
}
