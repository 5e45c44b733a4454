package middleware

import (
	"strconv"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/access"
	"github.com/ErlanBelekov/bloodbank/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics records latency and counts per route template. The role label is
// read once the chain has run, so Authenticate may sit after it.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		role := "anonymous"
		if p := access.FromContext(c.Request.Context()); p != nil {
			role = string(p.Role)
		}
		labels := []string{c.Request.Method, path, strconv.Itoa(c.Writer.Status()), role}

		metrics.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
	}
}
