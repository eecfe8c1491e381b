package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Serrius/Educore-sub002/internal/service"
)

// Metrics times each request and feeds it to the metrics service, keyed by
// the route template so path parameters do not explode label cardinality.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
