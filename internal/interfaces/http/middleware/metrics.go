// Package middleware 提供 HTTP 中间件
package middleware

import (
	"strconv"
	"time"

	"z-docs-voice-api/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics Prometheus 指标采集中间件
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		method := c.Request.Method

		metrics.HTTPRequestsInFlight.Inc()

		c.Next()

		// 请求完成后记录指标
		metrics.HTTPRequestsInFlight.Dec()
		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		metrics.HTTPRequestTotal.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}
