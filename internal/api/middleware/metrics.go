package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/jroosing/minidns/internal/metrics"
)

// RequestMetrics counts requests by method and final status. A nil m is allowed.
func RequestMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		m.ObserveAPI(c.Request.Method, c.Writer.Status())
	}
}
