package middleware

import (
	"strconv"
	"time"

	"EduServer/apps/guard/internal/metrics"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/logger"

	"github.com/gin-gonic/gin"
)

const slowRequestThreshold = 2 * time.Second

// GinLogger 只记录服务端错误(5xx)和慢请求，正常请求不记录
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		cost := time.Since(start)
		status := c.Writer.Status()
		if status >= 500 || cost > slowRequestThreshold {
			logger.Warn(ctxmeta.FromGin(c), "慢请求或服务端错误",
				logger.Int("status", status),
				logger.String("method", c.Request.Method),
				logger.String("path", path),
				logger.String("query", query),
				logger.String("ip", ClientIPFromGinContext(c)),
				logger.String("user-agent", c.Request.UserAgent()),
				logger.String("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()),
				logger.Duration("cost", cost),
			)
		}
	}
}

// Metrics 记录请求数与耗时，path 使用路由模板避免标签爆炸
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
