package middleware

import (
	"net"
	"strings"

	"EduServer/pkg/ctxmeta"

	"github.com/gin-gonic/gin"
)

const (
	headerXRealIP       = "X-Real-IP"
	headerXForwardedFor = "X-Forwarded-For"
)

// GetClientIP 优先级：X-Real-IP > X-Forwarded-For 第一个 > RemoteAddr。
// 拿不到合法 IP 时返回空串，由设备解析记为 unknown。
func GetClientIP(c *gin.Context) string {
	if ip := strings.TrimSpace(c.GetHeader(headerXRealIP)); validIP(ip) {
		return ip
	}
	if xff := c.GetHeader(headerXForwardedFor); xff != "" {
		first := xff
		if idx := strings.Index(xff, ","); idx != -1 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); validIP(ip) {
			return ip
		}
	}
	if ip := c.ClientIP(); validIP(ip) {
		return ip
	}
	return ""
}

func validIP(ip string) bool {
	return ip != "" && net.ParseIP(ip) != nil
}

// ClientIPMiddleware 注入 IP 到 Gin Context
func ClientIPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ip := GetClientIP(c); ip != "" {
			c.Set(ctxmeta.GinClientIP, ip)
		}
		c.Next()
	}
}

// ClientIPFromGinContext 读取 ClientIPMiddleware 写入的 IP
func ClientIPFromGinContext(c *gin.Context) string {
	return c.GetString(ctxmeta.GinClientIP)
}
