package ctxmeta

import (
	"context"

	"github.com/gin-gonic/gin"
)

type ctxKey string

const (
	keyTraceID   ctxKey = "trace_id"
	keyAccountID ctxKey = "account_id"
	keyDeviceID  ctxKey = "device_id"
	keyClientIP  ctxKey = "client_ip"
	keyRole      ctxKey = "role"
)

// Gin 上下文里使用的键，与 ctxKey 的字符串值保持一致
const (
	GinTraceID   = "trace_id"
	GinAccountID = "account_id"
	GinDeviceID  = "device_id"
	GinClientIP  = "client_ip"
	GinRole      = "role"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, keyAccountID, accountID)
}

func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, keyDeviceID, deviceID)
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, keyClientIP, ip)
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, keyRole, role)
}

func TraceID(ctx context.Context) string   { return stringValue(ctx, keyTraceID) }
func AccountID(ctx context.Context) string { return stringValue(ctx, keyAccountID) }
func DeviceID(ctx context.Context) string  { return stringValue(ctx, keyDeviceID) }
func ClientIP(ctx context.Context) string  { return stringValue(ctx, keyClientIP) }
func Role(ctx context.Context) string      { return stringValue(ctx, keyRole) }

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// TraceIDFromGin 读取 TraceLogger 中间件写入的 trace_id
func TraceIDFromGin(c *gin.Context) string {
	return c.GetString(GinTraceID)
}

// FromGin 把 gin.Context 上的身份信息搬到标准 context 上，供 service 层和日志使用。
func FromGin(c *gin.Context) context.Context {
	ctx := context.Background()
	if c.Request != nil {
		ctx = c.Request.Context()
	}
	if v := c.GetString(GinTraceID); v != "" {
		ctx = WithTraceID(ctx, v)
	}
	if v := c.GetString(GinAccountID); v != "" {
		ctx = WithAccountID(ctx, v)
	}
	if v := c.GetString(GinDeviceID); v != "" {
		ctx = WithDeviceID(ctx, v)
	}
	if v := c.GetString(GinClientIP); v != "" {
		ctx = WithClientIP(ctx, v)
	}
	if v := c.GetString(GinRole); v != "" {
		ctx = WithRole(ctx, v)
	}
	return ctx
}

// Detach 复制身份信息到一个不会随请求取消的新 context，用于 fire-and-forget 任务。
func Detach(ctx context.Context) context.Context {
	out := context.Background()
	if v := TraceID(ctx); v != "" {
		out = WithTraceID(out, v)
	}
	if v := AccountID(ctx); v != "" {
		out = WithAccountID(out, v)
	}
	if v := DeviceID(ctx); v != "" {
		out = WithDeviceID(out, v)
	}
	if v := ClientIP(ctx); v != "" {
		out = WithClientIP(out, v)
	}
	if v := Role(ctx); v != "" {
		out = WithRole(out, v)
	}
	return out
}
