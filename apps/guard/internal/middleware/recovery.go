package middleware

import (
	"net/http"
	"runtime/debug"

	"EduServer/consts"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// GinRecovery 捕获 handler panic，记录堆栈并返回统一的内部错误
func GinRecovery(stack bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if stack {
					logger.Error(ctxmeta.FromGin(c), "请求处理 panic",
						logger.Any("panic", r),
						logger.String("path", c.Request.URL.Path),
						logger.String("stack", string(debug.Stack())),
					)
				} else {
					logger.Error(ctxmeta.FromGin(c), "请求处理 panic",
						logger.Any("panic", r),
						logger.String("path", c.Request.URL.Path),
					)
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":     consts.CodeInternalError,
					"message":  consts.GetMessage(consts.CodeInternalError),
					"trace_id": c.GetString(ctxmeta.GinTraceID),
				})
			}
		}()
		c.Next()
	}
}
