package middleware

import (
	"net/http"
	"strings"

	"EduServer/model"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/util"

	"github.com/gin-gonic/gin"
)

// HeaderDeviceFingerprint 客户端登录后回传的设备指纹
const HeaderDeviceFingerprint = "X-Device-Fingerprint"

const (
	ginEmail = "email"
	ginName  = "name"
)

// JWTAuthMiddleware 校验 Bearer Token，通过后把账号、角色、设备写入 Context
func JWTAuthMiddleware(jwt *util.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			// 客户端请求错误，属于正常业务流程，不记录日志
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "未提供认证信息",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "认证格式错误",
			})
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "Token 无效或已过期",
			})
			c.Abort()
			return
		}

		c.Set(ctxmeta.GinAccountID, claims.AccountID)
		c.Set(ctxmeta.GinRole, claims.Role)
		c.Set(ginEmail, claims.Email)
		c.Set(ginName, claims.Name)
		if fp := strings.TrimSpace(c.GetHeader(HeaderDeviceFingerprint)); fp != "" {
			c.Set(ctxmeta.GinDeviceID, fp)
		}

		c.Next()
	}
}

// AdminOnly 必须在 JWTAuthMiddleware 之后使用。service 层还会再校验一次。
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxmeta.GinRole) != model.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"code":    403,
				"message": "需要管理员权限",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetAccountID 当前登录账号
func GetAccountID(c *gin.Context) (string, bool) {
	id := c.GetString(ctxmeta.GinAccountID)
	return id, id != ""
}

// GetFingerprint 当前设备指纹，未回传时为空
func GetFingerprint(c *gin.Context) (string, bool) {
	fp := c.GetString(ctxmeta.GinDeviceID)
	return fp, fp != ""
}

func GetEmail(c *gin.Context) string {
	return c.GetString(ginEmail)
}

// GetName 令牌中的昵称，旧令牌可能为空
func GetName(c *gin.Context) string {
	return c.GetString(ginName)
}

func GetRole(c *gin.Context) string {
	return c.GetString(ctxmeta.GinRole)
}
