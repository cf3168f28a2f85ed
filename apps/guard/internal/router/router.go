package router

import (
	"net/http"

	"EduServer/apps/guard/internal/handler"
	"EduServer/apps/guard/internal/middleware"
	"EduServer/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Auth   *handler.AuthHandler
	Device *handler.DeviceHandler
	Admin  *handler.AdminHandler
	WS     *handler.WSHandler
}

// Options 路由级中间件依赖
type Options struct {
	JWT          *util.JWTManager
	LoginLimiter *middleware.RateLimiter
}

// InitRouter 初始化路由
func InitRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()

	r.Use(middleware.GinRecovery(true))
	r.Use(util.TraceLogger())
	r.Use(middleware.ClientIPMiddleware())
	r.Use(middleware.GinLogger())
	r.Use(middleware.Metrics())
	r.Use(middleware.CorsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 鉴权在握手参数里完成
	r.GET("/ws", h.WS.ServeWS)

	api := r.Group("/api/v1")
	{
		public := api.Group("/public")
		public.Use(middleware.LoginRateLimitMiddleware(opts.LoginLimiter))
		{
			public.POST("/signup", h.Auth.SignUp)
			public.POST("/signin", h.Auth.SignIn)
		}

		// 页面关闭时的 sendBeacon，令牌在 body 中
		api.POST("/beacon/offline", h.Device.OfflineBeacon)

		auth := api.Group("/auth")
		auth.Use(middleware.JWTAuthMiddleware(opts.JWT))
		{
			auth.POST("/signout", h.Auth.SignOut)
			auth.POST("/device/login", h.Device.Login)
			auth.POST("/device/leave", h.Device.Leave)
			auth.GET("/devices", h.Device.List)
			auth.GET("/security/status", h.Device.Status)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.JWTAuthMiddleware(opts.JWT), middleware.AdminOnly())
		{
			admin.POST("/ban", h.Admin.Ban)
			admin.POST("/unban", h.Admin.Unban)
			admin.POST("/kick", h.Admin.Kick)
			admin.POST("/mass-logout", h.Admin.MassLogout)
			admin.POST("/clear-force-logout", h.Admin.ClearForceLogout)
			admin.GET("/accounts/:id/security", h.Admin.SecurityState)
			admin.GET("/accounts/:id/devices", h.Admin.Devices)
		}
	}

	return r
}
