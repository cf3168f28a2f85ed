package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginOutcomes 登录设备登记结果
	LoginOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_device_login_total",
			Help: "设备登录次数，按登记结果分类",
		},
		[]string{"outcome"},
	)

	// Bans 封禁次数，kind=temporary|permanent|manual
	Bans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_bans_total",
			Help: "封禁次数",
		},
		[]string{"kind"},
	)

	// BanExpiryClears 被动清理过期封禁的次数
	BanExpiryClears = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guard_ban_expiry_clears_total",
		Help: "过期封禁被清理的次数",
	})

	// AdminActions 管理员操作，result=ok|failed
	AdminActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_admin_actions_total",
			Help: "管理员操作次数",
		},
		[]string{"action", "result"},
	)

	// CleanupFailures 退出登录时设备移除失败
	CleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guard_cleanup_failures_total",
		Help: "设备移除重试耗尽的次数",
	})

	// ActiveSessions 当前 ws 订阅数
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "guard_ws_sessions",
		Help: "当前在线的实时订阅数",
	})

	// ReconcileErrors 单条通知处理失败（含 panic）
	ReconcileErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guard_reconcile_errors_total",
		Help: "实时通知处理失败次数",
	})

	// SecurityEvents 推送给客户端的事件
	SecurityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_security_events_total",
			Help: "推送给客户端的安全事件",
		},
		[]string{"type"},
	)

	// HTTPRequests / HTTPDuration 由 gin 中间件记录，path 使用路由模板
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_http_requests_total",
			Help: "HTTP 请求数",
		},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guard_http_request_duration_seconds",
			Help:    "HTTP 请求耗时",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
