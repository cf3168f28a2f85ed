package service

import (
	"context"
	"time"

	"EduServer/apps/guard/internal/identity"
	"EduServer/model"
)

// ==================== 设备服务 ====================

// LoginDeviceRequest 登录后客户端上报的设备信息
type LoginDeviceRequest struct {
	AccountID string
	Email     string
	Name      string
	Role      string
	Env       identity.ClientEnvironment
	ClientIP  string
	SessionID string
}

// LoginDeviceResult 登录判定结果
type LoginDeviceResult struct {
	Device  *model.DeviceRecord
	Outcome string
	View    SecurityView
	LoginAt time.Time
	// State 写入后的账号状态，供状态缓存使用
	State *model.AccountSecurityState
}

// DeviceService 设备登记、退出、被动过期清理
type DeviceService interface {
	// CheckAndHandleDeviceLogin 登记设备并按需升级封禁。被封禁的账号仍然返回结果，由客户端展示封禁状态。
	CheckAndHandleDeviceLogin(ctx context.Context, req *LoginDeviceRequest) (*LoginDeviceResult, error)

	// SignOut 对调用方总是成功；远端设备移除失败只记录并投递到重试队列
	SignOut(ctx context.Context, accountID, fingerprint string)

	// LeaveDevice 多设备警告流程中的退出：有限重试，全部失败返回 ErrManualLogoutRequired
	LeaveDevice(ctx context.Context, accountID, fingerprint string) error

	// RemoveDevice 重新读取文档后移除设备，文档或设备不存在时视为成功
	RemoveDevice(ctx context.Context, accountID, fingerprint string) error

	// AcknowledgeKick 被踢设备下线后把自己从踢出列表移除
	AcknowledgeKick(ctx context.Context, accountID, fingerprint string) error

	// ClearExpiredBan 封禁已过期时写入清理字段，返回写入的 forceLogoutAt；无需清理时返回 nil
	ClearExpiredBan(ctx context.Context, accountID string) (*time.Time, error)

	// GetState 读取账号安全状态，读取时顺带清理过期封禁
	GetState(ctx context.Context, accountID string) (*model.AccountSecurityState, error)

	// ListDevices 设备列表附带在线状态
	ListDevices(ctx context.Context, accountID, currentFingerprint string) ([]model.DeviceView, error)

	// MarkPresence fire-and-forget 更新在线状态，不受请求取消影响
	MarkPresence(ctx context.Context, accountID, fingerprint string, online bool)
}

// ==================== 管理员服务 ====================

// BatchResult 批量操作结果，单个账号失败不影响其他账号
type BatchResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

// AdminService 管理员操作，调用方身份从 ctx 读取，必须为 admin
type AdminService interface {
	BanUser(ctx context.Context, accountID, reason string) (*model.BanEvent, error)
	UnbanUser(ctx context.Context, accountID string) error
	KickDevice(ctx context.Context, accountID, fingerprint string) error
	MassLogout(ctx context.Context, accountIDs []string) (*BatchResult, error)
	ClearForceLogoutFlags(ctx context.Context, accountIDs []string) (*BatchResult, error)
	GetSecurityState(ctx context.Context, accountID string) (*model.AccountSecurityState, error)
	ListDevices(ctx context.Context, accountID string) ([]model.DeviceView, error)
}

// ==================== 认证服务 ====================

// AuthResult 登录/注册结果
type AuthResult struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Token     string `json:"token"`
}

// AuthStateEvent 认证状态变化
type AuthStateEvent struct {
	AccountID   string
	Fingerprint string // 退出时的设备，登录时为空
	Role        string
	SignedIn    bool
	At          time.Time
}

// AuthListener 认证状态监听器
type AuthListener func(ev AuthStateEvent)

// AuthService 认证提供方，不关心设备与封禁
type AuthService interface {
	SignUp(ctx context.Context, email, password, name string) (*AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*AuthResult, error)
	SignOut(ctx context.Context, accountID, fingerprint string)
	// OnAuthStateChanged 注册监听器，返回取消函数
	OnAuthStateChanged(listener AuthListener) func()
}

// ==================== 审计 ====================

// AuditEvent 管理员操作记录
type AuditEvent struct {
	Action  string         `json:"action"`
	AdminID string         `json:"adminId"`
	Targets []string       `json:"targets"`
	Detail  map[string]any `json:"detail,omitempty"`
	TraceID string         `json:"traceId,omitempty"`
	At      time.Time      `json:"at"`
}

// AuditSink 只追加，fire-and-forget，失败只记录日志
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent)
}

// Notifier 管理员通知（邮件）
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// DeviceResolver 由客户端环境生成设备记录
type DeviceResolver interface {
	Resolve(ctx context.Context, env identity.ClientEnvironment, clientIP, sessionID string) *model.DeviceRecord
}
