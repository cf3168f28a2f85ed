package repository

import (
	"context"
	"time"

	"EduServer/model"
)

// DocumentStore 实时文档存储：每个账号一份安全文档，写入为整字段覆盖，不使用事务。
type DocumentStore interface {
	// GetDocument 文档不存在返回 ErrRecordNotFound
	GetDocument(ctx context.Context, accountID string) (*model.AccountSecurityState, error)
	// SetDocument merge=false 时整体替换文档
	SetDocument(ctx context.Context, accountID string, fields map[string]any, merge bool) error
	// DeleteFields 删除字段（而不是置空）
	DeleteFields(ctx context.Context, accountID string, fields ...string) error
	// Subscribe 先推送一次当前快照，之后每次写入推送新快照；按版本号去重，保证有序。
	// ctx 取消后 channel 关闭。
	Subscribe(ctx context.Context, accountID string) (<-chan *model.AccountSecurityState, error)
}

// PresenceRepository 设备在线状态
type PresenceRepository interface {
	SetPresence(ctx context.Context, accountID, fingerprint string, online bool, at time.Time) error
	GetPresence(ctx context.Context, accountID string) (map[string]model.DevicePresence, error)
	RemovePresence(ctx context.Context, accountID string, fingerprints ...string) error
}

// AccountRepository 账号表
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	GetByAccountID(ctx context.Context, accountID string) (*model.Account, error)
}

// AuditRepository 管理员操作审计
type AuditRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
}
