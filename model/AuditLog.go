package model

import "time"

// 管理员操作类型
const (
	AuditActionBan              = "ban"
	AuditActionUnban            = "unban"
	AuditActionKickDevice       = "kick_device"
	AuditActionMassLogout       = "mass_logout"
	AuditActionClearForceLogout = "clear_force_logout"
)

// AuditLog 管理员操作审计，只追加
type AuditLog struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"` // 雪花 ID
	Action    string    `gorm:"column:action;type:varchar(32);not null;index;comment:操作类型" json:"action"`
	AdminID   string    `gorm:"column:admin_id;type:char(36);not null;index;comment:操作人" json:"adminId"`
	Targets   string    `gorm:"column:targets;type:text;not null;comment:目标账号(逗号分隔)" json:"targets"`
	Detail    string    `gorm:"column:detail;type:text;comment:附加信息(JSON)" json:"detail"`
	TraceID   string    `gorm:"column:trace_id;type:varchar(64);comment:请求 trace_id" json:"traceId"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (AuditLog) TableName() string {
	return "guard_audit_log"
}
