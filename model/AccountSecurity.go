package model

import "time"

// 角色，只有 admin 不参与设备数与封禁逻辑
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// BanStatus 由存储字段计算出的封禁状态
type BanStatus int

const (
	BanStatusActive    BanStatus = iota // 正常
	BanStatusTemporary                  // 临时封禁且未过期
	BanStatusPermanent                  // 永久封禁
)

func (s BanStatus) String() string {
	switch s {
	case BanStatusTemporary:
		return "temporary"
	case BanStatusPermanent:
		return "permanent"
	default:
		return "active"
	}
}

// 账号安全文档的字段名，写入时按字段整体覆盖
const (
	FieldAccountID         = "accountId"
	FieldRole              = "role"
	FieldDevices           = "devices"
	FieldBanned            = "banned"
	FieldBanExpiresAt      = "banExpiresAt"
	FieldBanReason         = "banReason"
	FieldPermanentBan      = "permanentBan"
	FieldBanCount          = "banCount"
	FieldPermanentBanCount = "permanentBanCount"
	FieldBanHistory        = "banHistory"
	FieldKickedDevices     = "kickedDevices"
	FieldForceLogoutAt     = "forceLogoutAt"
	FieldForceLogoutReason = "forceLogoutReason"
	FieldForcedBy          = "forcedBy"
	FieldClearBanCacheAt   = "clearBanCacheAt"
	FieldCreatedAt         = "createdAt"
)

// 强制下线原因
const (
	LogoutReasonBanExpired  = "ban_expired"
	LogoutReasonAdminUnban  = "admin_unban"
	LogoutReasonDeviceKick  = "device_kicked"
	LogoutReasonMassLogout  = "mass_logout"
	ForcedBySystem          = "system"
	BanReasonDeviceLimit    = "multiple_devices"
	BanReasonPermanentLimit = "repeated_multiple_devices"
)

// BanEvent 封禁事件，只追加不修改；仅管理员解封时整体清空
type BanEvent struct {
	ID                     int64      `json:"id"`
	Timestamp              time.Time  `json:"timestamp"`
	Reason                 string     `json:"reason"`
	DeviceCountAtViolation int        `json:"deviceCountAtViolation"`
	BannedUntil            *time.Time `json:"bannedUntil"`
	BanCount               int        `json:"banCount"`
	Permanent              bool       `json:"permanent"`
	Manual                 bool       `json:"manual"`
	BannedBy               string     `json:"bannedBy,omitempty"` // 手动封禁时的管理员 ID
}

// AccountSecurityState 每个账号一份，存放在实时文档存储中
// 不变量：
//   - PermanentBan 为 true 时 BanExpiresAt 必为 nil
//   - BanCount 单调不减，仅管理员解封重置为 0
//   - 临时封禁自然过期不清空 Devices，管理员解封会清空
type AccountSecurityState struct {
	AccountID         string         `json:"accountId"`
	Role              string         `json:"role"`
	Devices           []DeviceRecord `json:"devices"`
	Banned            bool           `json:"banned"`
	BanExpiresAt      *time.Time     `json:"banExpiresAt"`
	BanReason         string         `json:"banReason,omitempty"`
	PermanentBan      bool           `json:"permanentBan"`
	BanCount          int            `json:"banCount"`
	PermanentBanCount int            `json:"permanentBanCount"`
	BanHistory        []BanEvent     `json:"banHistory"`
	KickedDevices     []string       `json:"kickedDevices"`
	ForceLogoutAt     *time.Time     `json:"forceLogoutAt"`
	ForceLogoutReason string         `json:"forceLogoutReason,omitempty"`
	ForcedBy          string         `json:"forcedBy,omitempty"`
	ClearBanCacheAt   *time.Time     `json:"clearBanCacheAt"`
	CreatedAt         *time.Time     `json:"createdAt,omitempty"`

	// Version 由存储层维护，每次写入递增，不属于文档字段
	Version int64 `json:"-"`
}

// IsAdmin 管理员不参与设备数与封禁逻辑
func (s *AccountSecurityState) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}

// Status 计算当前封禁状态。
// banned=true 但既没有过期时间也没有永久标记的历史数据按永久处理。
func (s *AccountSecurityState) Status(now time.Time) BanStatus {
	if s == nil {
		return BanStatusActive
	}
	if s.PermanentBan {
		return BanStatusPermanent
	}
	if !s.Banned {
		return BanStatusActive
	}
	if s.BanExpiresAt == nil {
		return BanStatusPermanent
	}
	if s.BanExpiresAt.After(now) {
		return BanStatusTemporary
	}
	return BanStatusActive
}

// BanExpired 存在临时封禁字段但已经过期，需要被动清理
func (s *AccountSecurityState) BanExpired(now time.Time) bool {
	if s == nil || s.PermanentBan || !s.Banned || s.BanExpiresAt == nil {
		return false
	}
	return !s.BanExpiresAt.After(now)
}

// FindDevice 按指纹查找设备，返回下标，不存在返回 -1
func (s *AccountSecurityState) FindDevice(fingerprint string) int {
	if s == nil {
		return -1
	}
	for i := range s.Devices {
		if s.Devices[i].Fingerprint == fingerprint {
			return i
		}
	}
	return -1
}

// HasDevice 指纹是否在设备列表中
func (s *AccountSecurityState) HasDevice(fingerprint string) bool {
	return s.FindDevice(fingerprint) >= 0
}

// IsKicked 指纹是否在被踢列表中
func (s *AccountSecurityState) IsKicked(fingerprint string) bool {
	if s == nil {
		return false
	}
	for _, fp := range s.KickedDevices {
		if fp == fingerprint {
			return true
		}
	}
	return false
}

// Clone 深拷贝，纯函数计算时避免修改调用方持有的快照
func (s *AccountSecurityState) Clone() *AccountSecurityState {
	if s == nil {
		return nil
	}
	out := *s
	out.Devices = append([]DeviceRecord(nil), s.Devices...)
	out.BanHistory = append([]BanEvent(nil), s.BanHistory...)
	out.KickedDevices = append([]string(nil), s.KickedDevices...)
	return &out
}
