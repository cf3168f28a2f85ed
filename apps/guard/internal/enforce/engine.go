package enforce

import (
	"errors"
	"time"

	"EduServer/config"
	"EduServer/model"
)

var (
	// ErrAdminExempt 管理员账号不参与封禁
	ErrAdminExempt = errors.New("admin account is exempt from bans")
	// ErrAlreadyPermanent 已永久封禁，手动临时封禁没有意义
	ErrAlreadyPermanent = errors.New("account is permanently banned")
)

// Patch 需要写回文档的字段，值为 nil 表示写入 null
type Patch map[string]any

// Policy 封禁升级参数
type Policy struct {
	PermanentThreshold int
	TempBanDuration    time.Duration
	AdminPruneAge      time.Duration
}

// PolicyFromConfig 从配置构造策略
func PolicyFromConfig(cfg config.GuardConfig) Policy {
	return Policy{
		PermanentThreshold: cfg.PermanentThreshold,
		TempBanDuration:    cfg.TempBanDuration,
		AdminPruneAge:      cfg.AdminPruneAge,
	}
}

// Engine 封禁状态机：Active -> Temporary -> Permanent。
// 只做纯计算，不读写存储，写入由调用方完成。
type Engine struct {
	policy Policy
	nextID func() int64
}

// NewEngine nextID 用于生成封禁事件 ID，传 nil 时事件 ID 为 0
func NewEngine(p Policy, nextID func() int64) *Engine {
	if p.PermanentThreshold <= 0 {
		p.PermanentThreshold = 3
	}
	if p.TempBanDuration <= 0 {
		p.TempBanDuration = 30 * time.Minute
	}
	if nextID == nil {
		nextID = func() int64 { return 0 }
	}
	return &Engine{policy: p, nextID: nextID}
}

func (e *Engine) Policy() Policy { return e.policy }

// LoginDecision 一次登录的判定结果
type LoginDecision struct {
	Outcome        RegistryOutcome
	Device         model.DeviceRecord
	Patch          Patch
	BanEvent       *model.BanEvent
	Status         model.BanStatus
	ExpiredCleared bool                        // 本次顺带清理了已过期的临时封禁
	State          *model.AccountSecurityState // 写入后的状态
}

// Escalated 本次登录是否产生了新的封禁
func (d *LoginDecision) Escalated() bool { return d.BanEvent != nil }

// EvaluateLogin 处理一次登录：先清理过期封禁，再登记设备，最后按需升级封禁。
// state 为 nil 时视为新账号。
func (e *Engine) EvaluateLogin(state *model.AccountSecurityState, incoming model.DeviceRecord, now time.Time) *LoginDecision {
	s := state.Clone()
	if s == nil {
		s = &model.AccountSecurityState{}
	}
	patch := Patch{}
	dec := &LoginDecision{Patch: patch}

	if s.BanExpired(now) {
		e.applyExpiry(s, patch, now)
		dec.ExpiredCleared = true
	}

	isAdmin := s.IsAdmin()
	outcome, devices := RegisterDevice(s.Devices, incoming, isAdmin, now, e.policy.AdminPruneAge)
	s.Devices = devices
	patch[model.FieldDevices] = devices
	dec.Outcome = outcome
	if i := s.FindDevice(incoming.Fingerprint); i >= 0 {
		dec.Device = devices[i]
	}

	// 被踢设备重新登录后从踢出列表移除，避免反复下线
	if s.IsKicked(incoming.Fingerprint) {
		s.KickedDevices = withoutString(s.KickedDevices, incoming.Fingerprint)
		patch[model.FieldKickedDevices] = s.KickedDevices
	}

	if outcome == OutcomeNewAdditionalDevice && !isAdmin && s.Status(now) != model.BanStatusPermanent {
		dec.BanEvent = e.escalate(s, patch, now)
	}

	dec.Status = s.Status(now)
	dec.State = s
	return dec
}

// escalate 读取 banCount 后加一写回，并发登录时可能少计，属于已接受的误差
func (e *Engine) escalate(s *model.AccountSecurityState, patch Patch, now time.Time) *model.BanEvent {
	newCount := s.BanCount + 1
	ev := model.BanEvent{
		ID:                     e.nextID(),
		Timestamp:              now,
		DeviceCountAtViolation: len(s.Devices),
		BanCount:               newCount,
	}

	if newCount >= e.policy.PermanentThreshold {
		s.Banned = true
		s.PermanentBan = true
		s.BanExpiresAt = nil
		s.PermanentBanCount++
		s.BanReason = model.BanReasonPermanentLimit
		ev.Permanent = true
		ev.Reason = model.BanReasonPermanentLimit
		patch[model.FieldPermanentBan] = true
		patch[model.FieldPermanentBanCount] = s.PermanentBanCount
	} else {
		until := now.Add(e.policy.TempBanDuration)
		s.Banned = true
		s.BanExpiresAt = &until
		s.BanReason = model.BanReasonDeviceLimit
		ev.Reason = model.BanReasonDeviceLimit
		ev.BannedUntil = &until
	}
	s.BanCount = newCount
	s.BanHistory = append(s.BanHistory, ev)

	patch[model.FieldBanned] = true
	patch[model.FieldBanExpiresAt] = s.BanExpiresAt
	patch[model.FieldBanReason] = s.BanReason
	patch[model.FieldBanCount] = newCount
	patch[model.FieldBanHistory] = s.BanHistory
	return &ev
}

func (e *Engine) applyExpiry(s *model.AccountSecurityState, patch Patch, now time.Time) {
	for k, v := range ExpiryPatch(now) {
		patch[k] = v
	}
	t := now
	s.Banned = false
	s.BanExpiresAt = nil
	s.BanReason = ""
	s.ForceLogoutAt = &t
	s.ForceLogoutReason = model.LogoutReasonBanExpired
	s.ForcedBy = model.ForcedBySystem
}

// ExpiryPatch 临时封禁自然过期的清理。
// 只写固定值，不碰 banCount 和 devices，多个客户端并发写入结果一致。
func ExpiryPatch(now time.Time) Patch {
	t := now
	return Patch{
		model.FieldBanned:            false,
		model.FieldBanExpiresAt:      nil,
		model.FieldBanReason:         "",
		model.FieldForceLogoutAt:     &t,
		model.FieldForceLogoutReason: model.LogoutReasonBanExpired,
		model.FieldForcedBy:          model.ForcedBySystem,
	}
}

// UnbanPatch 管理员解封：全部重置，permanentBanCount 保留作历史统计
func UnbanPatch(now time.Time, adminID string) Patch {
	t := now
	return Patch{
		model.FieldBanned:            false,
		model.FieldBanExpiresAt:      nil,
		model.FieldBanReason:         "",
		model.FieldPermanentBan:      false,
		model.FieldBanCount:          0,
		model.FieldDevices:           []model.DeviceRecord{},
		model.FieldKickedDevices:     []string{},
		model.FieldBanHistory:        []model.BanEvent{},
		model.FieldForceLogoutAt:     &t,
		model.FieldForceLogoutReason: model.LogoutReasonAdminUnban,
		model.FieldForcedBy:          adminID,
		model.FieldClearBanCacheAt:   &t,
	}
}

// ManualBanPatch 管理员手动临时封禁，不计入 banCount，不修改设备列表
func (e *Engine) ManualBanPatch(state *model.AccountSecurityState, now time.Time, adminID, reason string) (Patch, *model.BanEvent, error) {
	if state.IsAdmin() {
		return nil, nil, ErrAdminExempt
	}
	if state.Status(now) == model.BanStatusPermanent {
		return nil, nil, ErrAlreadyPermanent
	}
	var (
		count   int
		history []model.BanEvent
	)
	if state != nil {
		count = state.BanCount
		history = append(history, state.BanHistory...)
	}
	until := now.Add(e.policy.TempBanDuration)
	ev := model.BanEvent{
		ID:                     e.nextID(),
		Timestamp:              now,
		Reason:                 reason,
		DeviceCountAtViolation: len(stateDevices(state)),
		BannedUntil:            &until,
		BanCount:               count,
		Manual:                 true,
		BannedBy:               adminID,
	}
	history = append(history, ev)
	return Patch{
		model.FieldBanned:       true,
		model.FieldBanExpiresAt: &until,
		model.FieldBanReason:    reason,
		model.FieldBanHistory:   history,
	}, &ev, nil
}

// KickPatch 踢出单个设备。重复执行结果相同，只刷新 forceLogoutAt。
func KickPatch(state *model.AccountSecurityState, fingerprint string, now time.Time, adminID string) Patch {
	t := now
	kicked := []string{}
	if state != nil {
		kicked = withoutString(state.KickedDevices, fingerprint)
	}
	kicked = append(kicked, fingerprint)
	return Patch{
		model.FieldDevices:           withoutDevice(stateDevices(state), fingerprint),
		model.FieldKickedDevices:     kicked,
		model.FieldForceLogoutAt:     &t,
		model.FieldForceLogoutReason: model.LogoutReasonDeviceKick,
		model.FieldForcedBy:          adminID,
	}
}

// MassLogoutPatch 清空设备并要求所有会话重新登录
func MassLogoutPatch(now time.Time, adminID string) Patch {
	t := now
	return Patch{
		model.FieldDevices:           []model.DeviceRecord{},
		model.FieldForceLogoutAt:     &t,
		model.FieldForceLogoutReason: model.LogoutReasonMassLogout,
		model.FieldForcedBy:          adminID,
	}
}

// ForceLogoutFields clearForceLogoutFlags 要删除的字段
func ForceLogoutFields() []string {
	return []string{model.FieldForceLogoutAt, model.FieldForceLogoutReason, model.FieldForcedBy}
}

// RemoveDevicePatch 设备主动退出
func RemoveDevicePatch(state *model.AccountSecurityState, fingerprint string) Patch {
	return Patch{model.FieldDevices: withoutDevice(stateDevices(state), fingerprint)}
}

// AckKickPatch 被踢设备确认下线后把自己从踢出列表移除
func AckKickPatch(state *model.AccountSecurityState, fingerprint string) Patch {
	var kicked []string
	if state != nil {
		kicked = state.KickedDevices
	}
	return Patch{model.FieldKickedDevices: withoutString(kicked, fingerprint)}
}

func stateDevices(s *model.AccountSecurityState) []model.DeviceRecord {
	if s == nil {
		return nil
	}
	return s.Devices
}
