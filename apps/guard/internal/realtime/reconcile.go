package realtime

import (
	"time"

	"EduServer/model"
)

// Action 一次通知处理后客户端需要做的事
type Action int

const (
	ActionNone         Action = iota // 只刷新视图
	ActionKicked                     // 本设备被踢，下线并确认
	ActionShowBan                    // 封禁中，展示封禁并停止后续检查
	ActionClearExpired               // 封禁已过期，清理后重新加载
	ActionForceLogout                // 强制下线信号比上次确认的新
	ActionEvicted                    // 本设备已不在设备列表中且超过宽限期
)

func (a Action) String() string {
	switch a {
	case ActionKicked:
		return "kicked"
	case ActionShowBan:
		return "show_ban"
	case ActionClearExpired:
		return "clear_expired"
	case ActionForceLogout:
		return "force_logout"
	case ActionEvicted:
		return "evicted"
	default:
		return "none"
	}
}

// Local 单个会话自己持有的状态
type Local struct {
	Fingerprint     string
	LoginAt         time.Time
	LastAckLogoutAt time.Time
}

// Verdict 处理结果，Step 为命中的检查序号（1-6），都未命中为 0
type Verdict struct {
	Step   int
	Action Action
	Status model.BanStatus
}

// Reconcile 按固定顺序检查，命中即返回：
//  1. 管理员不做任何检查
//  2. 本设备在踢出列表中
//  3. 封禁生效中（临时未过期或永久），不再执行后面的下线检查
//  4. 封禁字段存在但已过期
//  5. forceLogoutAt 比本会话确认过的更新
//  6. 本设备不在设备列表中，且登录已超过宽限期
func Reconcile(state *model.AccountSecurityState, local Local, now time.Time, grace time.Duration) Verdict {
	status := state.Status(now)
	if state == nil || state.IsAdmin() {
		return Verdict{Step: 1, Action: ActionNone, Status: model.BanStatusActive}
	}
	if state.IsKicked(local.Fingerprint) {
		return Verdict{Step: 2, Action: ActionKicked, Status: status}
	}
	if status == model.BanStatusTemporary || status == model.BanStatusPermanent {
		return Verdict{Step: 3, Action: ActionShowBan, Status: status}
	}
	if state.BanExpired(now) {
		return Verdict{Step: 4, Action: ActionClearExpired, Status: status}
	}
	// 客户端回传的 loginAt / ack 只有毫秒精度
	if state.ForceLogoutAt != nil && state.ForceLogoutAt.Truncate(time.Millisecond).After(local.LastAckLogoutAt.Truncate(time.Millisecond)) {
		return Verdict{Step: 5, Action: ActionForceLogout, Status: status}
	}
	if !state.HasDevice(local.Fingerprint) && now.Sub(local.LoginAt) > grace {
		return Verdict{Step: 6, Action: ActionEvicted, Status: status}
	}
	return Verdict{Action: ActionNone, Status: status}
}
