package realtime

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"EduServer/apps/guard/internal/metrics"
	"EduServer/apps/guard/internal/repository"
	"EduServer/apps/guard/internal/service"
	"EduServer/model"
	"EduServer/pkg/logger"
)

// EventType 推送给客户端的事件类型
type EventType string

const (
	EventState           EventType = "state"
	EventBan             EventType = "ban"
	EventKicked          EventType = "kicked"
	EventBanExpired      EventType = "ban_expired"
	EventForceLogout     EventType = "force_logout"
	EventEvicted         EventType = "evicted"
	EventBanCacheCleared EventType = "ban_cache_cleared"
)

// SecurityEvent 会话输出的事件，Terminal 为 true 时客户端应下线并重新认证，会话随之结束
type SecurityEvent struct {
	Type     EventType            `json:"type"`
	Reason   string               `json:"reason,omitempty"`
	View     service.SecurityView `json:"view"`
	At       time.Time            `json:"at"`
	Terminal bool                 `json:"terminal"`
}

// Actions 会话需要执行的写操作
type Actions interface {
	AcknowledgeKick(ctx context.Context, accountID, fingerprint string) error
	ClearExpiredBan(ctx context.Context, accountID string) (*time.Time, error)
}

// SessionConfig 会话参数
type SessionConfig struct {
	AccountID   string
	Fingerprint string
	LoginAt     time.Time
	// LastAckLogoutAt 客户端上次确认过的强制下线时间（重新加载后随连接带回）
	LastAckLogoutAt time.Time
	GracePeriod     time.Duration
}

// Session 每个订阅一个，独占自己的对账状态，按到达顺序逐条处理通知
type Session struct {
	accountID   string
	fingerprint string
	loginAt     time.Time
	lastAck     time.Time
	lastClear   time.Time
	grace       time.Duration

	store   repository.DocumentStore
	actions Actions
	cache   *BanCache
	now     func() time.Time
	// newTimer 到期复查用，测试中替换
	newTimer func(d time.Duration) (<-chan time.Time, func() bool)

	events chan SecurityEvent
	acks   chan time.Time
}

// NewSession cache 可以为 nil
func NewSession(cfg SessionConfig, store repository.DocumentStore, actions Actions, cache *BanCache) *Session {
	now := time.Now()
	loginAt := cfg.LoginAt
	if loginAt.IsZero() || loginAt.After(now) {
		loginAt = now
	}
	lastAck := cfg.LastAckLogoutAt
	if lastAck.Before(loginAt) {
		lastAck = loginAt
	}
	return &Session{
		accountID:   cfg.AccountID,
		fingerprint: cfg.Fingerprint,
		loginAt:     loginAt,
		lastAck:     lastAck,
		lastClear:   loginAt,
		grace:       cfg.GracePeriod,
		store:       store,
		actions:     actions,
		cache:       cache,
		now:         time.Now,
		newTimer:    realTimer,
		events:      make(chan SecurityEvent, 16),
		acks:        make(chan time.Time, 4),
	}
}

func realTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

// Events Run 结束后关闭
func (s *Session) Events() <-chan SecurityEvent { return s.events }

// Ack 客户端确认处理过的强制下线时间
func (s *Session) Ack(at time.Time) {
	select {
	case s.acks <- at:
	default:
	}
}

// Run 阻塞直到 ctx 取消、订阅结束或产生终止事件
func (s *Session) Run(ctx context.Context) error {
	defer close(s.events)

	snapshots, err := s.store.Subscribe(ctx, s.accountID)
	if err != nil {
		return err
	}
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	// 临时封禁到期、宽限期结束都不会产生写入，需要按时间复查最近一次快照
	var (
		last    *model.AccountSecurityState
		recheck <-chan time.Time
		stop    func() bool
	)
	disarm := func() {
		if stop != nil {
			stop()
		}
		recheck, stop = nil, nil
	}
	arm := func() {
		if d, ok := s.recheckAfter(last); ok {
			recheck, stop = s.newTimer(d)
		}
	}
	defer disarm()

	for {
		select {
		case <-ctx.Done():
			return nil
		case at := <-s.acks:
			if at.After(s.lastAck) {
				s.lastAck = at
			}
		case state, ok := <-snapshots:
			if !ok {
				return nil
			}
			disarm()
			last = state
			if s.handle(ctx, state) {
				return nil
			}
			arm()
		case <-recheck:
			recheck, stop = nil, nil
			if s.handle(ctx, last) {
				return nil
			}
			arm()
		}
	}
}

// recheckAfter 快照本身会随时间改变结论时，返回需要等待的时长
func (s *Session) recheckAfter(state *model.AccountSecurityState) (time.Duration, bool) {
	if state == nil || state.IsAdmin() || state.IsKicked(s.fingerprint) {
		return 0, false
	}
	now := s.now()
	if state.Status(now) == model.BanStatusTemporary {
		return positive(state.BanExpiresAt.Sub(now)), true
	}
	if state.Status(now) == model.BanStatusActive && !state.HasDevice(s.fingerprint) {
		if left := s.loginAt.Add(s.grace).Sub(now); left >= 0 {
			// 超过宽限期才算离开
			return positive(left + time.Millisecond), true
		}
	}
	return 0, false
}

func positive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// handle 处理一条通知，返回是否结束会话。panic 与错误只影响本条通知。
func (s *Session) handle(ctx context.Context, state *model.AccountSecurityState) (terminal bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ReconcileErrors.Inc()
			logger.Error(ctx, "处理账号变更通知 panic",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			terminal = false
		}
	}()

	now := s.now()
	view := service.BuildView(state, s.fingerprint, now)

	if at := state.ClearBanCacheAt; at != nil && at.After(s.lastClear) {
		s.lastClear = *at
		s.cache.Purge(s.accountID)
		if !s.emit(ctx, SecurityEvent{Type: EventBanCacheCleared, View: view, At: now}) {
			return true
		}
	}

	local := Local{Fingerprint: s.fingerprint, LoginAt: s.loginAt, LastAckLogoutAt: s.lastAck}
	verdict := Reconcile(state, local, now, s.grace)

	var ev SecurityEvent
	switch verdict.Action {
	case ActionNone:
		s.cache.Set(s.accountID, state)
		ev = SecurityEvent{Type: EventState, View: view, At: now}

	case ActionShowBan:
		s.cache.Set(s.accountID, state)
		ev = SecurityEvent{Type: EventBan, Reason: state.BanReason, View: view, At: now}

	case ActionKicked:
		if err := s.actions.AcknowledgeKick(ctx, s.accountID, s.fingerprint); err != nil {
			// 下线照常进行，重新登录时会从踢出列表移除
			logger.Warn(ctx, "确认踢出失败", logger.ErrorField("error", err))
		}
		ev = SecurityEvent{Type: EventKicked, Reason: model.LogoutReasonDeviceKick, View: view, At: now, Terminal: true}

	case ActionClearExpired:
		at, err := s.actions.ClearExpiredBan(ctx, s.accountID)
		if err != nil {
			metrics.ReconcileErrors.Inc()
			logger.Warn(ctx, "清理过期封禁失败，等待下一次通知", logger.ErrorField("error", err))
			return false
		}
		if at != nil && at.After(s.lastAck) {
			s.lastAck = *at
		}
		s.cache.Purge(s.accountID)
		ev = SecurityEvent{Type: EventBanExpired, Reason: model.LogoutReasonBanExpired, View: view, At: now, Terminal: true}

	case ActionForceLogout:
		s.lastAck = *state.ForceLogoutAt
		ev = SecurityEvent{Type: EventForceLogout, Reason: state.ForceLogoutReason, View: view, At: now, Terminal: true}

	case ActionEvicted:
		ev = SecurityEvent{Type: EventEvicted, Reason: "device_removed", View: view, At: now, Terminal: true}

	default:
		panic(fmt.Sprintf("unhandled reconcile action %d", verdict.Action))
	}

	if ev.Terminal {
		logger.Info(ctx, "会话收到下线事件",
			logger.String("type", string(ev.Type)),
			logger.String("reason", ev.Reason),
			logger.Int("step", verdict.Step),
		)
	}
	if !s.emit(ctx, ev) {
		return true
	}
	return ev.Terminal
}

func (s *Session) emit(ctx context.Context, ev SecurityEvent) bool {
	metrics.SecurityEvents.WithLabelValues(string(ev.Type)).Inc()
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
