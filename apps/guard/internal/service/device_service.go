package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"EduServer/apps/guard/internal/enforce"
	"EduServer/apps/guard/internal/metrics"
	"EduServer/apps/guard/internal/repository"
	"EduServer/apps/guard/mq"
	"EduServer/config"
	rediskey "EduServer/consts/redisKey"
	"EduServer/model"
	"EduServer/pkg/async"
	"EduServer/pkg/logger"
	"EduServer/pkg/retry"
)

// deviceServiceImpl 设备服务实现
type deviceServiceImpl struct {
	store    repository.DocumentStore
	presence repository.PresenceRepository
	resolver DeviceResolver
	engine   *enforce.Engine
	notifier Notifier
	cleanup  retry.Policy
	now      func() time.Time
}

// NewDeviceService 创建设备服务实例，notifier 可以为 nil
func NewDeviceService(
	store repository.DocumentStore,
	presence repository.PresenceRepository,
	resolver DeviceResolver,
	engine *enforce.Engine,
	notifier Notifier,
	cfg config.GuardConfig,
) DeviceService {
	return &deviceServiceImpl{
		store:    store,
		presence: presence,
		resolver: resolver,
		engine:   engine,
		notifier: notifier,
		cleanup: retry.Policy{
			MaxAttempts: cfg.CleanupRetryAttempts,
			Initial:     cfg.CleanupRetryBackoff,
			Max:         10 * cfg.CleanupRetryBackoff,
		},
		now: time.Now,
	}
}

// CheckAndHandleDeviceLogin 设备登录
// 业务流程：
//  1. 生成设备记录（定位失败不阻塞）
//  2. 读取账号安全文档，不存在时以请求中的角色新建
//  3. 状态机计算：清理过期封禁 -> 登记设备 -> 按需升级封禁
//  4. 写回变更字段，所有订阅方随之收到通知
func (s *deviceServiceImpl) CheckAndHandleDeviceLogin(ctx context.Context, req *LoginDeviceRequest) (*LoginDeviceResult, error) {
	if req == nil || req.AccountID == "" {
		return nil, ErrInvalidArgument
	}

	rec := s.resolver.Resolve(ctx, req.Env, req.ClientIP, req.SessionID)

	state, err := s.store.GetDocument(ctx, req.AccountID)
	isNew := false
	if err != nil {
		if !errors.Is(err, repository.ErrRecordNotFound) {
			logger.Error(ctx, "读取账号安全文档失败", logger.ErrorField("error", err))
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		role := req.Role
		if role == "" {
			role = model.RoleStudent
		}
		state = &model.AccountSecurityState{AccountID: req.AccountID, Role: role}
		isNew = true
	}

	now := s.now()
	dec := s.engine.EvaluateLogin(state, *rec, now)
	if isNew {
		dec.Patch[model.FieldAccountID] = req.AccountID
		dec.Patch[model.FieldRole] = state.Role
		dec.Patch[model.FieldCreatedAt] = &now
	}

	if err := s.store.SetDocument(ctx, req.AccountID, dec.Patch, true); err != nil {
		logger.Error(ctx, "写入设备登录结果失败",
			logger.String("fingerprint", rec.Fingerprint),
			logger.ErrorField("error", err),
		)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	metrics.LoginOutcomes.WithLabelValues(dec.Outcome.String()).Inc()
	if dec.ExpiredCleared {
		metrics.BanExpiryClears.Inc()
	}
	if ev := dec.BanEvent; ev != nil {
		s.onEscalated(ctx, req, ev)
	}

	logger.Info(ctx, "设备登录",
		logger.String("fingerprint", rec.Fingerprint),
		logger.String("outcome", dec.Outcome.String()),
		logger.String("status", dec.Status.String()),
		logger.Int("device_count", len(dec.State.Devices)),
		logger.Int("ban_count", dec.State.BanCount),
	)

	s.MarkPresence(ctx, req.AccountID, rec.Fingerprint, true)

	device := dec.Device
	return &LoginDeviceResult{
		Device:  &device,
		Outcome: dec.Outcome.String(),
		View:    BuildView(dec.State, rec.Fingerprint, now),
		LoginAt: now,
		State:   dec.State,
	}, nil
}

func (s *deviceServiceImpl) onEscalated(ctx context.Context, req *LoginDeviceRequest, ev *model.BanEvent) {
	kind := "temporary"
	if ev.Permanent {
		kind = "permanent"
	}
	metrics.Bans.WithLabelValues(kind).Inc()
	logger.Warn(ctx, "多设备登录触发封禁",
		logger.String("kind", kind),
		logger.Int("ban_count", ev.BanCount),
		logger.Int("device_count", ev.DeviceCountAtViolation),
	)
	if !ev.Permanent || s.notifier == nil {
		return
	}
	subject := fmt.Sprintf("[guard] 账号 %s 已被永久封禁", req.AccountID)
	body := fmt.Sprintf("账号: %s\n邮箱: %s\n昵称: %s\n封禁次数: %d\n违规时设备数: %d\n时间: %s\n",
		req.AccountID, req.Email, req.Name, ev.BanCount, ev.DeviceCountAtViolation, ev.Timestamp.Format(time.RFC3339))
	async.RunSafe(ctx, func(ctx context.Context) {
		if err := s.notifier.Notify(ctx, subject, body); err != nil {
			logger.Warn(ctx, "永久封禁通知发送失败", logger.ErrorField("error", err))
		}
	}, 30*time.Second)
}

// SignOut 退出登录
// 本地登录态由调用方无条件清除；远端设备记录移除失败时记录日志并交给重试队列，
// 重试任务会重新读取文档，不会覆盖期间的其他写入。
func (s *deviceServiceImpl) SignOut(ctx context.Context, accountID, fingerprint string) {
	if accountID == "" || fingerprint == "" {
		return
	}
	if err := s.RemoveDevice(ctx, accountID, fingerprint); err != nil {
		repository.LogAndRetryRedisError(ctx, mq.BuildRemoveDeviceTask(accountID, fingerprint).WithSource("sign_out"), err)
	}
	async.RunSafe(ctx, func(ctx context.Context) {
		if err := s.presence.RemovePresence(ctx, accountID, fingerprint); err != nil {
			repository.LogAndRetryRedisError(ctx, mq.BuildHDelTask(rediskey.PresenceKey(accountID), fingerprint), err)
		}
	}, 5*time.Second)
}

// LeaveDevice 多设备警告流程：移除失败会让过期设备记录掩盖下一次违规，因此有限重试
func (s *deviceServiceImpl) LeaveDevice(ctx context.Context, accountID, fingerprint string) error {
	if accountID == "" || fingerprint == "" {
		return ErrInvalidArgument
	}
	err := retry.Do(ctx, s.cleanup, func(ctx context.Context) error {
		return s.RemoveDevice(ctx, accountID, fingerprint)
	}, func(attempt int, err error) {
		logger.Warn(ctx, "移除设备失败，准备重试",
			logger.String("fingerprint", fingerprint),
			logger.Int("attempt", attempt),
			logger.ErrorField("error", err),
		)
	})
	if err != nil {
		metrics.CleanupFailures.Inc()
		logger.Error(ctx, "移除设备重试耗尽，提示用户手动退出",
			logger.String("fingerprint", fingerprint),
			logger.ErrorField("error", err),
		)
		return fmt.Errorf("%w: %v", ErrManualLogoutRequired, err)
	}
	s.MarkPresence(ctx, accountID, fingerprint, false)
	return nil
}

func (s *deviceServiceImpl) RemoveDevice(ctx context.Context, accountID, fingerprint string) error {
	state, err := s.store.GetDocument(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if !state.HasDevice(fingerprint) {
		return nil
	}
	return s.store.SetDocument(ctx, accountID, enforce.RemoveDevicePatch(state, fingerprint), true)
}

func (s *deviceServiceImpl) AcknowledgeKick(ctx context.Context, accountID, fingerprint string) error {
	state, err := s.store.GetDocument(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if !state.IsKicked(fingerprint) {
		return nil
	}
	return s.store.SetDocument(ctx, accountID, enforce.AckKickPatch(state, fingerprint), true)
}

// ClearExpiredBan 被动过期清理，只写固定值，多个会话并发执行结果一致
func (s *deviceServiceImpl) ClearExpiredBan(ctx context.Context, accountID string) (*time.Time, error) {
	state, err := s.store.GetDocument(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	now := s.now()
	if !state.BanExpired(now) {
		return nil, nil
	}
	if err := s.store.SetDocument(ctx, accountID, enforce.ExpiryPatch(now), true); err != nil {
		return nil, err
	}
	metrics.BanExpiryClears.Inc()
	logger.Info(ctx, "临时封禁已过期，已清理",
		logger.Int("ban_count", state.BanCount),
		logger.Int("device_count", len(state.Devices)),
	)
	return &now, nil
}

func (s *deviceServiceImpl) GetState(ctx context.Context, accountID string) (*model.AccountSecurityState, error) {
	state, err := s.store.GetDocument(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !state.BanExpired(s.now()) {
		return state, nil
	}
	if _, err := s.ClearExpiredBan(ctx, accountID); err != nil {
		// 清理失败不影响读取，Status 已按过期计算
		logger.Warn(ctx, "读取时清理过期封禁失败", logger.ErrorField("error", err))
		return state, nil
	}
	if fresh, err := s.store.GetDocument(ctx, accountID); err == nil {
		return fresh, nil
	}
	return state, nil
}

func (s *deviceServiceImpl) ListDevices(ctx context.Context, accountID, currentFingerprint string) ([]model.DeviceView, error) {
	state, err := s.GetState(ctx, accountID)
	if err != nil {
		return nil, err
	}
	presence, err := s.presence.GetPresence(ctx, accountID)
	if err != nil {
		logger.Warn(ctx, "读取在线状态失败，按离线返回", logger.ErrorField("error", err))
		presence = nil
	}
	out := make([]model.DeviceView, 0, len(state.Devices))
	for _, d := range state.Devices {
		p := presence[d.Fingerprint]
		out = append(out, model.DeviceView{
			DeviceRecord: d,
			Online:       p.Online,
			ActiveAt:     p.ActiveAt,
			Current:      d.Fingerprint == currentFingerprint,
		})
	}
	return out, nil
}

// MarkPresence 走协程池，连接断开或请求取消后仍会执行
func (s *deviceServiceImpl) MarkPresence(ctx context.Context, accountID, fingerprint string, online bool) {
	if accountID == "" || fingerprint == "" {
		return
	}
	at := s.now()
	async.RunSafe(ctx, func(ctx context.Context) {
		err := s.presence.SetPresence(ctx, accountID, fingerprint, online, at)
		if err == nil {
			return
		}
		payload, _ := json.Marshal(model.DevicePresence{Online: online, ActiveAt: at.Unix()})
		repository.LogAndRetryRedisError(ctx, mq.BuildHSetTask(rediskey.PresenceKey(accountID), fingerprint, string(payload)), err)
	}, 5*time.Second)
}
