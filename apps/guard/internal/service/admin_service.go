package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"EduServer/apps/guard/internal/enforce"
	"EduServer/apps/guard/internal/metrics"
	"EduServer/apps/guard/internal/repository"
	"EduServer/config"
	"EduServer/model"
	"EduServer/pkg/async"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/logger"
)

// adminServiceImpl 管理员操作实现，所有写入都落在同一份账号文档上，随实时通知传播到客户端
type adminServiceImpl struct {
	store     repository.DocumentStore
	presence  repository.PresenceRepository
	devices   DeviceService
	engine    *enforce.Engine
	audit     AuditSink
	notifier  Notifier
	batchSize int
	now       func() time.Time
}

// NewAdminService 创建管理员服务，notifier 可以为 nil
func NewAdminService(
	store repository.DocumentStore,
	presence repository.PresenceRepository,
	devices DeviceService,
	engine *enforce.Engine,
	audit AuditSink,
	notifier Notifier,
	cfg config.GuardConfig,
) AdminService {
	size := cfg.MassLogoutBatchSize
	if size <= 0 {
		size = 50
	}
	return &adminServiceImpl{
		store:     store,
		presence:  presence,
		devices:   devices,
		engine:    engine,
		audit:     audit,
		notifier:  notifier,
		batchSize: size,
		now:       time.Now,
	}
}

// requireAdmin 调用方身份由认证中间件写入 ctx
func requireAdmin(ctx context.Context) (string, error) {
	if ctxmeta.Role(ctx) != model.RoleAdmin {
		return "", ErrPermissionDenied
	}
	id := ctxmeta.AccountID(ctx)
	if id == "" {
		return "", ErrPermissionDenied
	}
	return id, nil
}

func (s *adminServiceImpl) load(ctx context.Context, accountID string) (*model.AccountSecurityState, error) {
	if accountID == "" {
		return nil, ErrInvalidArgument
	}
	state, err := s.store.GetDocument(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return state, nil
}

func (s *adminServiceImpl) record(ctx context.Context, action, adminID string, targets []string, detail map[string]any) {
	s.audit.Record(ctx, AuditEvent{
		Action:  action,
		AdminID: adminID,
		Targets: targets,
		Detail:  detail,
		TraceID: ctxmeta.TraceID(ctx),
		At:      s.now(),
	})
}

// BanUser 手动临时封禁 30 分钟，不修改设备列表，不计入 banCount
func (s *adminServiceImpl) BanUser(ctx context.Context, accountID, reason string) (*model.BanEvent, error) {
	adminID, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	state, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "manual"
	}

	patch, ev, err := s.engine.ManualBanPatch(state, s.now(), adminID, reason)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetDocument(ctx, accountID, patch, true); err != nil {
		metrics.AdminActions.WithLabelValues(model.AuditActionBan, "failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	metrics.AdminActions.WithLabelValues(model.AuditActionBan, "ok").Inc()
	metrics.Bans.WithLabelValues("manual").Inc()
	logger.Info(ctx, "管理员封禁账号",
		logger.String("target", accountID),
		logger.String("reason", reason),
	)
	s.record(ctx, model.AuditActionBan, adminID, []string{accountID}, map[string]any{
		"reason":      reason,
		"bannedUntil": ev.BannedUntil,
	})
	return ev, nil
}

// UnbanUser 全量重置：清空封禁、设备、踢出列表和封禁历史，并通知客户端丢弃本地封禁缓存
func (s *adminServiceImpl) UnbanUser(ctx context.Context, accountID string) error {
	adminID, err := requireAdmin(ctx)
	if err != nil {
		return err
	}
	state, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.store.SetDocument(ctx, accountID, enforce.UnbanPatch(s.now(), adminID), true); err != nil {
		metrics.AdminActions.WithLabelValues(model.AuditActionUnban, "failed").Inc()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.dropPresence(ctx, accountID)

	metrics.AdminActions.WithLabelValues(model.AuditActionUnban, "ok").Inc()
	logger.Info(ctx, "管理员解封账号",
		logger.String("target", accountID),
		logger.Int("previous_ban_count", state.BanCount),
		logger.Bool("was_permanent", state.PermanentBan),
	)
	s.record(ctx, model.AuditActionUnban, adminID, []string{accountID}, map[string]any{
		"previousBanCount": state.BanCount,
		"wasPermanent":     state.PermanentBan,
	})
	return nil
}

// KickDevice 踢出单个设备，重复执行只刷新 forceLogoutAt
func (s *adminServiceImpl) KickDevice(ctx context.Context, accountID, fingerprint string) error {
	adminID, err := requireAdmin(ctx)
	if err != nil {
		return err
	}
	if fingerprint == "" {
		return ErrInvalidArgument
	}
	state, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}
	if !state.HasDevice(fingerprint) && !state.IsKicked(fingerprint) {
		return ErrDeviceNotFound
	}

	if err := s.store.SetDocument(ctx, accountID, enforce.KickPatch(state, fingerprint, s.now(), adminID), true); err != nil {
		metrics.AdminActions.WithLabelValues(model.AuditActionKickDevice, "failed").Inc()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.dropPresence(ctx, accountID, fingerprint)

	metrics.AdminActions.WithLabelValues(model.AuditActionKickDevice, "ok").Inc()
	logger.Info(ctx, "管理员踢出设备",
		logger.String("target", accountID),
		logger.String("fingerprint", fingerprint),
	)
	s.record(ctx, model.AuditActionKickDevice, adminID, []string{accountID}, map[string]any{
		"fingerprint": fingerprint,
	})
	return nil
}

// MassLogout 批量清空设备并强制下线，按批处理，单个账号失败不影响其他账号
func (s *adminServiceImpl) MassLogout(ctx context.Context, accountIDs []string) (*BatchResult, error) {
	adminID, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	ids := dedupe(accountIDs)
	if len(ids) == 0 {
		return nil, ErrInvalidArgument
	}

	now := s.now()
	res := s.runBatches(ctx, ids, func(ctx context.Context, id string) error {
		if _, err := s.load(ctx, id); err != nil {
			return err
		}
		if err := s.store.SetDocument(ctx, id, enforce.MassLogoutPatch(now, adminID), true); err != nil {
			return err
		}
		s.dropPresence(ctx, id)
		return nil
	})

	metrics.AdminActions.WithLabelValues(model.AuditActionMassLogout, "ok").Add(float64(len(res.Succeeded)))
	metrics.AdminActions.WithLabelValues(model.AuditActionMassLogout, "failed").Add(float64(len(res.Failed)))
	logger.Info(ctx, "管理员批量强制下线",
		logger.Int("requested", len(ids)),
		logger.Int("succeeded", len(res.Succeeded)),
		logger.Int("failed", len(res.Failed)),
	)
	s.record(ctx, model.AuditActionMassLogout, adminID, ids, map[string]any{
		"succeeded": len(res.Succeeded),
		"failed":    res.Failed,
	})
	s.notify(ctx, fmt.Sprintf("[guard] 批量强制下线 %d 个账号", len(ids)),
		fmt.Sprintf("操作人: %s\n成功: %d\n失败: %d\n", adminID, len(res.Succeeded), len(res.Failed)))
	return res, nil
}

// ClearForceLogoutFlags 紧急手段：直接删除 forceLogoutAt/forceLogoutReason 字段，打破卡住的下线循环
func (s *adminServiceImpl) ClearForceLogoutFlags(ctx context.Context, accountIDs []string) (*BatchResult, error) {
	adminID, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	ids := dedupe(accountIDs)
	if len(ids) == 0 {
		return nil, ErrInvalidArgument
	}

	res := s.runBatches(ctx, ids, func(ctx context.Context, id string) error {
		if _, err := s.load(ctx, id); err != nil {
			return err
		}
		return s.store.DeleteFields(ctx, id, enforce.ForceLogoutFields()...)
	})

	metrics.AdminActions.WithLabelValues(model.AuditActionClearForceLogout, "ok").Add(float64(len(res.Succeeded)))
	metrics.AdminActions.WithLabelValues(model.AuditActionClearForceLogout, "failed").Add(float64(len(res.Failed)))
	logger.Warn(ctx, "管理员清除强制下线标记",
		logger.Int("requested", len(ids)),
		logger.Int("failed", len(res.Failed)),
	)
	s.record(ctx, model.AuditActionClearForceLogout, adminID, ids, map[string]any{
		"failed": res.Failed,
	})
	return res, nil
}

func (s *adminServiceImpl) GetSecurityState(ctx context.Context, accountID string) (*model.AccountSecurityState, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.devices.GetState(ctx, accountID)
}

func (s *adminServiceImpl) ListDevices(ctx context.Context, accountID string) ([]model.DeviceView, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.devices.ListDevices(ctx, accountID, "")
}

// runBatches 每批最多 batchSize 个账号在协程池中并发执行，批与批之间串行
func (s *adminServiceImpl) runBatches(ctx context.Context, ids []string, fn func(ctx context.Context, id string) error) *BatchResult {
	res := &BatchResult{Succeeded: make([]string, 0, len(ids)), Failed: map[string]string{}}
	var mu sync.Mutex

	for start := 0; start < len(ids); start += s.batchSize {
		end := start + s.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := make([]func(context.Context), 0, end-start)
		for _, id := range ids[start:end] {
			id := id
			batch = append(batch, func(ctx context.Context) {
				err := safeCall(ctx, id, fn)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Failed[id] = err.Error()
					logger.Warn(ctx, "批量操作单个账号失败",
						logger.String("target", id),
						logger.ErrorField("error", err),
					)
					return
				}
				res.Succeeded = append(res.Succeeded, id)
			})
		}
		async.RunAll(ctx, batch...)
		if ctx.Err() != nil {
			for _, id := range ids[end:] {
				res.Failed[id] = ctx.Err().Error()
			}
			break
		}
	}
	return res
}

// safeCall 单个账号的 panic 也不能中断整批
func safeCall(ctx context.Context, id string, fn func(context.Context, string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, id)
}

func (s *adminServiceImpl) dropPresence(ctx context.Context, accountID string, fingerprints ...string) {
	async.RunSafe(ctx, func(ctx context.Context) {
		if err := s.presence.RemovePresence(ctx, accountID, fingerprints...); err != nil {
			logger.Warn(ctx, "清理在线状态失败", logger.ErrorField("error", err))
		}
	}, 5*time.Second)
}

func (s *adminServiceImpl) notify(ctx context.Context, subject, body string) {
	if s.notifier == nil {
		return
	}
	async.RunSafe(ctx, func(ctx context.Context) {
		if err := s.notifier.Notify(ctx, subject, body); err != nil {
			logger.Warn(ctx, "管理员通知发送失败", logger.ErrorField("error", err))
		}
	}, 30*time.Second)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
