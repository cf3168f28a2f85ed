package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"EduServer/apps/guard/internal/repository"
	"EduServer/model"
	"EduServer/pkg/async"
	"EduServer/pkg/logger"
	"EduServer/pkg/util"
)

// EventPublisher 审计事件流，*kafka.Producer 满足该接口
type EventPublisher interface {
	SendJSON(ctx context.Context, key string, value any) error
}

// auditSinkImpl 审计落库 + 写入 Kafka 审计流，任一失败只记录日志
type auditSinkImpl struct {
	repo      repository.AuditRepository
	publisher EventPublisher
	timeout   time.Duration
}

// NewAuditSink repo 与 publisher 都可以为 nil（本地开发没有 MySQL/Kafka）
func NewAuditSink(repo repository.AuditRepository, publisher EventPublisher) AuditSink {
	return &auditSinkImpl{repo: repo, publisher: publisher, timeout: 10 * time.Second}
}

// Record fire-and-forget，不阻塞管理员请求
func (a *auditSinkImpl) Record(ctx context.Context, ev AuditEvent) {
	async.RunSafe(ctx, func(ctx context.Context) {
		a.write(ctx, ev)
	}, a.timeout)
}

func (a *auditSinkImpl) write(ctx context.Context, ev AuditEvent) {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		detail = []byte("{}")
	}
	if a.repo != nil {
		entry := &model.AuditLog{
			Id:        util.NextID(),
			Action:    ev.Action,
			AdminID:   ev.AdminID,
			Targets:   strings.Join(ev.Targets, ","),
			Detail:    string(detail),
			TraceID:   ev.TraceID,
			CreatedAt: ev.At,
		}
		if err := a.repo.Create(ctx, entry); err != nil {
			logger.Warn(ctx, "审计记录落库失败",
				logger.String("action", ev.Action),
				logger.ErrorField("error", err),
			)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.SendJSON(ctx, ev.AdminID, ev); err != nil {
			logger.Warn(ctx, "审计事件写入 Kafka 失败",
				logger.String("action", ev.Action),
				logger.ErrorField("error", err),
			)
		}
	}
}
