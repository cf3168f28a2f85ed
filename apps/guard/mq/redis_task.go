package mq

import (
	"context"
	"time"

	"EduServer/pkg/ctxmeta"
)

// ==================== Redis 任务定义 ====================

type CommandType string

const (
	CmdSimple       CommandType = "simple"        // HSET, HDEL, DEL...
	CmdPipeline     CommandType = "pipeline"      // 批量操作（MULTI 执行）
	CmdRemoveDevice CommandType = "remove_device" // 退出登录时未能移除的设备记录，重放时重新读取文档
)

// RedisTask 存放在 Kafka 里的消息体
type RedisTask struct {
	Type CommandType `json:"type"`

	// 场景 1: 普通命令 (如 HDEL key field)
	Command string        `json:"command,omitempty"`
	Args    []interface{} `json:"args,omitempty"`

	// 场景 2: Pipeline (一组命令)
	PipelineCmds []RedisCmd `json:"pipeline_cmds,omitempty"`

	// 场景 3: 设备移除，不能直接重放旧的 devices 字段，否则会覆盖期间的新写入
	AccountID   string `json:"account_id,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`

	// 元数据（用于追踪和重试控制）
	TraceID     string    `json:"trace_id,omitempty"`
	DeviceID    string    `json:"device_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	RetryCount  int       `json:"retry_count"`
	MaxRetries  int       `json:"max_retries"`
	OriginalErr string    `json:"original_err"`
	Source      string    `json:"source,omitempty"`
}

type RedisCmd struct {
	Command string        `json:"command"`
	Args    []interface{} `json:"args"`
}

// ==================== 构造器函数（Builder） ====================

// BuildDelTask 构造一个 DEL 任务
func BuildDelTask(key string) RedisTask {
	return RedisTask{
		Type:       CmdSimple,
		Command:    "del",
		Args:       []interface{}{key},
		Timestamp:  time.Now(),
		MaxRetries: 3,
	}
}

// BuildHSetTask 构造一个 HSET 任务
func BuildHSetTask(key, field string, value interface{}) RedisTask {
	return RedisTask{
		Type:       CmdSimple,
		Command:    "hset",
		Args:       []interface{}{key, field, value},
		Timestamp:  time.Now(),
		MaxRetries: 3,
	}
}

// BuildHDelTask 构造一个 HDEL 任务
func BuildHDelTask(key string, fields ...string) RedisTask {
	args := []interface{}{key}
	for _, f := range fields {
		args = append(args, f)
	}
	return RedisTask{
		Type:       CmdSimple,
		Command:    "hdel",
		Args:       args,
		Timestamp:  time.Now(),
		MaxRetries: 3,
	}
}

// BuildPipelineTask 构造一个 Pipeline 任务
func BuildPipelineTask(cmds []RedisCmd) RedisTask {
	return RedisTask{
		Type:         CmdPipeline,
		PipelineCmds: cmds,
		Timestamp:    time.Now(),
		MaxRetries:   3,
	}
}

// BuildRemoveDeviceTask 构造一个设备移除任务
func BuildRemoveDeviceTask(accountID, fingerprint string) RedisTask {
	return RedisTask{
		Type:        CmdRemoveDevice,
		AccountID:   accountID,
		Fingerprint: fingerprint,
		Timestamp:   time.Now(),
		MaxRetries:  5,
	}
}

// ==================== 链式方法 ====================

// WithContext 为任务添加上下文信息
func (t RedisTask) WithContext(ctx context.Context) RedisTask {
	if v := ctxmeta.TraceID(ctx); v != "" {
		t.TraceID = v
	}
	if v := ctxmeta.AccountID(ctx); v != "" && t.AccountID == "" {
		t.AccountID = v
	}
	if v := ctxmeta.DeviceID(ctx); v != "" {
		t.DeviceID = v
	}
	return t
}

// WithError 为任务添加错误信息
func (t RedisTask) WithError(err error) RedisTask {
	t.OriginalErr = err.Error()
	return t
}

// WithSource 为任务添加来源信息
func (t RedisTask) WithSource(source string) RedisTask {
	t.Source = source
	return t
}

// WithMaxRetries 设置最大重试次数
func (t RedisTask) WithMaxRetries(maxRetries int) RedisTask {
	t.MaxRetries = maxRetries
	return t
}
