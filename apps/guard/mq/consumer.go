package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// RedisRunner 执行 Redis 命令，*redis.Client 满足该接口
type RedisRunner interface {
	Do(ctx context.Context, args ...interface{}) *redis.Cmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// DeviceRemover 重新读取账号文档后移除设备
type DeviceRemover interface {
	RemoveDevice(ctx context.Context, accountID, fingerprint string) error
}

// MessageReader kafka.Reader 的子集
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RetryConsumer 消费重试队列：执行成功或超过最大次数后提交 offset，失败则重新投递
type RetryConsumer struct {
	reader  MessageReader
	runner  RedisRunner
	remover DeviceRemover
	sender  TaskSender
	backoff time.Duration
}

// NewRetryConsumer remover 可以为 nil（此时设备移除任务直接丢弃并记录日志）
func NewRetryConsumer(reader MessageReader, runner RedisRunner, remover DeviceRemover, sender TaskSender) *RetryConsumer {
	return &RetryConsumer{
		reader:  reader,
		runner:  runner,
		remover: remover,
		sender:  sender,
		backoff: time.Second,
	}
}

// Run 阻塞直到 ctx 取消
func (c *RetryConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error(ctx, "读取重试队列失败", logger.ErrorField("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		c.Handle(ctx, msg.Value)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "提交重试队列 offset 失败", logger.ErrorField("error", err))
		}
	}
}

// Handle 处理一条消息，不返回错误：失败的任务会带着 RetryCount+1 重新投递
func (c *RetryConsumer) Handle(ctx context.Context, payload []byte) {
	var task RedisTask
	if err := json.Unmarshal(payload, &task); err != nil {
		logger.Error(ctx, "重试任务反序列化失败，丢弃", logger.ErrorField("error", err))
		return
	}
	if task.TraceID != "" {
		ctx = ctxmeta.WithTraceID(ctx, task.TraceID)
	}
	if task.AccountID != "" {
		ctx = ctxmeta.WithAccountID(ctx, task.AccountID)
	}

	err := c.execute(ctx, task)
	if err == nil {
		logger.Info(ctx, "重试任务执行成功",
			logger.String("task_type", string(task.Type)),
			logger.Int("retry_count", task.RetryCount),
		)
		return
	}

	task.RetryCount++
	task.OriginalErr = err.Error()
	if task.RetryCount >= task.MaxRetries {
		logger.Error(ctx, "重试任务超过最大次数，放弃",
			logger.String("task_type", string(task.Type)),
			logger.Int("retry_count", task.RetryCount),
			logger.ErrorField("error", err),
		)
		return
	}
	if sendErr := c.sender.SendJSON(ctx, task.AccountID, task); sendErr != nil {
		logger.Error(ctx, "重试任务重新投递失败",
			logger.ErrorField("error", sendErr),
			logger.ErrorField("original_error", err),
		)
	}
}

func (c *RetryConsumer) execute(ctx context.Context, task RedisTask) error {
	switch task.Type {
	case CmdSimple:
		if task.Command == "" {
			return errors.New("empty command")
		}
		args := append([]interface{}{task.Command}, task.Args...)
		return c.runner.Do(ctx, args...).Err()
	case CmdPipeline:
		_, err := c.runner.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, cmd := range task.PipelineCmds {
				pipe.Do(ctx, append([]interface{}{cmd.Command}, cmd.Args...)...)
			}
			return nil
		})
		return err
	case CmdRemoveDevice:
		if c.remover == nil {
			return errors.New("device remover not configured")
		}
		return c.remover.RemoveDevice(ctx, task.AccountID, task.Fingerprint)
	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
}
