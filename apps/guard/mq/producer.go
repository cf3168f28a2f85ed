package mq

import (
	"context"
	"errors"
	"sync"
)

// ErrProducerNotReady 重试队列未初始化（本地开发没有 Kafka 时的常见情况）
var ErrProducerNotReady = errors.New("redis retry producer not initialized")

// TaskSender 发送重试任务
type TaskSender interface {
	SendJSON(ctx context.Context, key string, value any) error
}

var (
	retryMu       sync.RWMutex
	retryProducer TaskSender
)

// InitRetryProducer 设置重试队列生产者，进程启动时调用一次
func InitRetryProducer(p TaskSender) {
	retryMu.Lock()
	defer retryMu.Unlock()
	retryProducer = p
}

// SendRedisTask 写入重试队列，按账号分区保证同一账号的任务有序
func SendRedisTask(ctx context.Context, task RedisTask) error {
	retryMu.RLock()
	p := retryProducer
	retryMu.RUnlock()
	if p == nil {
		return ErrProducerNotReady
	}
	key := task.AccountID
	if key == "" && len(task.Args) > 0 {
		if k, ok := task.Args[0].(string); ok {
			key = k
		}
	}
	return p.SendJSON(ctx, key, task)
}
