package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy 有限次数的指数退避重试策略
type Policy struct {
	MaxAttempts int           // 总尝试次数（包含第一次）
	Initial     time.Duration // 第一次重试前的等待
	Max         time.Duration // 单次等待上限
}

// DefaultPolicy 3 次尝试，500ms 起步
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Initial: 500 * time.Millisecond, Max: 5 * time.Second}
}

// Permanent 包装不应重试的错误，Do 会立即返回其内部错误
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do 执行 op，失败按策略重试；ctx 取消时立即停止。
// onRetry 在每次失败且还会继续重试时调用，可为 nil。
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	if p.Max > 0 {
		eb.MaxInterval = p.Max
	}
	eb.RandomizationFactor = 0.2
	eb.MaxElapsedTime = 0
	eb.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return op(ctx)
	}, b, func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err)
		}
	})
}
