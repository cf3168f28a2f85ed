package async

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"EduServer/config"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/logger"

	"github.com/panjf2000/ants/v2"
)

var (
	global   *ants.Pool
	globalMu sync.Mutex
	cfgCopy  config.AsyncConfig
)

// ContextPropagator 从父 ctx 提取需要透传的字段，默认只保留身份与 trace 信息。
// 父 ctx 往往是 HTTP 请求或 ws 连接的 ctx，任务必须在它取消之后继续执行。
var ContextPropagator = ctxmeta.Detach

// SetContextPropagator 设置上下文传递器（建议在 main 初始化时调用）。
func SetContextPropagator(fn func(context.Context) context.Context) {
	ContextPropagator = fn
}

// ErrNotInitialized 表示协程池尚未初始化。
var ErrNotInitialized = errors.New("async pool not initialized")

// Pool 返回全局协程池（未初始化时为 nil）。
func Pool() *ants.Pool { return global }

// Build 根据配置创建协程池实例。
func Build(cfg config.AsyncConfig) (*ants.Pool, error) {
	opts := []ants.Option{
		ants.WithMaxBlockingTasks(cfg.MaxBlockingTasks),
		ants.WithExpiryDuration(cfg.ExpiryDuration),
		ants.WithPanicHandler(func(p any) {
			logger.Error(context.Background(), "async task panic",
				logger.Any("panic", p),
				logger.String("stack", string(debug.Stack())),
			)
		}),
	}
	if cfg.Nonblocking {
		opts = append(opts, ants.WithNonblocking(true))
	}
	return ants.NewPool(cfg.PoolSize, opts...)
}

// Init 初始化全局协程池（仅需在进程启动时调用一次）。
func Init(cfg config.AsyncConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		return nil
	}

	p, err := Build(cfg)
	if err != nil {
		return err
	}

	global = p
	cfgCopy = cfg
	return nil
}

// Submit 将任务投递到全局协程池。
func Submit(task func()) error {
	if global == nil {
		return ErrNotInitialized
	}
	return global.Submit(task)
}

// Release 优雅释放协程池资源（等待任务执行完）。
func Release() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global == nil {
		return nil
	}

	var err error
	if cfgCopy.ReleaseTimeout > 0 {
		err = global.ReleaseTimeout(cfgCopy.ReleaseTimeout)
	} else {
		global.Release()
	}
	global = nil
	return err
}

// RunSafe 在协程池中执行带超时、带 panic 恢复的任务。
// 池子未初始化时（单元测试、工具命令）退化为独立 goroutine，保证 fire-and-forget 语义不丢任务。
func RunSafe(ctx context.Context, task func(ctx context.Context), timeout time.Duration) {
	if task == nil {
		return
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	baseCtx := context.Background()
	if ContextPropagator != nil && ctx != nil {
		baseCtx = ContextPropagator(ctx)
	}

	runCtx, cancel := context.WithTimeout(baseCtx, timeout)

	wrap := func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logger.Error(runCtx, "async task panic",
					logger.Any("panic", r),
					logger.String("stack", string(debug.Stack())),
				)
			}
		}()

		task(runCtx)

		if runCtx.Err() == context.DeadlineExceeded {
			logger.Warn(runCtx, "async task timeout",
				logger.Duration("timeout", timeout),
			)
		}
	}

	err := Submit(wrap)
	if errors.Is(err, ErrNotInitialized) {
		go wrap()
		return
	}
	if err != nil {
		cancel()
		logger.Error(baseCtx, "async submit failed",
			logger.ErrorField("error", err),
			logger.Duration("timeout", timeout),
		)
	}
}

// RunAll 在协程池中并发执行 tasks 并等待全部完成，任务沿用调用方 ctx。
// 池子未初始化时退化为独立 goroutine；投递失败（非阻塞模式池满）的任务在当前 goroutine 执行，保证不会漏等。
func RunAll(ctx context.Context, tasks ...func(ctx context.Context)) {
	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		if task == nil {
			continue
		}
		wg.Add(1)
		wrap := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "async task panic",
						logger.Any("panic", r),
						logger.String("stack", string(debug.Stack())),
					)
				}
			}()
			task(ctx)
		}

		err := Submit(wrap)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotInitialized):
			go wrap()
		default:
			logger.Warn(ctx, "async submit failed, run inline", logger.ErrorField("error", err))
			wrap()
		}
	}
	wg.Wait()
}
