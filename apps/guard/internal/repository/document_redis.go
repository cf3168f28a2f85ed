package repository

import (
	"context"
	"errors"

	rediskey "EduServer/consts/redisKey"
	"EduServer/model"
	"EduServer/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisDocumentStore 账号安全文档存放在 hash 中，每个字段是一段 JSON。
// 每次写入在 MULTI 中递增版本号并 PUBLISH 变更通知，订阅方收到通知后重新读取整份文档。
type RedisDocumentStore struct {
	client *redis.Client
}

func NewRedisDocumentStore(client *redis.Client) *RedisDocumentStore {
	return &RedisDocumentStore{client: client}
}

func (s *RedisDocumentStore) GetDocument(ctx context.Context, accountID string) (*model.AccountSecurityState, error) {
	pipe := s.client.TxPipeline()
	all := pipe.HGetAll(ctx, rediskey.AccountSecurityKey(accountID))
	ver := pipe.Get(ctx, rediskey.AccountVersionKey(accountID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, WrapRedisError(err)
	}
	fields := all.Val()
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}
	version, _ := ver.Int64()
	return decodeDocument(accountID, fields, version)
}

func (s *RedisDocumentStore) SetDocument(ctx context.Context, accountID string, fields map[string]any, merge bool) error {
	enc, err := encodeFields(fields)
	if err != nil {
		return err
	}
	key := rediskey.AccountSecurityKey(accountID)
	values := make(map[string]interface{}, len(enc))
	for k, v := range enc {
		values[k] = v
	}

	pipe := s.client.TxPipeline()
	if !merge {
		pipe.Del(ctx, key)
	}
	if len(values) > 0 {
		pipe.HSet(ctx, key, values)
	}
	s.bump(ctx, pipe, accountID)
	if _, err := pipe.Exec(ctx); err != nil {
		return WrapRedisError(err)
	}
	return nil
}

func (s *RedisDocumentStore) DeleteFields(ctx context.Context, accountID string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, rediskey.AccountSecurityKey(accountID), fields...)
	s.bump(ctx, pipe, accountID)
	if _, err := pipe.Exec(ctx); err != nil {
		return WrapRedisError(err)
	}
	return nil
}

// bump 递增版本号并通知订阅方，与字段写入在同一个 MULTI 中
func (s *RedisDocumentStore) bump(ctx context.Context, pipe redis.Pipeliner, accountID string) {
	pipe.Incr(ctx, rediskey.AccountVersionKey(accountID))
	pipe.Publish(ctx, rediskey.AccountChangedChannel(accountID), "changed")
}

func (s *RedisDocumentStore) Subscribe(ctx context.Context, accountID string) (<-chan *model.AccountSecurityState, error) {
	pubsub := s.client.Subscribe(ctx, rediskey.AccountChangedChannel(accountID))
	// 等待订阅确认，之后的写入一定能收到通知
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, WrapRedisError(err)
	}

	out := make(chan *model.AccountSecurityState, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		feed := newSnapshotFeed(accountID, out, s.GetDocument)
		if !feed.emit(ctx) {
			return
		}
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				if !feed.emit(ctx) {
					return
				}
			}
		}
	}()
	return out, nil
}

// snapshotFeed 读取最新快照并按版本号去重后推送，两种存储实现共用
type snapshotFeed struct {
	accountID string
	out       chan<- *model.AccountSecurityState
	load      func(ctx context.Context, accountID string) (*model.AccountSecurityState, error)
	last      int64
}

func newSnapshotFeed(accountID string, out chan<- *model.AccountSecurityState, load func(context.Context, string) (*model.AccountSecurityState, error)) *snapshotFeed {
	return &snapshotFeed{accountID: accountID, out: out, load: load, last: -1}
}

// emit 返回 false 表示 ctx 已取消，订阅应结束
func (f *snapshotFeed) emit(ctx context.Context) bool {
	state, err := f.load(ctx, f.accountID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		if !errors.Is(err, ErrRecordNotFound) {
			logger.Warn(ctx, "读取账号安全文档失败，等待下一次通知",
				logger.String("account", f.accountID),
				logger.ErrorField("error", err),
			)
		}
		return true
	}
	if state.Version <= f.last {
		return true
	}
	f.last = state.Version
	select {
	case f.out <- state:
		return true
	case <-ctx.Done():
		return false
	}
}
