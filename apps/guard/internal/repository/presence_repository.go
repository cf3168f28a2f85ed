package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	rediskey "EduServer/consts/redisKey"
	"EduServer/model"
	"EduServer/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// redisPresenceRepository 在线状态与账号文档分开存放，心跳不会触发全账号的变更通知
type redisPresenceRepository struct {
	client *redis.Client
}

func NewRedisPresenceRepository(client *redis.Client) PresenceRepository {
	return &redisPresenceRepository{client: client}
}

func (r *redisPresenceRepository) SetPresence(ctx context.Context, accountID, fingerprint string, online bool, at time.Time) error {
	b, err := json.Marshal(model.DevicePresence{Online: online, ActiveAt: at.Unix()})
	if err != nil {
		return err
	}
	key := rediskey.PresenceKey(accountID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fingerprint, string(b))
	pipe.Expire(ctx, key, rediskey.PresenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return WrapRedisError(err)
	}
	return nil
}

func (r *redisPresenceRepository) GetPresence(ctx context.Context, accountID string) (map[string]model.DevicePresence, error) {
	all, err := r.client.HGetAll(ctx, rediskey.PresenceKey(accountID)).Result()
	if err != nil {
		return nil, WrapRedisError(err)
	}
	out := make(map[string]model.DevicePresence, len(all))
	for fp, raw := range all {
		var p model.DevicePresence
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			logger.Warn(ctx, "在线状态数据损坏，忽略",
				logger.String("fingerprint", fp),
				logger.ErrorField("error", err),
			)
			continue
		}
		out[fp] = p
	}
	return out, nil
}

func (r *redisPresenceRepository) RemovePresence(ctx context.Context, accountID string, fingerprints ...string) error {
	key := rediskey.PresenceKey(accountID)
	var err error
	if len(fingerprints) == 0 {
		err = r.client.Del(ctx, key).Err()
	} else {
		err = r.client.HDel(ctx, key, fingerprints...).Err()
	}
	return WrapRedisError(err)
}

// memoryPresenceRepository Redis 不可用时的降级实现
type memoryPresenceRepository struct {
	mu   sync.RWMutex
	data map[string]map[string]model.DevicePresence
}

func NewMemoryPresenceRepository() PresenceRepository {
	return &memoryPresenceRepository{data: make(map[string]map[string]model.DevicePresence)}
}

func (r *memoryPresenceRepository) SetPresence(_ context.Context, accountID, fingerprint string, online bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data[accountID] == nil {
		r.data[accountID] = make(map[string]model.DevicePresence)
	}
	r.data[accountID][fingerprint] = model.DevicePresence{Online: online, ActiveAt: at.Unix()}
	return nil
}

func (r *memoryPresenceRepository) GetPresence(_ context.Context, accountID string) (map[string]model.DevicePresence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.DevicePresence, len(r.data[accountID]))
	for k, v := range r.data[accountID] {
		out[k] = v
	}
	return out, nil
}

func (r *memoryPresenceRepository) RemovePresence(_ context.Context, accountID string, fingerprints ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(fingerprints) == 0 {
		delete(r.data, accountID)
		return nil
	}
	for _, fp := range fingerprints {
		delete(r.data[accountID], fp)
	}
	return nil
}
