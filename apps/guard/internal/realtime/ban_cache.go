package realtime

import (
	"time"

	"EduServer/apps/guard/internal/service"
	"EduServer/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// BanCache 进程内账号安全状态缓存，供状态查询接口使用。
// 缓存的是账号级快照，视图按调用方指纹和当前时间现算。
// 管理员解封写入 clearBanCacheAt 后，收到通知的会话会清掉对应条目。
type BanCache struct {
	lru *expirable.LRU[string, *model.AccountSecurityState]
}

func NewBanCache(size int, ttl time.Duration) *BanCache {
	if size <= 0 {
		size = 1024
	}
	return &BanCache{lru: expirable.NewLRU[string, *model.AccountSecurityState](size, nil, ttl)}
}

func (c *BanCache) Get(accountID string) (*model.AccountSecurityState, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(accountID)
}

// View 命中时按 fingerprint 计算视图。封禁已过期的快照视为未命中，交给读取路径做被动清理。
func (c *BanCache) View(accountID, fingerprint string, now time.Time) (service.SecurityView, bool) {
	state, ok := c.Get(accountID)
	if !ok || state == nil || state.BanExpired(now) {
		return service.SecurityView{}, false
	}
	return service.BuildView(state, fingerprint, now), true
}

// Set 保存副本，调用方之后修改快照不影响缓存
func (c *BanCache) Set(accountID string, state *model.AccountSecurityState) {
	if c == nil || state == nil {
		return
	}
	c.lru.Add(accountID, state.Clone())
}

func (c *BanCache) Purge(accountID string) {
	if c == nil {
		return
	}
	c.lru.Remove(accountID)
}

func (c *BanCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
