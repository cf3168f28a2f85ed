package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"EduServer/consts"
	rediskey "EduServer/consts/redisKey"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// tokenBucketScript 原子地补充令牌并尝试消费
//
//	KEYS[1]: 限流 key
//	ARGV[1]: 当前时间戳 (毫秒)
//	ARGV[2]: 令牌桶容量
//	ARGV[3]: 每秒产生的令牌数
//	ARGV[4]: 每次请求消耗的令牌数
//
// 返回 1 允许，0 拒绝
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local info = redis.call('HMGET', key, 'tokens', 'last_time')
local current_tokens = tonumber(info[1])
local last_time = tonumber(info[2])

if current_tokens == nil then
    current_tokens = capacity
end
if last_time == nil then
    last_time = now
end

local time_diff = math.max(0, now - last_time)
local new_tokens = math.floor((time_diff * rate) / 1000)

if new_tokens > 0 then
    current_tokens = math.min(capacity, current_tokens + new_tokens)
    last_time = now
end

local allowed = 0
if current_tokens >= requested then
    current_tokens = current_tokens - requested
    allowed = 1
end

redis.call('HMSET', key, 'tokens', current_tokens, 'last_time', last_time)

local fill_time = math.ceil(capacity / rate)
local ttl = math.max(60, fill_time * 2)
redis.call('EXPIRE', key, ttl)

return allowed
`)

const (
	redisLimitTimeout = 50 * time.Millisecond
	localLimiterSize  = 10000
	localLimiterTTL   = 10 * time.Minute
)

// RateLimiter 优先使用 Redis 令牌桶，多实例共享额度。
// Redis 不可用或超时时退回进程内 x/time/rate 令牌桶，不直接放行。
type RateLimiter struct {
	mu     sync.RWMutex
	client redis.Scripter
	rate   float64
	burst  int
	local  *expirable.LRU[string, *rate.Limiter]
	now    func() time.Time
}

// NewRateLimiter client 可以为 nil，此时只用本地令牌桶
func NewRateLimiter(client redis.Scripter, perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		client: client,
		rate:   perSecond,
		burst:  burst,
		local:  expirable.NewLRU[string, *rate.Limiter](localLimiterSize, nil, localLimiterTTL),
		now:    time.Now,
	}
}

// SetClient Redis 恢复后可以重新挂上
func (r *RateLimiter) SetClient(client redis.Scripter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.client = client
}

func (r *RateLimiter) Allow(ctx context.Context, key string) bool {
	r.mu.RLock()
	client := r.client
	r.mu.RUnlock()

	if client != nil {
		redisCtx, cancel := context.WithTimeout(ctx, redisLimitTimeout)
		defer cancel()

		res, err := tokenBucketScript.Run(redisCtx, client, []string{key}, r.now().UnixMilli(), r.burst, r.rate, 1).Int64()
		if err == nil {
			return res == 1
		}
		logger.Warn(ctx, "Redis 限流检查失败，降级为本地令牌桶",
			logger.String("key", key),
			logger.ErrorField("error", err),
		)
	}
	return r.localLimiter(key).AllowN(r.now(), 1)
}

func (r *RateLimiter) localLimiter(key string) *rate.Limiter {
	if l, ok := r.local.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(r.rate), r.burst)
	r.local.Add(key, l)
	return l
}

// LoginRateLimitMiddleware 按 IP 限制登录/注册请求
func LoginRateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := ClientIPFromGinContext(c)
		if ip == "" {
			ip = GetClientIP(c)
		}
		if ip == "" || limiter == nil {
			c.Next()
			return
		}

		ctx := ctxmeta.FromGin(c)
		if !limiter.Allow(ctx, rediskey.LoginRateLimitKey(ip)) {
			logger.Warn(ctx, "登录请求被限流",
				logger.String("ip", ip),
				logger.String("path", c.Request.URL.Path),
			)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    consts.CodeTooManyRequests,
				"message": consts.GetMessage(consts.CodeTooManyRequests),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
