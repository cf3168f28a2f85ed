package rediskey

import (
	"fmt"
	"time"
)

// ==================== TTL 常量 ====================

const (
	// PresenceTTL 设备在线状态缓存 TTL
	PresenceTTL = 45 * 24 * time.Hour
)

// ==================== Key 构造函数 ====================

// AccountSecurityKey 账号安全文档（hash，每个字段是一段 JSON）: guard:account:{account_id}
func AccountSecurityKey(accountID string) string {
	return fmt.Sprintf("guard:account:%s", accountID)
}

// AccountVersionKey 账号安全文档版本号（每次写入 +1）: guard:account:version:{account_id}
func AccountVersionKey(accountID string) string {
	return fmt.Sprintf("guard:account:version:%s", accountID)
}

// AccountChangedChannel 账号文档变更通知频道: guard:account:changed:{account_id}
func AccountChangedChannel(accountID string) string {
	return fmt.Sprintf("guard:account:changed:%s", accountID)
}

// PresenceKey 设备在线状态: guard:presence:{account_id}，field=fingerprint
func PresenceKey(accountID string) string {
	return fmt.Sprintf("guard:presence:%s", accountID)
}

// LoginRateLimitKey 登录接口 IP 令牌桶: guard:rate:login:{ip}
func LoginRateLimitKey(ip string) string {
	return fmt.Sprintf("guard:rate:login:%s", ip)
}
