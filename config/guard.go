package config

import "time"

// GuardConfig 设备数限制与封禁升级的参数。
type GuardConfig struct {
	// PermanentThreshold 达到该封禁次数的那一次违规直接转为永久封禁
	PermanentThreshold int `json:"permanentThreshold" yaml:"permanentThreshold"`
	// TempBanDuration 临时封禁时长（自动升级与管理员手动封禁共用）
	TempBanDuration time.Duration `json:"tempBanDuration" yaml:"tempBanDuration"`
	// GracePeriod 登录后忽略"本设备不在列表中"的时间窗口，避免自踢
	GracePeriod time.Duration `json:"gracePeriod" yaml:"gracePeriod"`
	// AdminPruneAge 管理员账号新增设备时顺带清理超过该时间未活跃的设备
	AdminPruneAge time.Duration `json:"adminPruneAge" yaml:"adminPruneAge"`
	// MassLogoutBatchSize 批量强制下线时每批处理的账号数
	MassLogoutBatchSize int `json:"massLogoutBatchSize" yaml:"massLogoutBatchSize"`
	// CleanupRetryAttempts / CleanupRetryBackoff 设备移除失败时的有限重试
	CleanupRetryAttempts int           `json:"cleanupRetryAttempts" yaml:"cleanupRetryAttempts"`
	CleanupRetryBackoff  time.Duration `json:"cleanupRetryBackoff" yaml:"cleanupRetryBackoff"`
	// BanCacheTTL 进程内封禁视图缓存的存活时间
	BanCacheTTL  time.Duration `json:"banCacheTTL" yaml:"banCacheTTL"`
	BanCacheSize int           `json:"banCacheSize" yaml:"banCacheSize"`
}

// DefaultGuardConfig 返回默认参数
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		PermanentThreshold:   3,
		TempBanDuration:      30 * time.Minute,
		GracePeriod:          2 * time.Minute,
		AdminPruneAge:        30 * 24 * time.Hour,
		MassLogoutBatchSize:  50,
		CleanupRetryAttempts: 3,
		CleanupRetryBackoff:  500 * time.Millisecond,
		BanCacheTTL:          30 * time.Second,
		BanCacheSize:         10000,
	}
}
