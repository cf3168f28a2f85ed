package config

import "time"

// GeoProviderConfig 单个 IP 定位服务
// URL 中的 {ip} 会被替换为客户端 IP；Format 决定响应解析方式（ipapi/ipwho/ipinfo）。
type GeoProviderConfig struct {
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url" yaml:"url"`
	Format string `json:"format" yaml:"format"`
}

// GeoConfig IP 定位配置
type GeoConfig struct {
	Enabled   bool                `json:"enabled" yaml:"enabled"`
	Providers []GeoProviderConfig `json:"providers" yaml:"providers"`
	Timeout   time.Duration       `json:"timeout" yaml:"timeout"` // 每个 provider 的超时
	CacheSize int                 `json:"cacheSize" yaml:"cacheSize"`
	CacheTTL  time.Duration       `json:"cacheTTL" yaml:"cacheTTL"`
}

// DefaultGeoConfig 默认按顺序尝试三个 provider，每个 8 秒超时
func DefaultGeoConfig() GeoConfig {
	return GeoConfig{
		Enabled: true,
		Providers: []GeoProviderConfig{
			{Name: "ipapi", URL: "https://ipapi.co/{ip}/json/", Format: "ipapi"},
			{Name: "ipwho", URL: "https://ipwho.is/{ip}", Format: "ipwho"},
			{Name: "ipinfo", URL: "https://ipinfo.io/{ip}/json", Format: "ipinfo"},
		},
		Timeout:   8 * time.Second,
		CacheSize: 4096,
		CacheTTL:  6 * time.Hour,
	}
}
