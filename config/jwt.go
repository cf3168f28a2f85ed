package config

import "time"

// JWTConfig 访问令牌配置
type JWTConfig struct {
	Secret string        `json:"secret" yaml:"secret"`
	Issuer string        `json:"issuer" yaml:"issuer"`
	TTL    time.Duration `json:"ttl" yaml:"ttl"`
}

// DefaultJWTConfig 本地开发默认值，生产环境必须通过配置文件覆盖 Secret
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		Secret: "edu-guard-dev-secret",
		Issuer: "edu-guard",
		TTL:    7 * 24 * time.Hour,
	}
}
