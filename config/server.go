package config

import "time"

// ServerConfig HTTP / gRPC 监听配置
type ServerConfig struct {
	Addr              string        `json:"addr" yaml:"addr"`
	GRPCAddr          string        `json:"grpcAddr" yaml:"grpcAddr"` // 仅暴露 grpc health，供探针使用
	ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
	ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
	IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
	GinMode           string        `json:"ginMode" yaml:"ginMode"`
	// LoginRate 每个 IP 每秒允许的登录请求数，LoginBurst 为令牌桶容量
	LoginRate  float64 `json:"loginRate" yaml:"loginRate"`
	LoginBurst int     `json:"loginBurst" yaml:"loginBurst"`
}

// DefaultServerConfig 返回默认监听配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:              ":8082",
		GRPCAddr:          ":9092",
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		GinMode:           "release",
		LoginRate:         2,
		LoginBurst:        10,
	}
}
