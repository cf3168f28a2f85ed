package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config guard 服务的完整配置
type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`
	Logger LoggerConfig `json:"logger" yaml:"logger"`
	Redis  RedisConfig  `json:"redis" yaml:"redis"`
	MySQL  MySQLConfig  `json:"mysql" yaml:"mysql"`
	Kafka  KafkaConfig  `json:"kafka" yaml:"kafka"`
	Async  AsyncConfig  `json:"async" yaml:"async"`
	JWT    JWTConfig    `json:"jwt" yaml:"jwt"`
	Guard  GuardConfig  `json:"guard" yaml:"guard"`
	Geo    GeoConfig    `json:"geo" yaml:"geo"`
	Mail   MailConfig   `json:"mail" yaml:"mail"`
}

// Default 返回全部默认配置
func Default() Config {
	return Config{
		Server: DefaultServerConfig(),
		Logger: DefaultLoggerConfig(),
		Redis:  DefaultRedisConfig(),
		MySQL:  DefaultMySQLConfig(),
		Kafka:  DefaultKafkaConfig(),
		Async:  DefaultAsyncConfig(),
		JWT:    DefaultJWTConfig(),
		Guard:  DefaultGuardConfig(),
		Geo:    DefaultGeoConfig(),
		Mail:   DefaultMailConfig(),
	}
}

// Load 在默认配置上叠加 yaml 文件内容。
// path 为空时直接返回默认配置；文件中未出现的字段保持默认值。
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
