package config

import "time"

// MySQLConfig MySQL 配置
// 说明：Replicas 不为空时启用 dbresolver 读写分离，写走 DSN，读随机落到副本。
type MySQLConfig struct {
	DSN             string        `json:"dsn" yaml:"dsn"`
	Replicas        []string      `json:"replicas" yaml:"replicas"`
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
	AutoMigrate     bool          `json:"autoMigrate" yaml:"autoMigrate"`
}

// DefaultMySQLConfig 返回本地开发的默认配置
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		DSN:             "root:root@tcp(mysql:3306)/edu?charset=utf8mb4&parseTime=True&loc=Local",
		MaxOpenConns:    50,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	}
}
