package config

// KafkaConsumerConfig 消费者配置
type KafkaConsumerConfig struct {
	GroupID string `json:"groupId" yaml:"groupId"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers         []string            `json:"brokers" yaml:"brokers"`
	RedisRetryTopic string              `json:"redisRetryTopic" yaml:"redisRetryTopic"` // Redis 失败写入重试队列
	AuditTopic      string              `json:"auditTopic" yaml:"auditTopic"`           // 管理员操作审计流
	ConsumerConfig  KafkaConsumerConfig `json:"consumer" yaml:"consumer"`
}

// DefaultKafkaConfig 返回本地开发的默认配置
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:         []string{"kafka:9092"},
		RedisRetryTopic: "guard.redis.retry",
		AuditTopic:      "guard.admin.audit",
		ConsumerConfig: KafkaConsumerConfig{
			GroupID: "guard-redis-retry",
		},
	}
}
