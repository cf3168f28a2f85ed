package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer 对 kafka.Writer 的轻量封装，一个 Producer 绑定一个 topic
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer 创建生产者
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 20 * time.Millisecond,
			WriteTimeout: 3 * time.Second,
		},
	}
}

// Topic 返回绑定的 topic
func (p *Producer) Topic() string { return p.topic }

// SendJSON 序列化后写入，key 决定分区（同一账号的消息保持有序）
func (p *Producer) SendJSON(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}

// NewReader 创建消费组 reader
func NewReader(brokers []string, topic, groupID string, l kafka.Logger, el kafka.Logger) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		Logger:         l,
		ErrorLogger:    el,
	})
}

// ZapLoggerAdapter 把 zap 适配为 kafka.Logger
type ZapLoggerAdapter struct {
	l     *zap.Logger
	error bool
}

// NewZapLoggerAdapter 普通日志走 debug 级别，避免 kafka-go 的心跳日志刷屏
func NewZapLoggerAdapter(l *zap.Logger) *ZapLoggerAdapter {
	return &ZapLoggerAdapter{l: l}
}

// NewZapErrorLoggerAdapter 错误日志走 error 级别
func NewZapErrorLoggerAdapter(l *zap.Logger) *ZapLoggerAdapter {
	return &ZapLoggerAdapter{l: l, error: true}
}

func (a *ZapLoggerAdapter) Printf(format string, args ...interface{}) {
	if a.error {
		a.l.Sugar().Errorf(format, args...)
		return
	}
	a.l.Sugar().Debugf(format, args...)
}
