package mq

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"wallet-guard/pkg/logger"
)

// KafkaConsumer 实现 Consumer 接口
type KafkaConsumer struct {
	brokers []string
	groupID string

	mu      sync.Mutex
	readers []*kafka.Reader
}

// NewKafkaConsumer 创建 Kafka 消费者
func NewKafkaConsumer(brokers []string, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		brokers: brokers,
		groupID: groupID,
	}
}

// Subscribe 订阅 Kafka 主题, 阻塞直到 ctx 取消
func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	// StartOffset: LastOffset, 新的消费组只处理之后的请求
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.brokers,
		GroupID:     c.groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
	c.mu.Lock()
	c.readers = append(c.readers, reader)
	c.mu.Unlock()

	logger.Info("[Kafka MQ] 开始监听主题", zap.String("topic", topic), zap.String("group", c.groupID))

	for {
		// 1. 读取消息 (阻塞直到有消息)
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("[Kafka MQ] 读取消息错误", zap.Error(err))
			time.Sleep(1 * time.Second)
			continue
		}

		msg := &Message{
			ID:      strconv.Itoa(m.Partition) + "-" + strconv.FormatInt(m.Offset, 10),
			Topic:   topic,
			Key:     string(m.Key),
			Payload: m.Value,
		}

		// 2. 调用业务处理函数
		// Kafka 不支持单条 Nack, 失败的消息记录后照常提交, 由 relay 侧超时兜底
		if err := handler(msg); err != nil {
			logger.Warn("[Kafka MQ] 业务处理失败", zap.String("id", msg.ID), zap.Error(err))
		}

		// 3. 手动提交 Offset
		if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			logger.Warn("[Kafka MQ] 提交 Offset 失败", zap.Error(err))
		}
	}
}

// Close 关闭全部 reader
func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, r := range c.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.readers = nil
	return firstErr
}
