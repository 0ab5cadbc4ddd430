// Package mq 是 content script (relay) 与 background (coordinator) 之间的运行时消息通道.
package mq

import "context"

// Message 代表一条运行时消息
type Message struct {
	ID       string            // 消息ID (Redis Stream ID / Kafka offset)
	Topic    string            // 主题, 例如 "guard.runtime"
	Key      string            // 分区键, 使用页面 hostname 保证同一页面的消息有序
	Payload  []byte            // model.Envelope (JSON)
	Metadata map[string]string // 元数据
}

// Producer 生产者接口
type Producer interface {
	// Publish 发送消息
	// key: 分区键, 传空字符串则随机分区.
	Publish(ctx context.Context, topic string, key string, payload []byte) error
}

// Consumer 消费者接口
type Consumer interface {
	// Subscribe 订阅主题, 阻塞直到 ctx 取消
	// handler: 返回 error 时消息不确认 (Redis) 或仅记录 (Kafka / 内存)
	Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error

	// Close 关闭消费者
	Close() error
}
