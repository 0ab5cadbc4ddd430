package mq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"wallet-guard/pkg/fanout"
	"wallet-guard/pkg/logger"
)

var ErrBrokerClosed = errors.New("mq: broker closed")

// MemoryBroker 进程内实现, 同时是 Producer 和 Consumer.
// 与 chrome.runtime 消息一致: 没有消费者时消息被丢弃, 不持久化.
type MemoryBroker struct {
	hub    *fanout.Hub[*Message]
	seq    atomic.Uint64
	closed atomic.Bool
	once   sync.Once
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{hub: fanout.New[*Message]()}
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}
	msg := &Message{
		ID:      strconv.FormatUint(b.seq.Add(1), 10),
		Topic:   topic,
		Key:     key,
		Payload: append([]byte(nil), payload...),
	}
	if n := b.hub.Publish(topic, msg); n == 0 {
		logger.Debug("[Memory MQ] 无消费者, 消息丢弃", zap.String("topic", topic))
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}
	unsubscribe := b.hub.Subscribe(topic, func(msg *Message) {
		if err := handler(msg); err != nil {
			logger.Warn("[Memory MQ] 消息处理失败", zap.String("topic", topic), zap.String("id", msg.ID), zap.Error(err))
		}
	})
	defer unsubscribe()

	logger.Info("[Memory MQ] 开始监听主题", zap.String("topic", topic))
	<-ctx.Done()
	return nil
}

// Ready 返回 topic 当前消费者数量, 用于启动时等待订阅就绪
func (b *MemoryBroker) Ready(topic string) int {
	return b.hub.Subscribers(topic)
}

func (b *MemoryBroker) Close() error {
	b.once.Do(func() {
		b.closed.Store(true)
		b.hub.Close()
	})
	return nil
}
