package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wallet-guard/pkg/logger"
)

// RedisBus 基于 Redis Pub/Sub, 页面与 relay 运行在不同进程时使用
type RedisBus struct {
	client *redis.Client
	prefix string
	closed atomic.Bool

	mu   sync.Mutex
	subs map[*redis.PubSub]context.CancelFunc
}

func NewRedisBus(client *redis.Client, prefix string) *RedisBus {
	return &RedisBus{
		client: client,
		prefix: prefix,
		subs:   make(map[*redis.PubSub]context.CancelFunc),
	}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := b.client.Publish(ctx, b.prefix+topic, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(topic string, handler func(data []byte)) (func(), error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps := b.client.Subscribe(ctx, b.prefix+topic)
	// 等待订阅确认, 之后的 Publish 一定能收到
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	b.mu.Lock()
	b.subs[ps] = cancel
	b.mu.Unlock()

	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ps)
			b.mu.Unlock()
			cancel()
			if err := ps.Close(); err != nil {
				logger.Debug("[Bus] 关闭订阅失败", zap.String("topic", topic), zap.Error(err))
			}
		})
	}, nil
}

func (b *RedisBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ps, cancel := range b.subs {
		cancel()
		_ = ps.Close()
		delete(b.subs, ps)
	}
	return nil
}
