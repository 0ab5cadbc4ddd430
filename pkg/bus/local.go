package bus

import (
	"context"
	"sync/atomic"

	"wallet-guard/pkg/fanout"
)

// LocalBus 进程内实现
type LocalBus struct {
	hub    *fanout.Hub[[]byte]
	closed atomic.Bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{hub: fanout.New[[]byte]()}
}

func (b *LocalBus) Publish(ctx context.Context, topic string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	// 调用方可能复用 data, 复制一份后再投递; 订阅者之间共享该副本, 只读
	cp := make([]byte, len(data))
	copy(cp, data)
	b.hub.Publish(topic, cp)
	return nil
}

func (b *LocalBus) Subscribe(topic string, handler func(data []byte)) (func(), error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	return b.hub.Subscribe(topic, handler), nil
}

func (b *LocalBus) Close() error {
	if b.closed.CompareAndSwap(false, true) {
		b.hub.Close()
	}
	return nil
}
