// Package fanout 提供按 topic 广播的订阅中心.
//
// 每个订阅者拥有一个无界的有序邮箱和独立的投递 goroutine:
// 发布方永不阻塞, 同一订阅者按发布顺序收到消息, 慢订阅者不会拖住其他订阅者.
package fanout

import (
	"sync"
	"sync/atomic"
)

// Hub 是一个 topic -> 订阅者 的广播中心, 零值不可用, 使用 New 创建
type Hub[T any] struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*mailbox[T]
	nextID atomic.Uint64
	closed bool
}

func New[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[string]map[uint64]*mailbox[T])}
}

// Subscribe 注册 handler, 返回取消订阅函数 (可重复调用)
func (h *Hub[T]) Subscribe(topic string, handler func(T)) func() {
	id := h.nextID.Add(1)
	mb := newMailbox(handler)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		mb.stop()
		return func() {}
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[uint64]*mailbox[T])
	}
	h.subs[topic][id] = mb
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if set := h.subs[topic]; set != nil {
				delete(set, id)
				if len(set) == 0 {
					delete(h.subs, topic)
				}
			}
			h.mu.Unlock()
			mb.stop()
		})
	}
}

// Publish 把 value 放入 topic 所有订阅者的邮箱, 返回接收者数量
func (h *Hub[T]) Publish(topic string, value T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.subs[topic]
	for _, mb := range set {
		mb.push(value)
	}
	return len(set)
}

// Subscribers 返回 topic 当前订阅者数量
func (h *Hub[T]) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Close 停止所有投递 goroutine, 未投递的消息被丢弃
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, set := range h.subs {
		for _, mb := range set {
			mb.stop()
		}
		delete(h.subs, topic)
	}
}

type mailbox[T any] struct {
	mu      sync.Mutex
	queue   []T
	wake    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
	handler func(T)
}

func newMailbox[T any](handler func(T)) *mailbox[T] {
	mb := &mailbox[T]{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		handler: handler,
	}
	go mb.run()
	return mb
}

func (m *mailbox[T]) push(v T) {
	if m.stopped.Load() {
		return
	}
	m.mu.Lock()
	m.queue = append(m.queue, v)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) stop() {
	if m.stopped.CompareAndSwap(false, true) {
		close(m.done)
	}
}

func (m *mailbox[T]) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		}

		for {
			m.mu.Lock()
			if len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			batch := m.queue
			m.queue = nil
			m.mu.Unlock()

			for _, v := range batch {
				if m.stopped.Load() {
					return
				}
				m.handler(v)
			}
		}
	}
}
