package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"wallet-guard/pkg/fanout"
)

// MemoryStore 进程内实现, 值以 JSON 保存以保持与 Redis 实现一致的拷贝语义
type MemoryStore struct {
	mu     sync.Mutex // 串行化写入, 保证变更通知与写入顺序一致
	c      *gocache.Cache
	hub    *fanout.Hub[Change]
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		c:   gocache.New(gocache.NoExpiration, 0),
		hub: fanout.New[Change](),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string, target any) error {
	raw, ok := m.load(key)
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, target)
}

func (m *MemoryStore) Set(ctx context.Context, key string, value any) error {
	return m.Update(ctx, key, func(json.RawMessage) (any, error) { return value, nil })
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	return m.Update(ctx, key, func(current json.RawMessage) (any, error) {
		if current == nil {
			return nil, ErrSkipWrite
		}
		return nil, nil
	})
}

func (m *MemoryStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	old, _ := m.load(key)
	next, err := fn(old)
	if errors.Is(err, ErrSkipWrite) {
		return nil
	}
	if err != nil {
		return err
	}

	raw, err := encode(next)
	if err != nil {
		return err
	}

	if raw == nil {
		m.c.Delete(key)
	} else {
		m.c.Set(key, []byte(raw), gocache.NoExpiration)
	}

	// 值未变化不通知
	if bytes.Equal(old, raw) {
		return nil
	}
	m.hub.Publish(key, Change{Key: key, Old: old, New: raw})
	return nil
}

func (m *MemoryStore) Subscribe(key string, fn func(Change)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.hub.Subscribe(key, fn), nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.hub.Close()
	return nil
}

func (m *MemoryStore) load(key string) (json.RawMessage, bool) {
	val, found := m.c.Get(key)
	if !found {
		return nil, false
	}
	b, ok := val.([]byte)
	if !ok {
		return nil, false
	}
	return json.RawMessage(b), true
}
