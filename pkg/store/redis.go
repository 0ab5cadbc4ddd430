package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wallet-guard/pkg/fanout"
	"wallet-guard/pkg/logger"
)

const maxUpdateRetries = 16

// RedisStore 基于 Redis 的实现, 多进程共享.
// 写入通过 WATCH + MULTI 完成, SET/DEL 与 PUBLISH 在同一事务中提交,
// 因此所有实例观察到的变更顺序与写入顺序一致.
type RedisStore struct {
	client  *redis.Client
	channel string
	hub     *fanout.Hub[Change]

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// NewRedisStore channel 为变更广播使用的 Pub/Sub 频道
func NewRedisStore(client *redis.Client, channel string) *RedisStore {
	return &RedisStore{
		client:  client,
		channel: channel,
		hub:     fanout.New[Change](),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string, target any) error {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	return json.Unmarshal(val, target)
}

func (s *RedisStore) Set(ctx context.Context, key string, value any) error {
	return s.Update(ctx, key, func(json.RawMessage) (any, error) { return value, nil })
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.Update(ctx, key, func(current json.RawMessage) (any, error) {
		if current == nil {
			return nil, ErrSkipWrite
		}
		return nil, nil
	})
}

func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	txf := func(tx *redis.Tx) error {
		// 1. 读取当前值
		var old json.RawMessage
		val, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			old = val
		}

		// 2. 计算新值
		next, err := fn(old)
		if err != nil {
			return err
		}
		raw, err := encode(next)
		if err != nil {
			return err
		}
		if bytes.Equal(old, raw) {
			return nil
		}

		change, err := json.Marshal(Change{Key: key, Old: old, New: raw})
		if err != nil {
			return err
		}

		// 3. 提交: 写入与广播在同一个事务中
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if raw == nil {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, []byte(raw), 0)
			}
			pipe.Publish(ctx, s.channel, change)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			// 乐观锁冲突, 重试
			continue
		}
		if errors.Is(err, ErrSkipWrite) {
			return nil
		}
		return err
	}
	return fmt.Errorf("redis update %s: too many conflicts", key)
}

func (s *RedisStore) Subscribe(key string, fn func(Change)) (func(), error) {
	if err := s.ensureListening(); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(key, fn), nil
}

// ensureListening 懒启动唯一的 Pub/Sub 连接, 并等待订阅确认, 避免丢失紧随其后的写入
func (s *RedisStore) ensureListening() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubsub != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps := s.client.Subscribe(ctx, s.channel)
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return fmt.Errorf("redis subscribe %s: %w", s.channel, err)
	}
	s.pubsub = ps
	s.cancel = cancel

	go s.listen(ctx, ps)
	logger.Info("[Store] 已订阅 Redis 变更频道", zap.String("channel", s.channel))
	return nil
}

func (s *RedisStore) listen(ctx context.Context, ps *redis.PubSub) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				logger.Warn("[Store] 无法解析变更消息", zap.Error(err))
				continue
			}
			s.hub.Publish(change.Key, change)
		}
	}
}

func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub.Close()
	if s.pubsub == nil {
		return nil
	}
	s.cancel()
	err := s.pubsub.Close()
	s.pubsub = nil
	return err
}
