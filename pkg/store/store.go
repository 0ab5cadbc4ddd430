// Package store 提供可观察的键值存储.
//
// 所有执行上下文 (relay / coordinator / popup) 只通过它共享状态:
// 写入会向该 key 的订阅者广播一次 Change, 订阅者必须是幂等的.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound key 不存在
	ErrNotFound = errors.New("store: key not found")
	// ErrSkipWrite 由 Update 的回调返回, 表示放弃本次写入
	ErrSkipWrite = errors.New("store: skip write")
	// ErrClosed 存储已关闭
	ErrClosed = errors.New("store: closed")
)

// Change 描述一次写入, Old / New 为空表示写入前 / 写入后 key 不存在
type Change struct {
	Key string          `json:"key"`
	Old json.RawMessage `json:"old,omitempty"`
	New json.RawMessage `json:"new,omitempty"`
}

// UpdateFunc 读取当前值并返回新值.
// current 为 nil 表示 key 不存在; 返回 nil 表示删除该 key; 返回 ErrSkipWrite 表示不写.
type UpdateFunc func(current json.RawMessage) (any, error)

// Store 定义可观察 KV 存储接口
type Store interface {
	// Get 读取并 Unmarshal 到 target, key 不存在返回 ErrNotFound
	Get(ctx context.Context, key string, target any) error
	// Set 写入 JSON 编码后的 value
	Set(ctx context.Context, key string, value any) error
	// Delete 删除 key, 不存在时不报错
	Delete(ctx context.Context, key string) error
	// Update 原子地读-改-写同一个 key
	Update(ctx context.Context, key string, fn UpdateFunc) error
	// Subscribe 订阅 key 的变更, 返回取消订阅函数
	Subscribe(key string, fn func(Change)) (func(), error)
	// Close 释放资源
	Close() error
}

func encode(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}
