// Package statestore 在可观察 KV 存储之上提供带类型的 key.
//
// 所有上下文都通过这里读写当前请求记录, 设置和更新提示.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"wallet-guard/internal/model"
	"wallet-guard/pkg/store"
)

const (
	keyRequest  = "request"
	keySettings = "option.settings"
	keyLastSeen = "updates.last_seen"
	keyNotice   = "updates.notice"
	keyClientID = "id"
)

// Settings 用户设置
type Settings struct {
	Disable               bool `json:"disable"`
	SkipKnownMarketplaces bool `json:"skipKnownMarketplaces"`
}

// UpdateNotice 待展示的更新提示, Version 为拉取时的安装版本
type UpdateNotice struct {
	Version string `json:"version"`
	Message string `json:"message"`
	Link    string `json:"link"`
}

// RequestChange 当前请求记录的一次变更, Old / New 为 nil 表示不存在
type RequestChange struct {
	Old *model.Request
	New *model.Request
}

// RequestUpdateFunc 返回新的记录; 返回 nil 删除记录, 返回 store.ErrSkipWrite 放弃写入
type RequestUpdateFunc func(current *model.Request) (*model.Request, error)

type StateStore struct {
	st     store.Store
	prefix string
}

func New(st store.Store, prefix string) *StateStore {
	return &StateStore{st: st, prefix: prefix}
}

func (s *StateStore) key(name string) string {
	return s.prefix + name
}

// RequestKey 当前请求记录所在的 key
func (s *StateStore) RequestKey() string {
	return s.key(keyRequest)
}

// Current 读取当前请求记录, 不存在时返回 nil
func (s *StateStore) Current(ctx context.Context) (*model.Request, error) {
	var req model.Request
	err := s.st.Get(ctx, s.key(keyRequest), &req)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	return &req, nil
}

// UpdateRequest 原子地读-改-写当前请求记录
func (s *StateStore) UpdateRequest(ctx context.Context, fn RequestUpdateFunc) error {
	return s.st.Update(ctx, s.key(keyRequest), func(raw json.RawMessage) (any, error) {
		current, err := model.DecodeRequest(raw)
		if err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		return next, nil
	})
}

// ClearRequest 删除当前请求记录
func (s *StateStore) ClearRequest(ctx context.Context) error {
	return s.st.Delete(ctx, s.key(keyRequest))
}

// SubscribeRequest 订阅当前请求记录的变更. 无法解析的变更被忽略.
func (s *StateStore) SubscribeRequest(fn func(RequestChange)) (func(), error) {
	return s.st.Subscribe(s.key(keyRequest), func(c store.Change) {
		oldReq, err := model.DecodeRequest(c.Old)
		if err != nil {
			oldReq = nil
		}
		newReq, err := model.DecodeRequest(c.New)
		if err != nil {
			return
		}
		fn(RequestChange{Old: oldReq, New: newReq})
	})
}

// Settings 读取用户设置, 未设置时返回零值
func (s *StateStore) Settings(ctx context.Context) (Settings, error) {
	var settings Settings
	err := s.st.Get(ctx, s.key(keySettings), &settings)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return settings, nil
}

func (s *StateStore) SetSettings(ctx context.Context, settings Settings) error {
	return s.st.Set(ctx, s.key(keySettings), settings)
}

// ClientID 返回持久化的客户端 ID, 首次调用时生成
func (s *StateStore) ClientID(ctx context.Context) (string, error) {
	var id string
	err := s.st.Update(ctx, s.key(keyClientID), func(raw json.RawMessage) (any, error) {
		if raw != nil && json.Unmarshal(raw, &id) == nil && id != "" {
			return nil, store.ErrSkipWrite
		}
		id = uuid.NewString()
		return id, nil
	})
	if err != nil {
		return "", fmt.Errorf("client id: %w", err)
	}
	return id, nil
}

// LastSeenVersion 用户最后确认过更新提示的版本
func (s *StateStore) LastSeenVersion(ctx context.Context) (string, error) {
	var version string
	err := s.st.Get(ctx, s.key(keyLastSeen), &version)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("read last seen version: %w", err)
	}
	return version, nil
}

// Notice 当前待展示的更新提示, 没有时返回 nil
func (s *StateStore) Notice(ctx context.Context) (*UpdateNotice, error) {
	var notice UpdateNotice
	err := s.st.Get(ctx, s.key(keyNotice), &notice)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read update notice: %w", err)
	}
	return &notice, nil
}

func (s *StateStore) SetNotice(ctx context.Context, notice UpdateNotice) error {
	return s.st.Set(ctx, s.key(keyNotice), notice)
}

// DismissNotice 记录提示版本为已读并清除提示.
// 先写 last_seen 再删除提示: 中途失败时提示会再次出现, 不会丢失.
func (s *StateStore) DismissNotice(ctx context.Context) error {
	notice, err := s.Notice(ctx)
	if err != nil {
		return err
	}
	if notice == nil {
		return nil
	}
	if err := s.st.Set(ctx, s.key(keyLastSeen), notice.Version); err != nil {
		return fmt.Errorf("write last seen version: %w", err)
	}
	return s.st.Delete(ctx, s.key(keyNotice))
}
