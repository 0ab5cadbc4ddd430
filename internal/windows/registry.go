// Package windows 管理弹窗窗口.
//
// Registry 只记录窗口的存在与尺寸, 真正的渲染由前端 (或 CLI) 读取 /windows 后完成.
// 用户关闭窗口对应 Remove, 所有关闭都会通知 OnRemoved 的订阅者.
package windows

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"wallet-guard/pkg/errno"
	"wallet-guard/pkg/fanout"
	"wallet-guard/pkg/logger"
)

// Kind 窗口用途
type Kind string

const (
	KindPopup  Kind = "popup"
	KindBypass Kind = "bypass"
)

const removedTopic = "removed"

// CreateOptions 新窗口参数
type CreateOptions struct {
	Kind   Kind   `json:"kind"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Window 一个打开的窗口
type Window struct {
	ID        int       `json:"id"`
	Kind      Kind      `json:"kind"`
	URL       string    `json:"url"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Focused   bool      `json:"focused"`
	CreatedAt time.Time `json:"createdAt"`
}

// Manager 窗口能力接口, coordinator 与 popup 只依赖它
type Manager interface {
	Create(ctx context.Context, opts CreateOptions) (Window, error)
	Focus(ctx context.Context, id int) error
	Remove(ctx context.Context, id int) error
	// OnRemoved 注册关闭回调, 返回取消函数
	OnRemoved(fn func(id int)) func()
}

// Registry 进程内的 Manager 实现
type Registry struct {
	mu      sync.Mutex
	nextID  int
	windows map[int]*Window
	hub     *fanout.Hub[int]
	log     *zap.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		windows: make(map[int]*Window),
		hub:     fanout.New[int](),
		log:     logger.Named("windows"),
	}
}

func (r *Registry) Create(ctx context.Context, opts CreateOptions) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}

	r.mu.Lock()
	r.nextID++
	w := &Window{
		ID:        r.nextID,
		Kind:      opts.Kind,
		URL:       opts.URL,
		Width:     opts.Width,
		Height:    opts.Height,
		Focused:   true,
		CreatedAt: time.Now(),
	}
	for _, other := range r.windows {
		other.Focused = false
	}
	r.windows[w.ID] = w
	created := *w
	r.mu.Unlock()

	r.log.Info("[Windows] 创建窗口", zap.Int("id", created.ID), zap.String("kind", string(created.Kind)), zap.String("url", created.URL))
	return created, nil
}

func (r *Registry) Focus(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[id]
	if !ok {
		return errno.ErrWindowNotFound.WithMessage("window %d not found", id)
	}
	for _, other := range r.windows {
		other.Focused = false
	}
	w.Focused = true
	return nil
}

// Remove 关闭窗口并通知订阅者; 窗口不存在返回 ErrWindowNotFound
func (r *Registry) Remove(ctx context.Context, id int) error {
	r.mu.Lock()
	_, ok := r.windows[id]
	delete(r.windows, id)
	r.mu.Unlock()

	if !ok {
		return errno.ErrWindowNotFound.WithMessage("window %d not found", id)
	}

	r.log.Info("[Windows] 关闭窗口", zap.Int("id", id))
	r.hub.Publish(removedTopic, id)
	return nil
}

func (r *Registry) OnRemoved(fn func(id int)) func() {
	return r.hub.Subscribe(removedTopic, fn)
}

// Get 返回窗口快照
func (r *Registry) Get(id int) (Window, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[id]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// List 按 ID 排序的窗口快照
func (r *Registry) List() []Window {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]Window, 0, len(r.windows))
	for _, w := range r.windows {
		list = append(list, *w)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// ParseID 解析路径参数中的窗口 ID
func ParseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, errno.ErrWindowNotFound.WithMessage("invalid window id %q", s)
	}
	return id, nil
}

func (r *Registry) Close() {
	r.hub.Close()
}
