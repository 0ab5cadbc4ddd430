package interceptor

import "sync"

// Slot 保存 provider 的可替换位置 (例如 window.ethereum).
// Writable 为 false 时不能替换, 调用方应跳过而不是尝试写入.
type Slot interface {
	Load() Provider
	Writable() bool
	Store(p Provider)
}

// VarSlot 可写的 Slot. 设置了 hook 时, 每次 Store 的值先经过 hook,
// 效果等同于给 window.ethereum 定义 setter.
type VarSlot struct {
	mu   sync.RWMutex
	p    Provider
	hook func(Provider) Provider
}

func NewSlot(p Provider) *VarSlot {
	return &VarSlot{p: p}
}

func (s *VarSlot) Load() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p
}

func (s *VarSlot) Writable() bool { return true }

func (s *VarSlot) Store(p Provider) {
	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()

	if hook != nil && p != nil {
		p = hook(p)
	}

	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

// SetHook 设置写入钩子
func (s *VarSlot) SetHook(hook func(Provider) Provider) {
	s.mu.Lock()
	s.hook = hook
	s.mu.Unlock()
}

// readOnlySlot 不可替换的 provider, 例如被其他钱包冻结的属性
type readOnlySlot struct {
	p Provider
}

func ReadOnly(p Provider) Slot {
	return readOnlySlot{p: p}
}

func (s readOnlySlot) Load() Provider   { return s.p }
func (s readOnlySlot) Writable() bool   { return false }
func (s readOnlySlot) Store(_ Provider) {}
