package interceptor

import (
	"context"
	"time"
)

// Watcher 在宽限期内轮询 slot, 捕获晚注入或被替换的 provider.
// 钱包扩展可能在页面脚本之后才注入, 也可能之后再往聚合 provider 里追加子 provider.
type Watcher struct {
	guard    *Guard
	slot     Slot
	interval time.Duration
	grace    time.Duration
}

func NewWatcher(guard *Guard, slot Slot, interval, grace time.Duration) *Watcher {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Watcher{
		guard:    guard,
		slot:     slot,
		interval: interval,
		grace:    grace,
	}
}

// Run 立即安装一次, 之后每个 interval 重试, 宽限期结束或 ctx 取消时返回.
// 可写的 VarSlot 会同时设置写入钩子, 宽限期之后的赋值也会被包装.
func (w *Watcher) Run(ctx context.Context) {
	if vs, ok := w.slot.(*VarSlot); ok {
		vs.SetHook(w.guard.Wrap)
	}

	w.guard.Install(w.slot)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if w.grace > 0 {
		timer := time.NewTimer(w.grace)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			w.guard.log.Debug("[Interceptor] 宽限期结束, 停止轮询")
			return
		case <-ticker.C:
			w.guard.Install(w.slot)
		}
	}
}
