package coordinator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"wallet-guard/internal/windows"
	"wallet-guard/pkg/monitor"
)

type popupPhase int

const (
	popupNone popupPhase = iota
	popupCreating
	popupOpen
)

func (p popupPhase) String() string {
	switch p {
	case popupCreating:
		return "creating"
	case popupOpen:
		return "open"
	default:
		return "none"
	}
}

// PopupHandle 弹窗句柄的快照
type PopupHandle struct {
	Phase     string `json:"phase"`
	WindowID  int    `json:"windowId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// popupController 按存储中的当前状态收敛弹窗, 最多一个.
// 协调在单个 goroutine 中串行执行, kick 合并多次触发.
type popupController struct {
	c      *Coordinator
	kickCh chan struct{}

	mu        sync.Mutex
	phase     popupPhase
	windowID  int
	requestID string
}

func newPopupController(c *Coordinator) *popupController {
	return &popupController{c: c, kickCh: make(chan struct{}, 1)}
}

func (p *popupController) kick() {
	select {
	case p.kickCh <- struct{}{}:
	default:
	}
}

func (p *popupController) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kickCh:
			p.reconcile(ctx)
		}
	}
}

func (p *popupController) handle() PopupHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PopupHandle{Phase: p.phase.String(), WindowID: p.windowID, RequestID: p.requestID}
}

// reconcile 读取当前记录, 使弹窗与之一致
func (p *popupController) reconcile(ctx context.Context) {
	c := p.c
	c.supersede.Lock()
	current, err := c.state.Current(ctx)
	c.supersede.Unlock()
	if err != nil {
		c.log.Warn("[Coordinator] 读取当前记录失败", zap.Error(err))
		return
	}
	needs := current != nil && current.NeedsAction()
	if needs {
		monitor.Business.ActiveRequestPresent.Set(1)
	} else {
		monitor.Business.ActiveRequestPresent.Set(0)
	}

	p.mu.Lock()
	phase, windowID, requestID := p.phase, p.windowID, p.requestID
	switch {
	case phase == popupNone && needs:
		p.phase = popupCreating
	case phase == popupOpen && !needs:
		// 先置空, OnRemoved 回调看到的是已释放的句柄
		p.phase, p.windowID, p.requestID = popupNone, 0, ""
	}
	p.mu.Unlock()

	switch {
	case phase == popupNone && needs:
		win, err := c.windows.Create(ctx, windows.CreateOptions{
			Kind:   windows.KindPopup,
			URL:    c.opts.PopupURL,
			Width:  c.opts.PopupWidth,
			Height: c.opts.PopupHeight,
		})
		p.mu.Lock()
		if err != nil {
			p.phase = popupNone
			p.mu.Unlock()
			c.log.Error("[Coordinator] 创建弹窗失败", zap.Error(err))
			return
		}
		p.phase, p.windowID, p.requestID = popupOpen, win.ID, current.ID
		p.mu.Unlock()
		monitor.Business.PopupOpsTotal.WithLabelValues("create").Inc()
		c.log.Info("[Coordinator] 弹窗已创建", zap.Int("windowId", win.ID), zap.String("id", current.ID))
		// 创建期间记录可能又变了
		p.kick()

	case phase == popupOpen && needs && current.ID != requestID:
		if err := c.windows.Focus(ctx, windowID); err != nil {
			// 窗口已经不存在, 重新创建
			c.log.Warn("[Coordinator] 聚焦弹窗失败", zap.Int("windowId", windowID), zap.Error(err))
			p.mu.Lock()
			if p.phase == popupOpen && p.windowID == windowID {
				p.phase, p.windowID, p.requestID = popupNone, 0, ""
			}
			p.mu.Unlock()
			p.kick()
			return
		}
		p.mu.Lock()
		if p.phase == popupOpen && p.windowID == windowID {
			p.requestID = current.ID
		}
		p.mu.Unlock()
		monitor.Business.PopupOpsTotal.WithLabelValues("focus").Inc()

	case phase == popupOpen && !needs:
		if err := c.windows.Remove(ctx, windowID); err != nil {
			c.log.Debug("[Coordinator] 关闭弹窗", zap.Int("windowId", windowID), zap.Error(err))
		}
		monitor.Business.PopupOpsTotal.WithLabelValues("close").Inc()
	}
}

// OnWindowRemoved 用户关闭了弹窗: 释放句柄并拒绝弹窗正在展示的记录
func (c *Coordinator) OnWindowRemoved(ctx context.Context, id int) {
	p := c.popup
	p.mu.Lock()
	ours := p.phase == popupOpen && p.windowID == id
	requestID := p.requestID
	if ours {
		p.phase, p.windowID, p.requestID = popupNone, 0, ""
	}
	p.mu.Unlock()
	if !ours {
		return
	}

	c.log.Info("[Coordinator] 弹窗被关闭", zap.Int("windowId", id), zap.String("id", requestID))
	if err := c.forceReject(ctx, rejectPopupClosed, requestID); err != nil {
		c.log.Warn("[Coordinator] 拒绝未完成的请求失败", zap.Error(err))
	}
	p.kick()
}

// Popup 当前弹窗句柄
func (c *Coordinator) Popup() PopupHandle {
	return c.popup.handle()
}
