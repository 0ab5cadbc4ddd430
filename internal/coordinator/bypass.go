package coordinator

import (
	"context"
	"net/url"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wallet-guard/internal/model"
	"wallet-guard/internal/simclient"
	"wallet-guard/internal/windows"
	"wallet-guard/pkg/errno"
	"wallet-guard/pkg/monitor"
)

// HandleBypass 页面绕过了拦截直接调用钱包.
// 如果是刚批准的同一调用则清除记录, 否则询问服务并打开绕过提示窗口.
func (c *Coordinator) HandleBypass(ctx context.Context, cmd model.BypassCommand) {
	log := c.log.With(zap.String("hostname", cmd.Hostname), zap.String("method", string(cmd.Request.Method)))

	// 1. 每个 hostname 限流
	if !c.limiter(cmd.Hostname).Allow() {
		monitor.Business.BypassChecksTotal.WithLabelValues("rate_limited").Inc()
		log.Debug("[Coordinator] 绕过检查被限流", zap.Error(errno.ErrRateLimited))
		return
	}

	// 2. 再次核对指纹, relay 看到的记录可能已经过时
	current, err := c.state.Current(ctx)
	if err != nil {
		log.Warn("[Coordinator] 读取当前记录失败", zap.Error(err))
	}
	if current != nil && current.IsTerminal() && current.Action == model.ActionResolve {
		fp, err1 := current.Fingerprint()
		want, err2 := model.Fingerprint(cmd.Request)
		if err1 == nil && err2 == nil && fp == want {
			monitor.Business.BypassChecksTotal.WithLabelValues("consumed").Inc()
			if err := c.HandleConsume(ctx, model.ConsumeCommand{ID: current.ID, Fingerprint: fp}); err != nil {
				log.Warn("[Coordinator] 清除已批准记录失败", zap.Error(err))
			}
			return
		}
	}

	// 3. 询问服务; 出错时按需要提示处理
	req := simclient.BypassRequest{
		Request:  cmd.Request,
		Hostname: cmd.Hostname,
		ChainID:  cmd.Request.ChainID,
	}
	if current != nil {
		req.ValidRequests = []model.Request{*current}
	}
	show, err := c.sim.CheckBypass(ctx, req)
	switch {
	case err != nil:
		monitor.Business.BypassChecksTotal.WithLabelValues("error").Inc()
		log.Warn("[Coordinator] 绕过检查失败, 直接提示", zap.Error(err))
	case !show:
		monitor.Business.BypassChecksTotal.WithLabelValues("dismissed").Inc()
		return
	default:
		monitor.Business.BypassChecksTotal.WithLabelValues("confirmed").Inc()
	}

	// 4. 打开绕过提示窗口
	win, err := c.windows.Create(ctx, windows.CreateOptions{
		Kind:   windows.KindBypass,
		URL:    c.opts.BypassURL + "?" + url.Values{"hostname": {cmd.Hostname}}.Encode(),
		Width:  c.opts.BypassWidth,
		Height: c.opts.BypassHeight,
	})
	if err != nil {
		log.Error("[Coordinator] 打开绕过提示失败", zap.Error(err))
		return
	}
	monitor.Business.PopupOpsTotal.WithLabelValues("bypass").Inc()
	log.Info("[Coordinator] 已打开绕过提示", zap.Int("windowId", win.ID))
}

func (c *Coordinator) limiter(hostname string) *rate.Limiter {
	if v, ok := c.limiters.Get(hostname); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(c.opts.BypassRate), c.opts.BypassBurst)
	// Add 失败说明并发创建过, 用已有的
	if err := c.limiters.Add(hostname, l, gocache.DefaultExpiration); err != nil {
		if v, ok := c.limiters.Get(hostname); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}
