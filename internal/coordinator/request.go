package coordinator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"wallet-guard/internal/model"
	"wallet-guard/pkg/errno"
	"wallet-guard/pkg/monitor"
	"wallet-guard/pkg/store"
)

// 强制拒绝原因, 同时作为指标标签
const (
	rejectSuperseded  = "superseded"
	rejectPopupClosed = "popup_closed"
)

// HandleRequest 记录新的请求并异步模拟.
// 旧的未完成记录先被强制拒绝, 等待它的 relay 因此拿到裁决.
func (c *Coordinator) HandleRequest(ctx context.Context, cmd model.RequestCommand) error {
	log := c.log.With(zap.String("id", cmd.ID), zap.String("hostname", cmd.Hostname))

	c.supersede.Lock()
	defer c.supersede.Unlock()

	// 1. 重复投递的同一请求不重新处理
	current, err := c.state.Current(ctx)
	if err != nil {
		return err
	}
	if current != nil && current.ID == cmd.ID {
		log.Debug("[Coordinator] 重复的请求消息, 忽略")
		return nil
	}

	// 2. 强制拒绝旧记录, 单独一次写入, 让旧 id 的 relay 观察到终态
	if err := c.forceReject(ctx, rejectSuperseded, ""); err != nil {
		return err
	}

	// 3. 写入 Pending
	pending := model.NewPending(cmd.ID, cmd.Hostname, cmd.Args, cmd.Payload, c.now())
	if err := c.state.UpdateRequest(ctx, func(*model.Request) (*model.Request, error) {
		return &pending, nil
	}); err != nil {
		return err
	}
	log.Info("[Coordinator] 新请求", zap.String("method", string(cmd.Args.Method)), zap.String("payload", string(cmd.Payload.Kind)))

	// 4. 异步模拟, 弹窗由存储变更驱动
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.simulate(c.ctx, pending)
	}()
	return nil
}

// simulate 调用模拟服务, 只在记录仍是同一个 Pending 时写回结果
func (c *Coordinator) simulate(ctx context.Context, req model.Request) {
	start := time.Now()
	resp := c.sim.Simulate(ctx, req)
	monitor.Business.SimulationDuration.WithLabelValues(string(req.Payload.Kind)).Observe(time.Since(start).Seconds())
	monitor.Business.SimulationResults.WithLabelValues(resultLabel(resp)).Inc()

	err := c.state.UpdateRequest(ctx, func(cur *model.Request) (*model.Request, error) {
		if cur == nil || cur.ID != req.ID || cur.State != model.StatePending {
			return nil, store.ErrSkipWrite
		}
		next := cur.WithResponse(resp)
		return &next, nil
	})
	if err != nil && !errors.Is(err, store.ErrSkipWrite) {
		c.log.Warn("[Coordinator] 写入模拟结果失败", zap.String("id", req.ID), zap.Error(err))
		return
	}
	c.log.Debug("[Coordinator] 模拟完成", zap.String("id", req.ID), zap.String("result", resultLabel(resp)))
}

// forceReject 把未完成的记录置为拒绝. id 非空时只处理该记录.
func (c *Coordinator) forceReject(ctx context.Context, reason, id string) error {
	var rejected string
	err := c.state.UpdateRequest(ctx, func(cur *model.Request) (*model.Request, error) {
		// 存储冲突时回调会重跑
		rejected = ""
		if cur == nil || cur.IsTerminal() || (id != "" && cur.ID != id) {
			return nil, store.ErrSkipWrite
		}
		result := errno.ErrUserRejected
		next := cur.Complete(model.ActionReject, &result, c.now())
		rejected = cur.ID
		return &next, nil
	})
	if err != nil && !errors.Is(err, store.ErrSkipWrite) {
		return err
	}
	if rejected != "" {
		if reason == rejectSuperseded {
			monitor.Business.SupersededTotal.Inc()
		}
		monitor.Business.ForcedRejectsTotal.WithLabelValues(reason).Inc()
		c.log.Info("[Coordinator] 强制拒绝", zap.String("id", rejected), zap.String("reason", reason))
	}
	return nil
}

// HandleConsume 钱包正在执行已批准的调用, 清除记录防止重放
func (c *Coordinator) HandleConsume(ctx context.Context, cmd model.ConsumeCommand) error {
	var cleared bool
	err := c.state.UpdateRequest(ctx, func(cur *model.Request) (*model.Request, error) {
		cleared = false
		if cur == nil || cur.ID != cmd.ID || !cur.IsTerminal() || cur.Action != model.ActionResolve {
			return nil, store.ErrSkipWrite
		}
		if cmd.Fingerprint != "" {
			if fp, err := cur.Fingerprint(); err != nil || fp != cmd.Fingerprint {
				return nil, store.ErrSkipWrite
			}
		}
		cleared = true
		return nil, nil
	})
	if err != nil && !errors.Is(err, store.ErrSkipWrite) {
		return err
	}
	if cleared {
		c.log.Info("[Coordinator] 已批准的请求被消费", zap.String("id", cmd.ID))
	}
	return nil
}

func resultLabel(resp model.Response) string {
	switch {
	case resp.Error != nil:
		return string(resp.Error.Kind)
	case resp.Success != nil:
		return "success"
	default:
		return string(model.ErrorUnknown)
	}
}
