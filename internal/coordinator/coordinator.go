// Package coordinator 是后台协调者 (background).
//
// 它是 Pending / ActionRequired / 强制拒绝记录的唯一写入方,
// 负责调用模拟服务, 保证同一时间最多一个弹窗, 处理绕过检测和更新提示.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"wallet-guard/internal/model"
	"wallet-guard/internal/service/mq"
	"wallet-guard/internal/simclient"
	"wallet-guard/internal/statestore"
	"wallet-guard/internal/windows"
	"wallet-guard/pkg/logger"
	"wallet-guard/pkg/monitor"
	"wallet-guard/pkg/utils/lock"
)

// Simulator 模拟服务, simclient.Client 实现了它
type Simulator interface {
	Simulate(ctx context.Context, req model.Request) model.Response
	CheckBypass(ctx context.Context, req simclient.BypassRequest) (bool, error)
	FetchUpdate(ctx context.Context, manifestVersion string) (*simclient.Update, error)
}

// Options coordinator 参数
type Options struct {
	Topic string

	PopupURL     string
	PopupWidth   int
	PopupHeight  int
	BypassURL    string
	BypassWidth  int
	BypassHeight int

	BypassRate  float64 // 每秒允许的检查次数 (按 hostname)
	BypassBurst int

	JanitorSpec string
	Retention   time.Duration

	Version            string
	UpdateCheckEnabled bool
}

func (o *Options) setDefaults() {
	if o.PopupURL == "" {
		o.PopupURL = "/popup"
	}
	if o.BypassURL == "" {
		o.BypassURL = "/bypass"
	}
	if o.PopupWidth == 0 {
		o.PopupWidth, o.PopupHeight = 420, 760
	}
	if o.BypassWidth == 0 {
		o.BypassWidth, o.BypassHeight = 760, 760
	}
	if o.BypassRate <= 0 {
		o.BypassRate = 1
	}
	if o.BypassBurst <= 0 {
		o.BypassBurst = 3
	}
	if o.Retention <= 0 {
		o.Retention = 30 * time.Minute
	}
}

type Coordinator struct {
	state    *statestore.StateStore
	consumer mq.Consumer
	sim      Simulator
	windows  windows.Manager
	opts     Options
	log      *zap.Logger
	now      func() time.Time

	popup    *popupController
	limiters *gocache.Cache // hostname -> *rate.Limiter
	janitor  *Janitor

	// 强制拒绝与新 Pending 两次写入期间持有, 弹窗协调不会读到中间状态
	supersede sync.Mutex

	// 进行中的模拟, Run 退出前等待
	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// New 创建 coordinator. locker 为 nil 时 janitor 不加分布式锁 (单实例).
func New(state *statestore.StateStore, consumer mq.Consumer, sim Simulator, wm windows.Manager, locker lock.DistributedLock, opts Options) *Coordinator {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		state:    state,
		consumer: consumer,
		sim:      sim,
		windows:  wm,
		opts:     opts,
		log:      logger.Named("coordinator"),
		now:      time.Now,
		limiters: gocache.New(10*time.Minute, 10*time.Minute),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.popup = newPopupController(c)
	c.janitor = NewJanitor(state, locker, opts.JanitorSpec, opts.Retention)
	return c
}

// Start 启动弹窗协调, 窗口关闭监听, janitor 与更新检查. 不阻塞.
func (c *Coordinator) Start(ctx context.Context) error {
	unsubscribe, err := c.state.SubscribeRequest(func(statestore.RequestChange) {
		c.popup.kick()
	})
	if err != nil {
		return fmt.Errorf("subscribe request store: %w", err)
	}
	stopRemoved := c.windows.OnRemoved(func(id int) {
		c.OnWindowRemoved(c.ctx, id)
	})

	go c.popup.loop(c.ctx)
	go func() {
		<-c.ctx.Done()
		unsubscribe()
		stopRemoved()
	}()

	if err := c.janitor.Start(); err != nil {
		return err
	}

	// 启动时按当前存储状态协调一次
	c.popup.kick()

	if c.opts.UpdateCheckEnabled {
		go func() {
			if err := c.CheckForUpdate(ctx); err != nil {
				c.log.Warn("[Coordinator] 更新检查失败", zap.Error(err))
			}
		}()
	}

	c.log.Info("[Coordinator] 已启动", zap.String("topic", c.opts.Topic))
	return nil
}

// Run 启动并消费运行时消息, 阻塞直到 ctx 取消
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Stop()

	return c.consumer.Subscribe(ctx, c.opts.Topic, func(msg *mq.Message) error {
		return c.HandleMessage(ctx, msg.Payload)
	})
}

// Stop 停止后台任务并等待进行中的模拟结束
func (c *Coordinator) Stop() {
	c.cancel()
	c.janitor.Stop()
	c.inflight.Wait()
}

// HandleMessage 按命令分发一条运行时消息.
// 无法解析的消息记录后丢弃, 返回 nil 让消息被确认.
func (c *Coordinator) HandleMessage(ctx context.Context, payload []byte) error {
	var env model.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.log.Warn("[Coordinator] 无法解析的运行时消息", zap.Error(err))
		return nil
	}

	switch env.Command {
	case model.CommandRequest:
		var cmd model.RequestCommand
		if err := json.Unmarshal(env.Data, &cmd); err != nil || cmd.ID == "" {
			c.log.Warn("[Coordinator] request 参数错误", zap.Error(err))
			return nil
		}
		return c.HandleRequest(ctx, cmd)
	case model.CommandBypassCheck:
		var cmd model.BypassCommand
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			c.log.Warn("[Coordinator] bypassCheck 参数错误", zap.Error(err))
			return nil
		}
		c.HandleBypass(ctx, cmd)
		return nil
	case model.CommandConsume:
		var cmd model.ConsumeCommand
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			c.log.Warn("[Coordinator] consume 参数错误", zap.Error(err))
			return nil
		}
		return c.HandleConsume(ctx, cmd)
	case model.CommandReportError:
		var cmd model.ReportErrorCommand
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			c.log.Warn("[Coordinator] reportError 参数错误", zap.Error(err))
			return nil
		}
		c.HandleErrorReport(cmd)
		return nil
	default:
		c.log.Warn("[Coordinator] 未知命令", zap.String("command", string(env.Command)))
		return nil
	}
}

// HandleErrorReport 页面错误上报只记录日志和计数
func (c *Coordinator) HandleErrorReport(cmd model.ReportErrorCommand) {
	monitor.Business.ErrorReportsTotal.Inc()
	c.log.Error("[Coordinator] 页面错误上报",
		zap.String("hostname", cmd.Hostname),
		zap.String("message", cmd.Message),
		zap.String("error", cmd.Error))
}
