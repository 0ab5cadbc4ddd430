package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"wallet-guard/internal/bootstrap"
	"wallet-guard/internal/coordinator"
	"wallet-guard/internal/handler"
	"wallet-guard/internal/popup"
	"wallet-guard/internal/relay"
	"wallet-guard/internal/server"
	"wallet-guard/internal/simclient"
	"wallet-guard/internal/windows"
	"wallet-guard/pkg/bus"
	"wallet-guard/pkg/config"
	"wallet-guard/pkg/logger"
)

func main() {
	// 0. 初始化 Config
	config.Init()
	cfg := config.Global

	// 1. 初始化 Logger
	logger.Init(cfg.App.Env, cfg.App.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. 存储 / 页面总线 / 运行时消息
	infra, err := bootstrap.Open(cfg)
	if err != nil {
		logger.Fatal("基础设施初始化失败", zap.Error(err))
	}
	defer infra.Close()

	// 3. 模拟服务与窗口
	sim := simclient.NewClient(cfg.Simulator.BaseURL, cfg.Simulator.Timeout, infra.State)
	registry := windows.NewRegistry()
	defer registry.Close()

	// 4. Coordinator (background)
	coord := coordinator.New(infra.State, infra.Consumer, sim, registry, infra.Locker, coordinator.Options{
		Topic:              cfg.MQ.Topic,
		PopupWidth:         cfg.Popup.Width,
		PopupHeight:        cfg.Popup.Height,
		BypassWidth:        cfg.Popup.BypassWidth,
		BypassHeight:       cfg.Popup.BypassHeight,
		BypassRate:         cfg.Guard.BypassRate,
		BypassBurst:        cfg.Guard.BypassBurst,
		JanitorSpec:        cfg.Guard.JanitorSpec,
		Retention:          cfg.Guard.Retention,
		Version:            cfg.App.Version,
		UpdateCheckEnabled: cfg.Guard.UpdateCheckEnabled,
	})

	// 5. 每个页面一个 relay (content script), 共享总线按 hostname 隔离
	checks := map[string]handler.Pinger{
		"store": handler.PingFunc(func(ctx context.Context) error {
			_, err := infra.State.Settings(ctx)
			return err
		}),
	}
	pages := make(map[string]handler.InjectedPinger, len(cfg.Guard.Hostnames))
	for _, hostname := range cfg.Guard.Hostnames {
		r := relay.New(bus.Scoped(infra.Bus, bus.PageScope(hostname)), infra.State, infra.Producer, relay.Options{
			Hostname:          hostname,
			Topic:             cfg.MQ.Topic,
			SupportedChains:   cfg.Guard.SupportedChains,
			KnownMarketplaces: cfg.Guard.KnownMarketplaces,
			TrackTTL:          cfg.Guard.TrackTTL,
		})
		if err := r.Start(); err != nil {
			logger.Fatal("relay 启动失败", zap.String("hostname", hostname), zap.Error(err))
		}
		defer r.Close()
		pages[hostname] = r
		logger.Info("relay 已启动", zap.String("hostname", hostname))
	}

	// 6. HTTP Router
	r := server.NewHTTPRouter(server.Handlers{
		Health:  handler.NewHealthHandler(cfg.App.Version, checks),
		Popup:   handler.NewPopupHandler(popup.NewService(infra.State, registry)),
		Windows: handler.NewWindowHandler(registry),
		Bus:     handler.NewBusHandler(infra.Bus),
		Pages:   handler.NewPageHandler(pages),
	})

	// 7. 启动应用, coordinator 随 App 运行
	app := server.New(server.Config{HttpPort: cfg.App.HttpPort}, r)
	app.Go(coord.Run)

	if err := app.Run(ctx); err != nil {
		logger.Error("服务异常退出", zap.Error(err))
	}
	logger.Info("系统已退出")
}
