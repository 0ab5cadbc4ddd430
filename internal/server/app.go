package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wallet-guard/pkg/logger"
)

type Config struct {
	HttpPort string
}

// App HTTP 服务与后台任务的生命周期
type App struct {
	httpServer *http.Server
	workers    []func(ctx context.Context) error
}

func New(cfg Config, httpHandler *gin.Engine) *App {
	return &App{
		httpServer: &http.Server{
			Addr:              ":" + cfg.HttpPort,
			Handler:           httpHandler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Go 注册一个随 App 运行的后台任务 (阻塞到 ctx 取消)
func (a *App) Go(worker func(ctx context.Context) error) {
	a.workers = append(a.workers, worker)
}

// Run 启动服务并阻塞, 直到 ctx 被取消 (通常来自关闭信号)
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(a.workers)+1)

	// 1. Start HTTP
	go func() {
		logger.Info("Starting HTTP Server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 2. Start workers
	done := make(chan struct{}, len(a.workers))
	for _, w := range a.workers {
		go func(w func(ctx context.Context) error) {
			defer func() { done <- struct{}{} }()
			if err := w(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}(w)
	}

	// 3. 等待关闭信号或致命错误
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("⚠️  Shutting down server...")
	case runErr = <-errCh:
		logger.Error("Server failure, shutting down", zap.Error(runErr))
	}
	cancel()

	// 4. Graceful Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	for range a.workers {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warn("后台任务未能按时退出")
			return runErr
		}
	}
	logger.Info("Server exited properly")
	return runErr
}
