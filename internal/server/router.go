package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wallet-guard/internal/handler"
	"wallet-guard/internal/handler/response"
	"wallet-guard/internal/server/routes"
	"wallet-guard/pkg/monitor"
	"wallet-guard/pkg/validator"
)

// Handlers 路由需要的全部 handler, 为 nil 的模块不注册
type Handlers struct {
	Health  *handler.HealthHandler
	Popup   *handler.PopupHandler
	Windows *handler.WindowHandler
	Bus     *handler.BusHandler
	Pages   *handler.PageHandler
}

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(h Handlers) *gin.Engine {
	// 0. 初始化监控指标与校验器
	monitor.Init()
	validator.Init()

	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 4. 注册 API 路由组
	api := r.Group("/api/v1")
	{
		api.GET("/ping", func(c *gin.Context) {
			response.Success(c, gin.H{"pong": true})
		})
		api.GET("/metrics", gin.WrapH(promhttp.Handler()))
		if h.Health != nil {
			api.GET("/health", h.Health.HealthCheck)
		}
		if h.Popup != nil {
			routes.RegisterPopupRoutes(api, h.Popup)
		}
		if h.Windows != nil {
			routes.RegisterWindowRoutes(api, h.Windows)
		}
		if h.Bus != nil {
			routes.RegisterBusRoutes(api, h.Bus)
		}
		if h.Pages != nil {
			routes.RegisterPageRoutes(api, h.Pages)
		}
	}

	return r
}
