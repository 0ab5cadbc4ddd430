package routes

import (
	"github.com/gin-gonic/gin"

	"wallet-guard/internal/handler"
)

// RegisterWindowRoutes 注册窗口路由
func RegisterWindowRoutes(rg *gin.RouterGroup, h *handler.WindowHandler) {
	rg.GET("/windows", h.List)
	rg.DELETE("/windows/:id", h.Close)
}

// RegisterBusRoutes 页面总线的 WebSocket 入口
func RegisterBusRoutes(rg *gin.RouterGroup, h *handler.BusHandler) {
	rg.GET("/bus/:hostname", h.Connect)
}

// RegisterPageRoutes 页面注入脚本的状态
func RegisterPageRoutes(rg *gin.RouterGroup, h *handler.PageHandler) {
	rg.GET("/pages/:hostname/ping", h.Ping)
}
