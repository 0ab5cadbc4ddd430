package routes

import (
	"github.com/gin-gonic/gin"

	"wallet-guard/internal/handler"
)

// RegisterPopupRoutes 注册弹窗路由
func RegisterPopupRoutes(rg *gin.RouterGroup, h *handler.PopupHandler) {
	popupGroup := rg.Group("/popup")
	{
		popupGroup.GET("/view", h.View)
		popupGroup.POST("/continue", h.Continue)
		popupGroup.POST("/reject", h.Reject)
		popupGroup.POST("/update/dismiss", h.DismissUpdate)
		popupGroup.PUT("/settings", h.UpdateSettings)
	}
}
