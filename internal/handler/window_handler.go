package handler

import (
	"github.com/gin-gonic/gin"

	"wallet-guard/internal/handler/response"
	"wallet-guard/internal/windows"
	"wallet-guard/pkg/errno"
)

type WindowHandler struct {
	registry *windows.Registry
}

func NewWindowHandler(registry *windows.Registry) *WindowHandler {
	return &WindowHandler{registry: registry}
}

// List 打开的窗口, 渲染端据此显示弹窗
// @Router /api/v1/windows [get]
func (h *WindowHandler) List(c *gin.Context) {
	response.Success(c, h.registry.List())
}

// Close 用户关闭窗口
// @Router /api/v1/windows/{id} [delete]
func (h *WindowHandler) Close(c *gin.Context) {
	id, err := windows.ParseID(c.Param("id"))
	if err != nil {
		response.Error(c, errno.ErrBind.WithMessage("invalid window id"))
		return
	}
	if err := h.registry.Remove(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}
