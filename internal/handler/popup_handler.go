package handler

import (
	"github.com/gin-gonic/gin"

	"wallet-guard/internal/handler/request"
	"wallet-guard/internal/handler/response"
	"wallet-guard/internal/popup"
	"wallet-guard/internal/statestore"
	"wallet-guard/pkg/errno"
	"wallet-guard/pkg/validator"
)

type PopupHandler struct {
	svc *popup.Service
}

func NewPopupHandler(svc *popup.Service) *PopupHandler {
	return &PopupHandler{svc: svc}
}

// View 当前弹窗页面
// @Router /api/v1/popup/view [get]
func (h *PopupHandler) View(c *gin.Context) {
	view, err := h.svc.View(c.Request.Context())
	if err != nil {
		response.Error(c, errno.ErrStore.WithMessage("%v", err))
		return
	}
	response.Success(c, view)
}

// Continue 用户点击 Continue / Skip
// @Router /api/v1/popup/continue [post]
func (h *PopupHandler) Continue(c *gin.Context) {
	var req request.PopupActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}
	if err := h.svc.Continue(c.Request.Context(), req.ID, req.WindowID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": req.ID})
}

// Reject 用户点击 Reject
// @Router /api/v1/popup/reject [post]
func (h *PopupHandler) Reject(c *gin.Context) {
	var req request.PopupActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}
	if err := h.svc.Reject(c.Request.Context(), req.ID, req.WindowID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": req.ID})
}

// DismissUpdate 关闭更新提示
// @Router /api/v1/popup/update/dismiss [post]
func (h *PopupHandler) DismissUpdate(c *gin.Context) {
	if err := h.svc.DismissUpdate(c.Request.Context()); err != nil {
		response.Error(c, errno.ErrStore.WithMessage("%v", err))
		return
	}
	response.Success(c, nil)
}

// UpdateSettings 首页开关
// @Router /api/v1/popup/settings [put]
func (h *PopupHandler) UpdateSettings(c *gin.Context) {
	var req request.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}
	settings := statestore.Settings{Disable: req.Disable, SkipKnownMarketplaces: req.SkipKnownMarketplaces}
	if err := h.svc.UpdateSettings(c.Request.Context(), settings); err != nil {
		response.Error(c, errno.ErrStore.WithMessage("%v", err))
		return
	}
	response.Success(c, settings)
}
