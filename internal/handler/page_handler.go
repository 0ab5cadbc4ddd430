package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"wallet-guard/internal/handler/response"
	"wallet-guard/pkg/errno"
)

// InjectedPinger 通过 relay 访问页面里的注入脚本
type InjectedPinger interface {
	PingInjected(ctx context.Context) (string, error)
}

type PageHandler struct {
	pages map[string]InjectedPinger
}

func NewPageHandler(pages map[string]InjectedPinger) *PageHandler {
	return &PageHandler{pages: pages}
}

// Ping 检查某个页面的注入脚本是否在线
// @Router /api/v1/pages/{hostname}/ping [get]
func (h *PageHandler) Ping(c *gin.Context) {
	hostname := c.Param("hostname")
	page, ok := h.pages[hostname]
	if !ok {
		response.Error(c, errno.ErrBind.WithMessage("unknown hostname %q", hostname))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	reply, err := page.PingInjected(ctx)
	if err != nil {
		response.Error(c, errno.ErrTransport.WithMessage("injected script: %v", err))
		return
	}
	response.Success(c, gin.H{"hostname": hostname, "reply": reply})
}
