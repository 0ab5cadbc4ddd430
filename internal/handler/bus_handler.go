package handler

import (
	"github.com/gin-gonic/gin"

	"wallet-guard/internal/handler/response"
	"wallet-guard/pkg/bus"
	"wallet-guard/pkg/errno"
)

type BusHandler struct {
	bus bus.Bus
}

func NewBusHandler(b bus.Bus) *BusHandler {
	return &BusHandler{bus: b}
}

// Connect 把页面脚本的 WebSocket 接入该 hostname 的页面总线
// @Router /api/v1/bus/{hostname} [get]
func (h *BusHandler) Connect(c *gin.Context) {
	hostname := c.Param("hostname")
	if hostname == "" {
		response.Error(c, errno.ErrBind.WithMessage("hostname is required"))
		return
	}
	bridge := bus.NewWebSocketBridge(bus.Scoped(h.bus, bus.PageScope(hostname)))
	bridge.ServeHTTP(c.Writer, c.Request)
}
