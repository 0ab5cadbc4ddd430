package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wallet-guard/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 256
)

// Frame WebSocket 上传输的帧, 页面脚本 (或测试客户端) 以此接入总线
type Frame struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// WebSocketBridge 把一个 WebSocket 连接桥接到 Bus:
// 客户端发送的帧发布到对应 topic, 订阅 topic (?topic=a&topic=b) 的消息推送给客户端.
type WebSocketBridge struct {
	bus      Bus
	upgrader websocket.Upgrader
}

func NewWebSocketBridge(b Bus) *WebSocketBridge {
	return &WebSocketBridge{
		bus: b,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (w *WebSocketBridge) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	topics := r.URL.Query()["topic"]

	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		logger.Warn("[Bus] WebSocket upgrade 失败", zap.Error(err))
		return
	}
	clientID := uuid.NewString()
	log := logger.Named("bus.ws").With(zap.String("client", clientID))
	log.Info("WebSocket 客户端已连接", zap.Strings("topics", topics))

	send := make(chan Frame, wsSendBuffer)
	done := make(chan struct{})

	// 1. 订阅
	var unsubscribers []func()
	for _, topic := range topics {
		topic := topic
		unsubscribe, err := w.bus.Subscribe(topic, func(data []byte) {
			select {
			case send <- Frame{Topic: topic, Data: json.RawMessage(data)}:
			case <-done:
			default:
				log.Warn("发送缓冲已满, 丢弃消息", zap.String("topic", topic))
			}
		})
		if err != nil {
			log.Error("订阅失败", zap.String("topic", topic), zap.Error(err))
			continue
		}
		unsubscribers = append(unsubscribers, unsubscribe)
	}
	defer func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}()

	// 2. 写循环
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case frame := <-send:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(frame); err != nil {
					log.Debug("写入失败", zap.Error(err))
					_ = conn.Close()
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	// 3. 读循环 (阻塞直到连接关闭)
	defer close(done)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("连接异常关闭", zap.Error(err))
			}
			log.Info("WebSocket 客户端已断开")
			return
		}
		if frame.Topic == "" {
			continue
		}
		if err := w.bus.Publish(context.Background(), frame.Topic, frame.Data); err != nil {
			log.Warn("发布失败", zap.String("topic", frame.Topic), zap.Error(err))
		}
	}
}
