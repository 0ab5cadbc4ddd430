package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"wallet-guard/pkg/logger"
)

// NATSBus 基于 NATS core subject (不使用 JetStream, 与 DOM 事件一样不持久化)
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	owned  bool
	once   sync.Once
}

// ConnectNATS 建立连接, 断线自动重连
func ConnectNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("[Bus] NATS 连接断开", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("[Bus] NATS 已重连", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return conn, nil
}

// NewNATSBus 使用已有连接; owned 为 true 时 Close 会关闭连接
func NewNATSBus(conn *nats.Conn, prefix string, owned bool) *NATSBus {
	return &NATSBus{conn: conn, prefix: prefix, owned: owned}
}

func (b *NATSBus) Publish(ctx context.Context, topic string, data []byte) error {
	if b.conn.IsClosed() {
		return ErrClosed
	}
	if err := b.conn.Publish(b.prefix+topic, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", topic, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(topic string, handler func(data []byte)) (func(), error) {
	if b.conn.IsClosed() {
		return nil, ErrClosed
	}
	sub, err := b.conn.Subscribe(b.prefix+topic, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", topic, err)
	}
	// Flush 确保服务端已登记订阅
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil && !b.conn.IsClosed() {
				logger.Debug("[Bus] NATS 取消订阅失败", zap.String("topic", topic), zap.Error(err))
			}
		})
	}, nil
}

func (b *NATSBus) Close() error {
	b.once.Do(func() {
		if b.owned {
			b.conn.Close()
		}
	})
	return nil
}
