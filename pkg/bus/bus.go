// Package bus 是页面事件总线: 同一页面内注入脚本与 content script 之间的广播通道.
//
// 语义对应浏览器的 DOM 事件: 广播, 无确认, 无持久化, 没有订阅者时消息直接丢弃.
package bus

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("bus: closed")

// Bus 页面事件总线
type Bus interface {
	// Publish 广播 data 到 topic 的全部订阅者
	Publish(ctx context.Context, topic string, data []byte) error
	// Subscribe 订阅 topic, 返回取消订阅函数
	Subscribe(topic string, handler func(data []byte)) (func(), error)
	Close() error
}
