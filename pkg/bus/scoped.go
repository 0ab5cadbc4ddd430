package bus

import "context"

// scoped 给 topic 加上前缀, 让多个页面共用同一条底层总线而互不可见
type scoped struct {
	inner  Bus
	prefix string
}

// Scoped 返回只能看到 scope 下 topic 的视图. 关闭视图不会关闭底层总线.
func Scoped(b Bus, scope string) Bus {
	return &scoped{inner: b, prefix: scope + "/"}
}

// PageScope 页面的 scope 名, WebSocket 客户端订阅时使用 "<PageScope>/<topic>"
func PageScope(hostname string) string {
	return "page." + hostname
}

func (s *scoped) Publish(ctx context.Context, topic string, data []byte) error {
	return s.inner.Publish(ctx, s.prefix+topic, data)
}

func (s *scoped) Subscribe(topic string, handler func(data []byte)) (func(), error) {
	return s.inner.Subscribe(s.prefix+topic, handler)
}

func (s *scoped) Close() error {
	return nil
}
