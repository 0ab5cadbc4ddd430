package mq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Message, 4)
	go func() {
		_ = b.Subscribe(ctx, "guard.runtime", func(msg *Message) error {
			got <- msg
			return nil
		})
	}()
	require.Eventually(t, func() bool { return b.Ready("guard.runtime") == 1 }, time.Second, 5*time.Millisecond)

	payload := []byte(`{"command":"request"}`)
	require.NoError(t, b.Publish(ctx, "guard.runtime", "example.com", payload))
	payload[0] = 'X' // 发布后修改不影响已投递的消息

	select {
	case msg := <-got:
		assert.Equal(t, "example.com", msg.Key)
		assert.JSONEq(t, `{"command":"request"}`, string(msg.Payload))
		assert.NotEmpty(t, msg.ID)
	case <-time.After(time.Second):
		t.Fatal("未收到消息")
	}

	cancel()
	require.Eventually(t, func() bool { return b.Ready("guard.runtime") == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Publish(context.Background(), "guard.runtime", "", nil), ErrBrokerClosed)
}

func TestRedisStream(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Skip("Skipping redis test: " + err.Error())
	}
	defer client.Close()

	topic := "guard.test.runtime." + uuid.NewString()
	defer client.Del(context.Background(), topic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 先创建消费组, 再发布
	require.NoError(t, client.XGroupCreateMkStream(ctx, topic, "g", "$").Err())

	got := make(chan *Message, 1)
	consumer := NewRedisConsumer(client, "g", "c-0")
	go func() {
		_ = consumer.Subscribe(ctx, topic, func(msg *Message) error {
			got <- msg
			return nil
		})
	}()

	producer := NewRedisProducer(client, 1000)
	require.NoError(t, producer.Publish(ctx, topic, "example.com", []byte(`{"command":"consume"}`)))

	select {
	case msg := <-got:
		assert.Equal(t, "example.com", msg.Key)
		assert.JSONEq(t, `{"command":"consume"}`, string(msg.Payload))
	case <-time.After(5 * time.Second):
		t.Fatal("未收到消息")
	}
}
