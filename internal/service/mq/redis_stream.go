package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wallet-guard/pkg/logger"
)

// RedisProducer 实现 Producer 接口 (Redis Streams)
type RedisProducer struct {
	client *redis.Client
	maxLen int64
}

// NewRedisProducer maxLen 为 Stream 近似最大长度, 0 表示不裁剪
func NewRedisProducer(client *redis.Client, maxLen int64) *RedisProducer {
	return &RedisProducer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发送消息到 Redis Stream
func (p *RedisProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	// XADD <topic> [MAXLEN ~ n] * payload <payload> key <key>
	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"payload": payload,
			"key":     key,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		logger.Error("[Redis MQ] Publish Error", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("redis xadd error: %w", err)
	}
	return nil
}

// RedisConsumer 实现 Consumer 接口
type RedisConsumer struct {
	client *redis.Client
	group  string
	name   string
}

// NewRedisConsumer 创建 Redis 消费者
func NewRedisConsumer(client *redis.Client, group, name string) *RedisConsumer {
	return &RedisConsumer{
		client: client,
		group:  group,
		name:   name,
	}
}

// Subscribe 订阅 Redis Stream, 阻塞直到 ctx 取消
func (c *RedisConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	// 1. 创建 Consumer Group (如果不存在)
	// 只消费订阅之后的消息: 重启后不回放旧的请求, 旧请求由 relay 侧超时兜底
	err := c.client.XGroupCreateMkStream(ctx, topic, c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("创建消费者组失败: %w", err)
	}

	logger.Info("[Redis MQ] 开始监听主题", zap.String("topic", topic), zap.String("group", c.group))

	for {
		if ctx.Err() != nil {
			return nil
		}

		// 2. 阻塞读取消息
		// XREADGROUP GROUP <group> <consumer> BLOCK 2000 COUNT 10 STREAMS <topic> >
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{topic, ">"},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()

		if errors.Is(err, redis.Nil) {
			continue // 超时无消息
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("[Redis MQ] 读取消息错误", zap.Error(err))
			time.Sleep(1 * time.Second)
			continue
		}

		// 3. 处理消息
		for _, stream := range streams {
			for _, xMessage := range stream.Messages {
				val, ok := xMessage.Values["payload"].(string)
				if !ok {
					logger.Warn("[Redis MQ] 消息格式错误: payload 缺失", zap.String("id", xMessage.ID))
					c.ack(ctx, topic, xMessage.ID)
					continue
				}
				key, _ := xMessage.Values["key"].(string)

				msg := &Message{
					ID:      xMessage.ID,
					Topic:   topic,
					Key:     key,
					Payload: []byte(val),
				}

				if err := handler(msg); err != nil {
					// 不 ACK, 留在 PEL 中等待人工处理
					logger.Warn("[Redis MQ] 消息处理失败", zap.String("id", xMessage.ID), zap.Error(err))
					continue
				}
				c.ack(ctx, topic, xMessage.ID)
			}
		}
	}
}

func (c *RedisConsumer) ack(ctx context.Context, topic, id string) {
	if err := c.client.XAck(ctx, topic, c.group, id).Err(); err != nil {
		logger.Warn("[Redis MQ] ACK 失败", zap.String("id", id), zap.Error(err))
	}
}

// Close 连接由调用方统一关闭
func (c *RedisConsumer) Close() error {
	return nil
}
