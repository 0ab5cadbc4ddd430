package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DistributedLock 多个 guard-server 实例之间的互斥 (janitor 等定时任务)
type DistributedLock interface {
	// Acquire 尝试获取锁, 已被占用时返回 (false, nil)
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release 释放自己持有的锁, 已过期或被他人持有时什么也不做
	Release(ctx context.Context, key string) error
}

// releaseScript 只删除 value 等于自己 owner 的 key
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock 基于 SET NX PX, value 为实例 owner
type RedisLock struct {
	client *redis.Client
	owner  string
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client, owner: uuid.NewString()}
}

// Owner 当前实例写入锁的值
func (l *RedisLock) Owner() string { return l.owner }

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "lock:"+key, l.owner, ttl).Result()
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.client, []string{"lock:" + key}, l.owner).Err()
}
