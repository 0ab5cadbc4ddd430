// Package bootstrap 按配置选择存储, 页面总线和运行时消息的实现.
package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wallet-guard/internal/service/mq"
	"wallet-guard/internal/statestore"
	"wallet-guard/pkg/bus"
	"wallet-guard/pkg/config"
	"wallet-guard/pkg/database"
	"wallet-guard/pkg/logger"
	"wallet-guard/pkg/store"
	"wallet-guard/pkg/utils/lock"
)

const streamMaxLen = 10000

// Infra 进程共享的基础设施
type Infra struct {
	Redis    *redis.Client // 任何组件使用 redis 驱动时才连接
	Store    store.Store
	State    *statestore.StateStore
	Bus      bus.Bus
	Producer mq.Producer
	Consumer mq.Consumer
	Locker   lock.DistributedLock // 单实例 (无 Redis) 时为 nil

	closers []func() error
}

// Open 建立全部连接, 出错时已建立的连接会被关闭
func Open(cfg config.Config) (_ *Infra, err error) {
	infra := &Infra{}
	defer func() {
		if err != nil {
			infra.Close()
		}
	}()

	// 1. Redis (按需)
	if cfg.Store.Driver == "redis" || cfg.Bus.Driver == "redis" || cfg.MQ.Driver == "redis" {
		infra.Redis, err = database.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		infra.closers = append(infra.closers, infra.Redis.Close)
		infra.Locker = lock.NewRedisLock(infra.Redis)
	}

	// 2. 可观察存储
	switch cfg.Store.Driver {
	case "redis":
		infra.Store = store.NewRedisStore(infra.Redis, cfg.Store.Prefix+"changes")
	case "memory", "":
		infra.Store = store.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	infra.closers = append(infra.closers, infra.Store.Close)
	infra.State = statestore.New(infra.Store, cfg.Store.Prefix)

	// 3. 页面总线
	switch cfg.Bus.Driver {
	case "redis":
		infra.Bus = bus.NewRedisBus(infra.Redis, cfg.Bus.Prefix)
	case "nats":
		conn, err := bus.ConnectNATS(cfg.NATS.URL, cfg.NATS.Name)
		if err != nil {
			return nil, err
		}
		infra.Bus = bus.NewNATSBus(conn, cfg.Bus.Prefix, true)
	case "local", "":
		infra.Bus = bus.NewLocalBus()
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Bus.Driver)
	}
	infra.closers = append(infra.closers, infra.Bus.Close)

	// 4. 运行时消息
	switch cfg.MQ.Driver {
	case "kafka":
		logger.Info("使用 Kafka 作为运行时消息队列...", zap.Strings("brokers", cfg.Kafka.Brokers))
		producer := mq.NewKafkaProducer(cfg.Kafka.Brokers)
		consumer := mq.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID)
		infra.Producer, infra.Consumer = producer, consumer
		infra.closers = append(infra.closers, producer.Close, consumer.Close)
	case "redis":
		logger.Info("使用 Redis Streams 作为运行时消息队列...")
		consumer := mq.NewRedisConsumer(infra.Redis, cfg.MQ.Group, cfg.MQ.Consumer)
		infra.Producer = mq.NewRedisProducer(infra.Redis, streamMaxLen)
		infra.Consumer = consumer
		infra.closers = append(infra.closers, consumer.Close)
	case "memory", "":
		broker := mq.NewMemoryBroker()
		infra.Producer, infra.Consumer = broker, broker
		infra.closers = append(infra.closers, broker.Close)
	default:
		return nil, fmt.Errorf("unknown mq driver %q", cfg.MQ.Driver)
	}

	logger.Info("基础设施已就绪",
		zap.String("store", cfg.Store.Driver),
		zap.String("bus", cfg.Bus.Driver),
		zap.String("mq", cfg.MQ.Driver))
	return infra, nil
}

// Close 按建立的逆序关闭
func (i *Infra) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			logger.Warn("关闭资源失败", zap.Error(err))
		}
	}
	i.closers = nil
}
