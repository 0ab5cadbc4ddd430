package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-guard/pkg/config"
)

func TestOpenInMemory(t *testing.T) {
	cfg := config.Default()

	infra, err := Open(cfg)
	require.NoError(t, err)
	defer infra.Close()

	assert.Nil(t, infra.Redis)
	assert.Nil(t, infra.Locker)
	require.NotNil(t, infra.State)

	// 内存 broker 同时充当生产者与消费者
	assert.Same(t, infra.Producer, infra.Consumer)

	id, err := infra.State.ClientID(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestOpenUnknownDriver(t *testing.T) {
	for name, mutate := range map[string]func(*config.Config){
		"store": func(c *config.Config) { c.Store.Driver = "etcd" },
		"bus":   func(c *config.Config) { c.Bus.Driver = "zeromq" },
		"mq":    func(c *config.Config) { c.MQ.Driver = "rabbitmq" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			infra, err := Open(cfg)
			assert.Error(t, err)
			assert.Nil(t, infra)
		})
	}
}
