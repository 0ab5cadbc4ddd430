package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Store     StoreConfig     `mapstructure:"store"`
	Bus       BusConfig       `mapstructure:"bus"`
	MQ        MQConfig        `mapstructure:"mq"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Guard     GuardConfig     `mapstructure:"guard"`
	Popup     PopupConfig     `mapstructure:"popup"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	Version  string `mapstructure:"version"`   // 当前安装版本, 用于更新提示
	LogLevel string `mapstructure:"log_level"` // debug / info / warn / error
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type NATSConfig struct {
	URL  string `mapstructure:"url"`
	Name string `mapstructure:"name"`
}

// StoreConfig 可观察 KV 存储 (扩展存储的替代)
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "memory" or "redis"
	Prefix string `mapstructure:"prefix"`
}

// BusConfig 页面事件总线
type BusConfig struct {
	Driver string `mapstructure:"driver"` // "local" / "redis" / "nats"
	Prefix string `mapstructure:"prefix"`
}

// MQConfig content script 与 background 之间的运行时消息
type MQConfig struct {
	Driver   string `mapstructure:"driver"` // "memory" / "redis" / "kafka"
	Topic    string `mapstructure:"topic"`
	Group    string `mapstructure:"group"`
	Consumer string `mapstructure:"consumer"`
}

type SimulatorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GuardConfig struct {
	SupportedChains    []string      `mapstructure:"supported_chains"`
	KnownMarketplaces  []string      `mapstructure:"known_marketplaces"`
	VerdictTimeout     time.Duration `mapstructure:"verdict_timeout"`
	DiscoveryInterval  time.Duration `mapstructure:"discovery_interval"`
	DiscoveryGrace     time.Duration `mapstructure:"discovery_grace"`
	TrackTTL           time.Duration `mapstructure:"track_ttl"`
	BypassRate         float64       `mapstructure:"bypass_rate"` // 每秒允许的 bypass 检查次数 (按 hostname)
	BypassBurst        int           `mapstructure:"bypass_burst"`
	JanitorSpec        string        `mapstructure:"janitor_spec"`
	Retention          time.Duration `mapstructure:"retention"`
	Hostnames          []string      `mapstructure:"hostnames"` // 进程内 relay 服务的页面
	UpdateCheckEnabled bool          `mapstructure:"update_check_enabled"`
}

type PopupConfig struct {
	Width        int `mapstructure:"width"`
	Height       int `mapstructure:"height"`
	BypassWidth  int `mapstructure:"bypass_width"`
	BypassHeight int `mapstructure:"bypass_height"`
}

var Global Config

// Init 读取 config.yaml 与环境变量 (例如 GUARD_VERDICT_TIMEOUT)
func Init() {
	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := v.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Default 返回只包含默认值的配置, 测试和 CLI 使用
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_port", "8080")
	v.SetDefault("app.version", "0.1.0")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "wallet_guard_coordinator")

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.name", "wallet-guard")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.prefix", "pocket.store.")

	v.SetDefault("bus.driver", "local")
	v.SetDefault("bus.prefix", "guard.page.")

	v.SetDefault("mq.driver", "memory")
	v.SetDefault("mq.topic", "guard.runtime")
	v.SetDefault("mq.group", "guard_coordinator")
	v.SetDefault("mq.consumer", "coordinator-0")

	v.SetDefault("simulator.base_url", "http://localhost:9090/v1")
	v.SetDefault("simulator.timeout", 30*time.Second)

	v.SetDefault("guard.supported_chains", []string{"0x1", "0x89", "0xa4b1", "0x38"})
	v.SetDefault("guard.known_marketplaces", []string{
		"0x00000000006c3852cbef3e08e8df289169ede581", // Seaport 1.1
		"0x00000000000001ad428e4906ae43d8f9852d0dd6", // Seaport 1.4
		"0x000000000000ad05ccc4f10045630fb830b95127", // Blur
		"0x39da41747a83aee658334415666f3ef92dd0d541", // Blur
		"0x74312363e45dcaba76c59ec49a7aa8a65a67eed3", // X2Y2
		"0x59728544b08ab483533076417fbbb2fd0b17ce3a", // LooksRare
	})
	v.SetDefault("guard.verdict_timeout", 10*time.Minute)
	v.SetDefault("guard.discovery_interval", 100*time.Millisecond)
	v.SetDefault("guard.discovery_grace", 5*time.Second)
	v.SetDefault("guard.track_ttl", 30*time.Minute)
	v.SetDefault("guard.bypass_rate", 1.0)
	v.SetDefault("guard.bypass_burst", 3)
	v.SetDefault("guard.janitor_spec", "@every 1m")
	v.SetDefault("guard.retention", 30*time.Minute)
	v.SetDefault("guard.hostnames", []string{"localhost"})
	v.SetDefault("guard.update_check_enabled", true)

	v.SetDefault("popup.width", 420)
	v.SetDefault("popup.height", 760)
	v.SetDefault("popup.bypass_width", 760)
	v.SetDefault("popup.bypass_height", 760)
}
