package evconsole

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DelayMode 用于 RabbitMQ 延时消息兼容模式。
type DelayMode string

const (
	DelayModeStandard DelayMode = "standard" // 使用 x-delayed-message 插件（x-delay）
	DelayModeAliyun   DelayMode = "aliyun"   // 使用阿里云原生（delay）
)

// Config 为包总配置，应用通过 New 传入，或由 LoadConfig 从 TOML 文件读取。
type Config struct {
	// Namespace 事件转发到 MQ 时的 topic 前缀，例如 "billing" -> "billing.order.created"
	Namespace   string            `toml:"namespace"`
	MQ          MQConfig          `toml:"mq"`
	Relay       RelayConfig       `toml:"relay"`
	Cron        CronConfig        `toml:"cron"`
	Logger      LoggerConfig      `toml:"logger"`
	Idempotency IdempotencyConfig `toml:"idempotency"`
}

type MQProvider string

const (
	MQProviderNone     MQProvider = ""
	MQProviderRabbitMQ MQProvider = "rabbitmq"
	MQProviderRedis    MQProvider = "redis"
)

type MQConfig struct {
	Provider MQProvider     `toml:"provider"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
	Redis    RedisConfig    `toml:"redis"`
	// 消费失败的重投策略（RabbitMQ）
	Retry RetryConfig `toml:"retry"`
}

type RabbitMQConfig struct {
	URI                 string `toml:"uri"`
	Exchange            string `toml:"exchange"`
	DelayedExchange     string `toml:"delayed_exchange"`
	Prefetch            int    `toml:"prefetch"`
	ConsumerConcurrency int    `toml:"consumer_concurrency"`
	// DelayMode 选择延时消息兼容模式；默认 standard。
	DelayMode DelayMode `toml:"delay_mode"`
}

type RedisConfig struct {
	Addr                string `toml:"addr"`
	Username            string `toml:"username"`
	Password            string `toml:"password"`
	DB                  int    `toml:"db"`
	ConsumerConcurrency int    `toml:"consumer_concurrency"`
}

type RetryConfig struct {
	Base       Duration `toml:"base"`
	Factor     float64  `toml:"factor"`
	MaxRetries int      `toml:"max_retries"`
}

// RelayConfig 控制本地事件与 MQ 之间的转发。
type RelayConfig struct {
	// Events 本地分发后转发到 MQ 的事件名
	Events []string `toml:"events"`
	// Topics 从 MQ 消费并在本地分发的事件名
	Topics []string `toml:"topics"`
	// Group 消费组，默认 "evconsole"
	Group string `toml:"group"`
	// Priority 转发监听器的优先级，默认 DefaultRelayPriority
	Priority *int `toml:"priority"`
	// Delay 大于 0 时以延时消息转发
	Delay Duration `toml:"delay"`
}

type CronConfig struct {
	Timezone string `toml:"timezone"`
}

type LoggerConfig struct {
	Level string `toml:"level"`
}

// Duration 在 TOML 中按 time.ParseDuration 格式书写，例如 "30s"、"1h30m"。
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// LoadConfig 从 TOML 文件读取配置。
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
