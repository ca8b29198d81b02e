package evconsole

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Message 为统一消息结构。
type Message struct {
	Topic   string
	Key     string
	Body    []byte
	Headers map[string]string
}

// Handler 处理 MQ 消息。
type Handler func(ctx context.Context, msg Message) error

// RetryPolicy 定义重试策略。
type RetryPolicy interface {
	NextBackoff(attempt int) (time.Duration, bool)
}

// Producer 统一发布接口。
type Producer interface {
	Publish(ctx context.Context, msg Message) error
	PublishDelay(ctx context.Context, msg Message, delay time.Duration) error
}

// Consumer 统一消费接口。
type Consumer interface {
	// Consume 订阅 topic，group 为消费组；返回停止函数。
	Consume(ctx context.Context, topic, group string, handler Handler, mws ...Middleware) (stop func(context.Context) error, err error)
}

// MQ 聚合 Producer 与 Consumer，并暴露 Close 以释放资源。
type MQ interface {
	Producer
	Consumer
	Close(ctx context.Context) error
}

// ExponentialBackoff 指数回退；attempt 从 0 开始。
type ExponentialBackoff struct {
	Base       time.Duration
	Factor     float64
	MaxRetries int
}

func newBackoff(cfg RetryConfig) ExponentialBackoff {
	b := ExponentialBackoff{Base: time.Duration(cfg.Base), Factor: cfg.Factor, MaxRetries: cfg.MaxRetries}
	if b.Base <= 0 {
		b.Base = time.Second
	}
	if b.Factor <= 0 {
		b.Factor = 2.0
	}
	return b
}

func (e ExponentialBackoff) NextBackoff(attempt int) (time.Duration, bool) {
	if attempt >= e.MaxRetries {
		return 0, false
	}
	d := time.Duration(float64(e.Base) * math.Pow(e.Factor, float64(attempt)))
	return d, true
}

// newMQ 按 Provider 装配 MQ；未配置时返回 noop 实现。
func newMQ(cfg MQConfig, logger Logger) (MQ, error) {
	switch cfg.Provider {
	case MQProviderRabbitMQ:
		mode := cfg.RabbitMQ.DelayMode
		if mode == "" {
			mode = DelayModeStandard
		}
		return newRabbitMQAdapter(cfg.RabbitMQ, mode, newBackoff(cfg.Retry), logger)
	case MQProviderRedis:
		return newRedisAdapter(cfg.Redis, logger)
	case MQProviderNone:
		return newNoopMQ(), nil
	default:
		return nil, fmt.Errorf("unsupported mq provider: %s", cfg.Provider)
	}
}

// ---- no-op 默认实现：未配置 MQ 时转发静默丢弃 ----

type noopMQ struct{}

func newNoopMQ() MQ { return noopMQ{} }

func (noopMQ) Publish(ctx context.Context, msg Message) error                           { return nil }
func (noopMQ) PublishDelay(ctx context.Context, msg Message, delay time.Duration) error { return nil }
func (noopMQ) Consume(ctx context.Context, topic, group string, handler Handler, mws ...Middleware) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
func (noopMQ) Close(ctx context.Context) error { return nil }
