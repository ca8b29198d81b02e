package evconsole

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client 对外统一入口，聚合 Dispatcher/MQ/Relay/Cron。
// 通过 New 构造，按配置选择具体适配器与策略。
type Client interface {
	// Start 启动 Bridge 订阅与 Cron 调度。
	Start(ctx context.Context) error
	// Close 停止订阅与调度并释放 MQ，遵循 ctx 超时。
	Close(ctx context.Context) error

	// Bus 暴露本地事件分发器。
	Bus() *Dispatcher
	// MQ 暴露统一的消息队列抽象。
	MQ() MQ
	// Cron 暴露 Cron 调度。
	Cron() Scheduler
	// Console 解析 args 并默认绑定到 Bus，附带默认命令日志中间件；
	// opts 在默认项之后应用，调用方传入的 WithDispatcher 优先。
	Console(args []string, opts ...ConsoleOption) *Console
}

// New 创建 Client 实例。
func New(ctx context.Context, cfg Config, opts ...Option) (Client, error) {
	c := &client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = NewLogger(cfg.Logger, nil)
	}

	mq, err := newMQ(cfg.MQ, c.logger)
	if err != nil {
		return nil, fmt.Errorf("init mq: %w", err)
	}
	c.mq = mq

	c.bus = NewDispatcher(
		WithDispatcherLogger(c.logger),
		WithListenerMiddleware(logListenerErrors(c.logger)),
		WithListenerMiddleware(c.listenerMws...),
	)

	if len(cfg.Relay.Events) > 0 {
		priority := DefaultRelayPriority
		if cfg.Relay.Priority != nil {
			priority = *cfg.Relay.Priority
		}
		if err := c.bus.AddSubscriber(NewRelay(c.mq, cfg.Namespace, cfg.Relay.Events, priority, c.logger).WithDelay(time.Duration(cfg.Relay.Delay))); err != nil {
			_ = c.mq.Close(ctx)
			return nil, err
		}
	}

	// 幂等中间件（可选启用）：提供 KV 或 Redis 参数即开启
	var bridgeMws []Middleware
	if cfg.Idempotency.enabled() {
		idemCfg := cfg.Idempotency
		if idemCfg.KV == nil {
			kv := NewRedisKV(idemCfg)
			idemCfg.KV = kv
			c.closers = append(c.closers, kv.Close)
		}
		mw, err := NewIdempotencyMiddleware(idemCfg)
		if err != nil {
			_ = c.mq.Close(ctx)
			return nil, err
		}
		bridgeMws = append(bridgeMws, mw)
	}
	c.bridge = NewBridge(c.mq, c.bus, cfg.Namespace, cfg.Relay.Group, c.logger, bridgeMws...)
	c.cron = NewScheduler(c.bus, cfg.Cron, c.logger)
	return c, nil
}

type client struct {
	cfg         Config
	logger      Logger
	listenerMws []ListenerMiddleware

	bus     *Dispatcher
	mq      MQ
	bridge  *Bridge
	cron    Scheduler
	closers []func() error
}

func (c *client) Start(ctx context.Context) error {
	if err := c.bridge.Start(ctx, c.cfg.Relay.Topics...); err != nil {
		return err
	}
	return c.cron.Start(ctx)
}

func (c *client) Close(ctx context.Context) error {
	errs := []error{c.cron.Stop(ctx), c.bridge.Stop(ctx), c.mq.Close(ctx)}
	for _, fn := range c.closers {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

func (c *client) Bus() *Dispatcher { return c.bus }
func (c *client) MQ() MQ           { return c.mq }
func (c *client) Cron() Scheduler  { return c.cron }

func (c *client) Console(args []string, opts ...ConsoleOption) *Console {
	base := []ConsoleOption{WithDispatcher(c.bus)}
	return NewConsole(args, append(base, withDefaultCommandMiddleware(c.logger, opts)...)...)
}

// Option 允许注入替换默认行为（如 Logger）。
type Option func(*client)

// WithLogger 注入自定义日志实现。
func WithLogger(l Logger) Option {
	return func(c *client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithListenerMiddlewares 为 Bus 追加监听器中间件，位于默认日志中间件之后。
func WithListenerMiddlewares(mws ...ListenerMiddleware) Option {
	return func(c *client) { c.listenerMws = append(c.listenerMws, mws...) }
}
