package evconsole

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultRelayPriority 转发监听器默认排在最后，仅在未被中断传播时转发。
const DefaultRelayPriority = -1000

// Relay 将本地分发的事件发布到 MQ，作为订阅者注册到 Dispatcher。
// 由 Bridge 从 MQ 收到的事件不会再次转发。
type Relay struct {
	producer  Producer
	namespace string
	events    []string
	priority  int
	delay     time.Duration
	logger    Logger
}

// NewRelay 为 events 中的每个事件名转发到 <namespace>.<eventName>。
func NewRelay(p Producer, namespace string, events []string, priority int, logger Logger) *Relay {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Relay{producer: p, namespace: namespace, events: events, priority: priority, logger: logger}
}

// WithDelay 使转发改用延时消息，delay <= 0 时立即发布。
func (r *Relay) WithDelay(delay time.Duration) *Relay {
	r.delay = delay
	return r
}

func (r *Relay) SubscribedEvents() map[string][]ListenerSpec {
	m := make(map[string][]ListenerSpec, len(r.events))
	for _, name := range r.events {
		m[name] = append(m[name], ListenerSpec{Listener: r.forward(name), Priority: r.priority})
	}
	return m
}

func (r *Relay) forward(eventName string) Listener {
	return func(ctx context.Context, e Event) error {
		if isRemote(e) {
			return nil
		}
		msg, err := encodeEvent(r.namespace, eventName, e)
		if err != nil {
			return err
		}
		if r.delay > 0 {
			err = r.producer.PublishDelay(ctx, msg, r.delay)
		} else {
			err = r.producer.Publish(ctx, msg)
		}
		if err != nil {
			return fmt.Errorf("relay %s: %w", eventName, err)
		}
		r.logger.Info(ctx, "event relayed", "event", eventName, "topic", msg.Topic, "id", msg.Key)
		return nil
	}
}

// Bridge 消费 MQ 上的事件并在本地 Dispatcher 中分发。
type Bridge struct {
	consumer   Consumer
	dispatcher *Dispatcher
	namespace  string
	group      string
	mws        []Middleware
	logger     Logger

	mu    sync.Mutex
	stops []func(context.Context) error
}

// NewBridge 创建 Bridge；mws 作用于每条收到的消息（例如幂等中间件）。
func NewBridge(c Consumer, d *Dispatcher, namespace, group string, logger Logger, mws ...Middleware) *Bridge {
	if group == "" {
		group = "evconsole"
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Bridge{consumer: c, dispatcher: d, namespace: namespace, group: group, mws: mws, logger: logger}
}

// Start 订阅 eventNames 对应的 topic；任一订阅失败时停止已建立的订阅。
func (b *Bridge) Start(ctx context.Context, eventNames ...string) error {
	for _, name := range eventNames {
		stop, err := b.consumer.Consume(ctx, topicFor(b.namespace, name), b.group, b.handle, b.mws...)
		if err != nil {
			return errors.Join(fmt.Errorf("bridge subscribe %s: %w", name, err), b.Stop(ctx))
		}
		b.mu.Lock()
		b.stops = append(b.stops, stop)
		b.mu.Unlock()
	}
	return nil
}

// Stop 停止全部订阅。
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	stops := b.stops
	b.stops = nil
	b.mu.Unlock()
	var errs []error
	for _, s := range stops {
		errs = append(errs, s(ctx))
	}
	return errors.Join(errs...)
}

func (b *Bridge) handle(ctx context.Context, m Message) error {
	name, e, err := decodeEvent(m)
	if err != nil {
		b.logger.Error(ctx, "bridge drop message", "topic", m.Topic, "error", err)
		return nil
	}
	_, err = b.dispatcher.Dispatch(ctx, name, e)
	return err
}
