package evconsole

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Dispatcher 进程内事件分发器：事件名 -> 按优先级排列的监听器。
// 优先级高者先执行，同优先级按注册顺序；注册只增不减。
//
// 线程安全：注册与分发可并发调用，分发本身在调用方 goroutine 同步执行。
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]listenerEntry
	sorted    map[string][]Listener
	seq       uint64

	mws    []ListenerMiddleware
	logger Logger
}

type listenerEntry struct {
	priority int
	seq      uint64
	fn       Listener
}

// DispatcherOption 定制 Dispatcher。
type DispatcherOption func(*Dispatcher)

// WithListenerMiddleware 追加监听器中间件，对之后注册的监听器生效。
func WithListenerMiddleware(mws ...ListenerMiddleware) DispatcherOption {
	return func(d *Dispatcher) { d.mws = append(d.mws, mws...) }
}

// WithDispatcherLogger 注入日志实现。
func WithDispatcherLogger(l Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher 创建空的分发器。
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		listeners: make(map[string][]listenerEntry),
		sorted:    make(map[string][]Listener),
		logger:    nopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddListener 在 eventName 下以 priority 追加监听器。
func (d *Dispatcher) AddListener(eventName string, l Listener, priority int) error {
	if l == nil {
		return fmt.Errorf("add listener %q: %w", eventName, ErrNilListener)
	}
	wrapped := chainListener(l, d.mws)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.listeners[eventName] = append(d.listeners[eventName], listenerEntry{priority: priority, seq: d.seq, fn: wrapped})
	delete(d.sorted, eventName)
	return nil
}

// AddSubscriber 按订阅者声明注册全部监听器；任一声明非法则返回错误，之前的声明已生效。
func (d *Dispatcher) AddSubscriber(s Subscriber) error {
	if s == nil {
		return fmt.Errorf("add subscriber: nil subscriber")
	}
	events := s.SubscribedEvents()
	// 按事件名排序注册
	names := make([]string, 0, len(events))
	for name := range events {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		for _, spec := range events[name] {
			if err := d.AddListener(name, spec.Listener, spec.Priority); err != nil {
				return fmt.Errorf("subscriber %T: %w", s, err)
			}
		}
	}
	return nil
}

// Dispatch 将事件依次交给 eventName 下的监听器。
// 每个监听器执行后检查传播标记，已中断则立即返回；监听器出错则中止并原样返回错误。
// event 为 nil（含值为 nil 的指针）时使用新的 BaseEvent。
func (d *Dispatcher) Dispatch(ctx context.Context, eventName string, event Event) (Event, error) {
	if isNilEvent(event) {
		event = &BaseEvent{}
	}
	if b, ok := event.(binder); ok {
		b.bind(eventName)
	}
	for _, l := range d.Listeners(eventName) {
		if err := l(ctx, event); err != nil {
			return event, err
		}
		if event.IsPropagationStopped() {
			d.logger.Info(ctx, "event propagation stopped", "event", eventName)
			return event, nil
		}
	}
	return event, nil
}

func isNilEvent(e Event) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// Listeners 返回 eventName 下按执行顺序排列的监听器副本。
func (d *Dispatcher) Listeners(eventName string) []Listener {
	d.mu.RLock()
	cached, ok := d.sorted[eventName]
	d.mu.RUnlock()
	if ok {
		return slices.Clone(cached)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.sorted[eventName]; ok {
		return slices.Clone(cached)
	}
	entries := slices.Clone(d.listeners[eventName])
	if len(entries) == 0 {
		return nil
	}
	slices.SortStableFunc(entries, func(a, b listenerEntry) int {
		if c := cmp.Compare(b.priority, a.priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]Listener, len(entries))
	for i, e := range entries {
		out[i] = e.fn
	}
	d.sorted[eventName] = out
	return slices.Clone(out)
}

// HasListeners 判断 eventName 下是否有监听器。
func (d *Dispatcher) HasListeners(eventName string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[eventName]) > 0
}
