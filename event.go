package evconsole

import (
	"context"

	"github.com/google/uuid"
)

// Event 在一次分发中传递的事件对象。
// 任一监听器调用 StopPropagation 后，同一次分发中的后续监听器不再执行。
type Event interface {
	StopPropagation()
	IsPropagationStopped() bool
}

// BaseEvent 可嵌入的事件基类，携带传播中断标记、事件名与唯一 ID。
type BaseEvent struct {
	id      string
	name    string
	stopped bool
	remote  bool
}

func (e *BaseEvent) StopPropagation()           { e.stopped = true }
func (e *BaseEvent) IsPropagationStopped() bool { return e.stopped }

// Name 返回最近一次分发时绑定的事件名。
func (e *BaseEvent) Name() string { return e.name }

// ID 首次分发时生成，之后保持不变；经 Bridge 到达的事件沿用发送端的 ID。
func (e *BaseEvent) ID() string { return e.id }

// Remote 表示事件由 Bridge 从 MQ 接收而来。
func (e *BaseEvent) Remote() bool { return e.remote }

func (e *BaseEvent) bind(name string) {
	e.name = name
	if e.id == "" {
		e.id = uuid.NewString()
	}
}

// binder 由嵌入 BaseEvent 的类型自动满足。
type binder interface{ bind(name string) }

// PayloadEvent 携带任意载荷的通用事件。
type PayloadEvent struct {
	BaseEvent
	Payload any `json:"payload"`
}

// NewPayloadEvent 创建携带载荷的事件。
func NewPayloadEvent(payload any) *PayloadEvent { return &PayloadEvent{Payload: payload} }

// Listener 处理事件；返回的错误会中止本次分发并原样返回给调用方。
type Listener func(ctx context.Context, e Event) error

// ListenerSpec 订阅者声明的一条（监听器, 优先级）。
type ListenerSpec struct {
	Listener Listener
	Priority int
}

// Subscriber 一组监听器及其静态订阅声明，注册时解析一次。
type Subscriber interface {
	SubscribedEvents() map[string][]ListenerSpec
}

// EventName 返回事件绑定的名称；未嵌入 BaseEvent 的事件返回空串。
func EventName(e Event) string {
	if n, ok := e.(interface{ Name() string }); ok {
		return n.Name()
	}
	return ""
}

// EventID 返回事件 ID；未嵌入 BaseEvent 的事件返回空串。
func EventID(e Event) string {
	if n, ok := e.(interface{ ID() string }); ok {
		return n.ID()
	}
	return ""
}

func isRemote(e Event) bool {
	r, ok := e.(interface{ Remote() bool })
	return ok && r.Remote()
}
