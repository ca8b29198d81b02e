package evconsole

import "context"

// Scheduler 提供基于 Cron 表达式（秒级，6 段）的定时任务与定时事件分发。
type Scheduler interface {
	Add(spec string, name string, fn func(context.Context) error, mws ...CronMiddleware) (id string, err error)
	// AddDispatch 按 spec 定时分发事件；factory 每次触发创建新事件，为 nil 时分发 BaseEvent。
	AddDispatch(spec string, eventName string, factory func() Event, mws ...CronMiddleware) (id string, err error)
	Remove(id string) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
