package evconsole

import "context"

// Middleware 用于 MQ Handler。
type Middleware func(next Handler) Handler

// ListenerMiddleware 用于事件监听器，注册时包装一次。
type ListenerMiddleware func(next Listener) Listener

// CommandMiddleware 用于 Console 命令，执行时包装。
type CommandMiddleware func(next Command) Command

// CronMiddleware 用于 Cron 任务。
type CronMiddleware func(next func(context.Context) error) func(context.Context) error

func chainListener(l Listener, mws []ListenerMiddleware) Listener {
	for i := len(mws) - 1; i >= 0; i-- {
		l = mws[i](l)
	}
	return l
}

func chainHandler(h Handler, mws []Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
