package evconsole

import "context"

// logListenerErrors 默认监听器中间件：记录失败，错误原样向上返回。
func logListenerErrors(logger Logger) ListenerMiddleware {
	return func(next Listener) Listener {
		return func(ctx context.Context, e Event) error {
			err := next(ctx, e)
			if err != nil {
				logger.Error(ctx, "listener failed", "event", EventName(e), "id", EventID(e), "error", err)
			}
			return err
		}
	}
}

// logCommands 默认命令中间件：记录开始与失败。
func logCommands(logger Logger) CommandMiddleware {
	return func(next Command) Command {
		return func(ctx context.Context, c *Console, d *Dispatcher) error {
			name := c.ExecutingCommand()
			logger.Info(ctx, "run command", "command", name)
			err := next(ctx, c, d)
			if err != nil {
				logger.Error(ctx, "command failed", "command", name, "error", err)
			}
			return err
		}
	}
}

// withDefaultCommandMiddleware 默认中间件放在调用方中间件之前，避免覆盖调用方定制行为。
func withDefaultCommandMiddleware(logger Logger, opts []ConsoleOption) []ConsoleOption {
	return append([]ConsoleOption{WithCommandMiddleware(logCommands(logger))}, opts...)
}
