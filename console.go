package evconsole

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Command 由 Console.Run 调用，入参为当前 Console 与其事件分发器。
type Command func(ctx context.Context, c *Console, d *Dispatcher) error

// Console 解析命令行参数，并依次执行参数中出现的默认命令（形如 "app:cmd"）。
// 每个 Console 仅对应一次参数解析，不跨批次复用。
type Console struct {
	commands        map[string]Command
	defaultCommands []string
	options         map[string]OptionValue
	flags           map[string]bool
	arguments       []string

	dispatcher *Dispatcher
	executing  string

	mws []CommandMiddleware
}

// ConsoleOption 定制 Console，在参数解析之后应用。
type ConsoleOption func(*Console)

// WithDispatcher 指定命令使用的事件分发器。
func WithDispatcher(d *Dispatcher) ConsoleOption {
	return func(c *Console) { c.dispatcher = d }
}

// WithCommands 批量绑定命令；nil 命令被忽略，需校验请使用 AddCommands。
func WithCommands(cmds map[string]Command) ConsoleOption {
	return func(c *Console) {
		for name, cmd := range cmds {
			if cmd != nil {
				c.commands[name] = cmd
			}
		}
	}
}

// WithCommandMiddleware 追加命令中间件。
func WithCommandMiddleware(mws ...CommandMiddleware) ConsoleOption {
	return func(c *Console) { c.mws = append(c.mws, mws...) }
}

// NewConsole 解析 args（args[0] 为程序名）。未指定分发器时使用新建的空分发器。
func NewConsole(args []string, opts ...ConsoleOption) *Console {
	p := parseArgs(args)
	c := &Console{
		commands:        make(map[string]Command, len(p.commands)),
		defaultCommands: p.commands,
		options:         p.options,
		flags:           p.flags,
		arguments:       p.arguments,
	}
	for _, name := range p.commands {
		c.commands[name] = notCallable
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = NewDispatcher()
	}
	return c
}

// notCallable 占位实现：参数中出现但从未绑定的命令。
func notCallable(_ context.Context, c *Console, _ *Dispatcher) error {
	return &NotCallableError{Command: c.ExecutingCommand()}
}

// AddCommand 绑定命令名与实现；cmd 为 nil 时返回 *NotCallableError。
func (c *Console) AddCommand(name string, cmd Command) error {
	if name == "" {
		return fmt.Errorf("command name empty")
	}
	if cmd == nil {
		return &NotCallableError{Command: name}
	}
	c.commands[name] = cmd
	return nil
}

// AddCommands 批量绑定，遇到第一个错误即返回。
func (c *Console) AddCommands(cmds map[string]Command) error {
	names := slices.Sorted(maps.Keys(cmds))
	for _, name := range names {
		if err := c.AddCommand(name, cmds[name]); err != nil {
			return err
		}
	}
	return nil
}

// Run 按解析顺序执行默认命令；任一命令失败即中止并返回其错误。
func (c *Console) Run(ctx context.Context) error {
	for _, name := range c.defaultCommands {
		if err := c.execute(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Console) execute(ctx context.Context, name string) error {
	cmd, ok := c.commands[name]
	if !ok {
		cmd = notCallable
	}
	for i := len(c.mws) - 1; i >= 0; i-- {
		cmd = c.mws[i](cmd)
	}
	c.executing = name
	defer func() { c.executing = "" }()
	return cmd(ctx, c, c.dispatcher)
}

// ExecutingCommand 返回正在执行的命令名，未执行时为空串。
func (c *Console) ExecutingCommand() string { return c.executing }

// SetEventDispatcher 替换命令使用的事件分发器。
func (c *Console) SetEventDispatcher(d *Dispatcher) *Console {
	c.dispatcher = d
	return c
}

// EventDispatcher 返回命令使用的事件分发器。
func (c *Console) EventDispatcher() *Dispatcher { return c.dispatcher }

// Option 返回长选项的值。
func (c *Console) Option(name string) (OptionValue, bool) {
	v, ok := c.options[name]
	return v, ok
}

// Options 返回全部长选项的副本。
func (c *Console) Options() map[string]OptionValue { return maps.Clone(c.options) }

// Flag 判断短标志是否出现。
func (c *Console) Flag(name string) bool { return c.flags[name] }

// Flags 返回已设置的短标志，按字典序。
func (c *Console) Flags() []string { return slices.Sorted(maps.Keys(c.flags)) }

// Arguments 返回位置参数。
func (c *Console) Arguments() []string { return slices.Clone(c.arguments) }

// DefaultCommands 返回参数中出现的命令名，按出现顺序。
func (c *Console) DefaultCommands() []string { return slices.Clone(c.defaultCommands) }
