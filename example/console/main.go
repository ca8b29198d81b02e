package main

import (
	"context"
	"fmt"
	"io"
	"os"

	evconsole "github.com/northseadl/evconsole"
)

const (
	eventOne = "test.event1"
	eventTwo = "test.event2"
)

// testObject 演示用领域对象。
type testObject struct{ name string }

func newTestObject() *testObject { return &testObject{name: "Test Object"} }

func (t *testObject) Name() string { return t.name }

// testEvent 包装 testObject 的事件。
type testEvent struct {
	evconsole.BaseEvent
	test *testObject
}

func testOf(e evconsole.Event) *testObject {
	if te, ok := e.(*testEvent); ok {
		return te.test
	}
	return &testObject{}
}

// testSubscriber 在每个事件上挂两个监听器：pre（优先级 10）与 post（优先级 0）。
type testSubscriber struct{ out io.Writer }

func (s testSubscriber) SubscribedEvents() map[string][]evconsole.ListenerSpec {
	return map[string][]evconsole.ListenerSpec{
		eventOne: {
			{Listener: s.preEvent1, Priority: 10},
			{Listener: s.postEvent1, Priority: 0},
		},
		eventTwo: {
			{Listener: s.preEvent2, Priority: 10},
			{Listener: s.postEvent2, Priority: 0},
		},
	}
}

func (s testSubscriber) preEvent1(_ context.Context, e evconsole.Event) error {
	fmt.Fprintf(s.out, "dispatch event %q subscriber preEvent1, get test obj name: %s\n", eventOne, testOf(e).Name())
	return nil
}

func (s testSubscriber) postEvent1(_ context.Context, e evconsole.Event) error {
	fmt.Fprintf(s.out, "dispatch event %q subscriber postEvent1, get test obj name: %s\n", eventOne, testOf(e).Name())
	return nil
}

func (s testSubscriber) preEvent2(_ context.Context, e evconsole.Event) error {
	fmt.Fprintf(s.out, "dispatch event %q subscriber preEvent2, get test obj name: %s\n", eventTwo, testOf(e).Name())
	fmt.Fprintf(s.out, "dispatch event %q subscriber preEvent2 stop the event.\n", eventTwo)
	e.StopPropagation()
	return nil
}

func (s testSubscriber) postEvent2(_ context.Context, e evconsole.Event) error {
	fmt.Fprintf(s.out, "dispatch event %q subscriber postEvent2, get test obj name: %s\n", eventTwo, testOf(e).Name())
	return nil
}

// dispatchCommand 构造 testObject，包装为事件后分发。
func dispatchCommand(out io.Writer, eventName string) evconsole.Command {
	return func(ctx context.Context, _ *evconsole.Console, d *evconsole.Dispatcher) error {
		test := newTestObject()
		fmt.Fprintln(out, test.Name())
		fmt.Fprintf(out, "dispatch event: %s\n", eventName)
		e, err := d.Dispatch(ctx, eventName, &testEvent{test: test})
		if err != nil {
			return err
		}
		if e.IsPropagationStopped() {
			fmt.Fprintln(out, "dispatcher stopped.")
		}
		return nil
	}
}

func run(ctx context.Context, args []string, out io.Writer, opts ...evconsole.Option) error {
	console := evconsole.NewConsole(args)

	var cfg evconsole.Config
	if v, ok := console.Option("config"); ok && !v.Bool() {
		loaded, err := evconsole.LoadConfig(v.Value)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if console.Flag("q") {
		cfg.Logger.Level = "error"
	}

	cli, err := evconsole.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close(ctx) }()
	if err := cli.Start(ctx); err != nil {
		return err
	}

	bus := cli.Bus()
	for _, name := range []string{eventOne, eventTwo} {
		name := name
		err := bus.AddListener(name, func(_ context.Context, e evconsole.Event) error {
			fmt.Fprintf(out, "dispatch event %q listener, get test obj name: %s\n", name, testOf(e).Name())
			return nil
		}, 0)
		if err != nil {
			return err
		}
	}
	if err := bus.AddSubscriber(testSubscriber{out: out}); err != nil {
		return err
	}

	console.SetEventDispatcher(bus)
	if err := console.AddCommands(map[string]evconsole.Command{
		"test:command1": dispatchCommand(out, eventOne),
		"test:command2": dispatchCommand(out, eventTwo),
	}); err != nil {
		return err
	}
	return console.Run(ctx)
}

func main() {
	if err := run(context.Background(), os.Args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
