package evconsole

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsToNoopMQ(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, Config{Relay: RelayConfig{Events: []string{"e"}, Topics: []string{"e"}}}, WithLogger(nopLogger{}))
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	defer func() { assert.NoError(t, c.Close(ctx)) }()

	assert.IsType(t, noopMQ{}, c.MQ())
	assert.True(t, c.Bus().HasListeners("e"), "relay listener registered")
	assert.NotNil(t, c.Cron())

	_, err = c.Bus().Dispatch(ctx, "e", NewPayloadEvent("x"))
	assert.NoError(t, err)
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New(context.Background(), Config{MQ: MQConfig{Provider: "kafka"}}, WithLogger(nopLogger{}))
	assert.Error(t, err)
}

func TestNew_InvalidAdapterConfig(t *testing.T) {
	_, err := New(context.Background(), Config{MQ: MQConfig{Provider: MQProviderRabbitMQ}}, WithLogger(nopLogger{}))
	assert.Error(t, err)
	_, err = New(context.Background(), Config{MQ: MQConfig{Provider: MQProviderRedis}}, WithLogger(nopLogger{}))
	assert.Error(t, err)
}

func TestClient_ConsoleBoundToBus(t *testing.T) {
	ctx := context.Background()
	var errorsLogged atomic.Int32
	c, err := New(ctx, Config{}, WithLogger(funcLogger{onError: func() { errorsLogged.Add(1) }}))
	require.NoError(t, err)
	defer func() { _ = c.Close(ctx) }()

	boom := errors.New("boom")
	require.NoError(t, c.Bus().AddListener("e", func(context.Context, Event) error { return boom }, 0))

	con := c.Console([]string{"prog", "app:fire"})
	assert.Same(t, c.Bus(), con.EventDispatcher())
	require.NoError(t, con.AddCommand("app:fire", func(ctx context.Context, _ *Console, d *Dispatcher) error {
		_, err := d.Dispatch(ctx, "e", nil)
		return err
	}))

	assert.Same(t, boom, con.Run(ctx))
	// 监听器失败与命令失败各记录一次
	assert.Equal(t, int32(2), errorsLogged.Load())
}

func TestClient_ConsoleCallerDispatcherWins(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, Config{}, WithLogger(nopLogger{}))
	require.NoError(t, err)
	defer func() { _ = c.Close(ctx) }()

	own := NewDispatcher()
	con := c.Console([]string{"prog"}, WithDispatcher(own))
	assert.Same(t, own, con.EventDispatcher())
}

func TestClient_ListenerMiddlewares(t *testing.T) {
	ctx := context.Background()
	var seen []string
	mw := func(next Listener) Listener {
		return func(ctx context.Context, e Event) error {
			seen = append(seen, EventName(e))
			return next(ctx, e)
		}
	}
	c, err := New(ctx, Config{}, WithLogger(nopLogger{}), WithListenerMiddlewares(mw))
	require.NoError(t, err)
	require.NoError(t, c.Bus().AddListener("e", func(context.Context, Event) error { return nil }, 0))
	_, _ = c.Bus().Dispatch(ctx, "e", nil)
	assert.Equal(t, []string{"e"}, seen)
}

func TestClient_IdempotencyWithInjectedKV(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, Config{Idempotency: IdempotencyConfig{KV: &memKV{}}}, WithLogger(nopLogger{}))
	require.NoError(t, err)
	cl := c.(*client)
	require.Len(t, cl.bridge.mws, 1)
	assert.Empty(t, cl.closers)
}
