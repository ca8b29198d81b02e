package evconsole

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memMQ 同步投递的内存 MQ。
type memMQ struct {
	mu        sync.Mutex
	published []Message
	delays    []time.Duration
	handlers  map[string][]Handler
	failPub   error
}

func newMemMQ() *memMQ { return &memMQ{handlers: map[string][]Handler{}} }

func (m *memMQ) Publish(ctx context.Context, msg Message) error {
	if m.failPub != nil {
		return m.failPub
	}
	m.mu.Lock()
	m.published = append(m.published, msg)
	hs := append([]Handler(nil), m.handlers[msg.Topic]...)
	m.mu.Unlock()
	for _, h := range hs {
		if err := h(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *memMQ) PublishDelay(ctx context.Context, msg Message, delay time.Duration) error {
	m.mu.Lock()
	m.delays = append(m.delays, delay)
	m.mu.Unlock()
	return m.Publish(ctx, msg)
}

func (m *memMQ) Consume(_ context.Context, topic, _ string, handler Handler, mws ...Middleware) (func(context.Context) error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = append(m.handlers[topic], chainHandler(handler, mws))
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, topic)
		return nil
	}, nil
}

func (m *memMQ) Close(context.Context) error { return nil }

type orderPlaced struct {
	BaseEvent
	OrderID string `json:"order_id"`
}

func TestRelay_ForwardsAfterLocalListeners(t *testing.T) {
	mq := newMemMQ()
	d := NewDispatcher()
	require.NoError(t, d.AddSubscriber(NewRelay(mq, "shop", []string{"order.placed"}, DefaultRelayPriority, nil)))

	e := &orderPlaced{OrderID: "o-1"}
	_, err := d.Dispatch(context.Background(), "order.placed", e)
	require.NoError(t, err)

	require.Len(t, mq.published, 1)
	msg := mq.published[0]
	assert.Equal(t, "shop.order.placed", msg.Topic)
	assert.Equal(t, e.ID(), msg.Key)
	assert.Equal(t, "order.placed", msg.Headers[headerEvent])

	var env envelope
	require.NoError(t, json.Unmarshal(msg.Body, &env))
	assert.Equal(t, "order.placed", env.Name)
	assert.JSONEq(t, `{"order_id":"o-1"}`, string(env.Data))
}

func TestRelay_WithDelayUsesDelayedPublish(t *testing.T) {
	mq := newMemMQ()
	d := NewDispatcher()
	require.NoError(t, d.AddSubscriber(NewRelay(mq, "", []string{"e"}, DefaultRelayPriority, nil).WithDelay(3*time.Second)))
	require.NoError(t, d.AddSubscriber(NewRelay(mq, "now", []string{"e"}, DefaultRelayPriority, nil)))

	_, err := d.Dispatch(context.Background(), "e", nil)
	require.NoError(t, err)
	assert.Len(t, mq.published, 2)
	assert.Equal(t, []time.Duration{3 * time.Second}, mq.delays)
}

func TestRelay_SkippedWhenPropagationStopped(t *testing.T) {
	mq := newMemMQ()
	d := NewDispatcher()
	require.NoError(t, d.AddSubscriber(NewRelay(mq, "", []string{"e"}, DefaultRelayPriority, nil)))
	require.NoError(t, d.AddListener("e", func(ctx context.Context, e Event) error { e.StopPropagation(); return nil }, 0))

	_, err := d.Dispatch(context.Background(), "e", nil)
	require.NoError(t, err)
	assert.Empty(t, mq.published)
}

func TestRelay_PublishErrorPropagates(t *testing.T) {
	mq := newMemMQ()
	mq.failPub = errors.New("down")
	d := NewDispatcher()
	require.NoError(t, d.AddSubscriber(NewRelay(mq, "", []string{"e"}, 0, nil)))
	_, err := d.Dispatch(context.Background(), "e", NewPayloadEvent(1))
	assert.ErrorIs(t, err, mq.failPub)
}

func TestBridge_RoundTrip(t *testing.T) {
	mq := newMemMQ()
	ctx := context.Background()

	sender := NewDispatcher()
	require.NoError(t, sender.AddSubscriber(NewRelay(mq, "ns", []string{"greeting"}, DefaultRelayPriority, nil)))

	receiver := NewDispatcher()
	var got *PayloadEvent
	require.NoError(t, receiver.AddListener("greeting", func(ctx context.Context, e Event) error {
		got = e.(*PayloadEvent)
		return nil
	}, 0))
	bridge := NewBridge(mq, receiver, "ns", "", nil)
	require.NoError(t, bridge.Start(ctx, "greeting"))

	sent := NewPayloadEvent(map[string]string{"msg": "hello"})
	_, err := sender.Dispatch(ctx, "greeting", sent)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.True(t, got.Remote())
	assert.Equal(t, sent.ID(), got.ID())
	assert.Equal(t, "greeting", got.Name())
	raw, ok := got.Payload.(jsoniter.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"msg":"hello"}`, string(raw))

	require.NoError(t, bridge.Stop(ctx))
	got = nil
	_, _ = sender.Dispatch(ctx, "greeting", NewPayloadEvent("again"))
	assert.Nil(t, got)
}

func TestBridge_RemoteEventsAreNotRelayedAgain(t *testing.T) {
	mq := newMemMQ()
	ctx := context.Background()
	d := NewDispatcher()
	require.NoError(t, d.AddSubscriber(NewRelay(mq, "", []string{"loop"}, DefaultRelayPriority, nil)))
	count := 0
	require.NoError(t, d.AddListener("loop", func(context.Context, Event) error { count++; return nil }, 0))
	require.NoError(t, NewBridge(mq, d, "", "g", nil).Start(ctx, "loop"))

	_, err := d.Dispatch(ctx, "loop", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count) // 本地一次 + 桥接回来一次
	assert.Len(t, mq.published, 1)
}

func TestBridge_DropsUndecodableMessages(t *testing.T) {
	d := NewDispatcher()
	b := NewBridge(newMemMQ(), d, "", "", nil)
	assert.NoError(t, b.handle(context.Background(), Message{Topic: "x", Body: []byte("not json")}))
	assert.NoError(t, b.handle(context.Background(), Message{Topic: "x", Body: []byte(`{"id":"1"}`)}))
}

func TestDecodeEvent_NameFromHeader(t *testing.T) {
	name, e, err := decodeEvent(Message{Body: []byte(`{"id":"abc","data":1}`), Headers: map[string]string{headerEvent: "h"}})
	require.NoError(t, err)
	assert.Equal(t, "h", name)
	assert.Equal(t, "abc", e.ID())
}
