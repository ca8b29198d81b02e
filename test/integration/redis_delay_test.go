package integration

import (
	"context"
	"testing"
	"time"

	evc "github.com/northseadl/evconsole"
)

func TestRedis_DelayedMessage_Flow(t *testing.T) {
	addr := requireEnv(t, "EVC_REDIS_ADDR")

	cfg := evc.Config{MQ: evc.MQConfig{Provider: evc.MQProviderRedis, Redis: evc.RedisConfig{Addr: addr}}}
	ctx := context.Background()
	client, err := evc.New(ctx, cfg)
	if err != nil { t.Fatalf("new: %v", err) }
	defer client.Close(ctx)

	topic := "it.redis.delay"
	recv := make(chan time.Time, 1)
	stop, err := client.MQ().Consume(ctx, topic, "g1", func(ctx context.Context, m evc.Message) error { recv <- time.Now(); return nil })
	if err != nil { t.Fatalf("consume: %v", err) }
	defer stop(ctx)

	start := time.Now()
	delay := 1200 * time.Millisecond
	if err := client.MQ().PublishDelay(ctx, evc.Message{Topic: topic, Body: []byte("hello")}, delay); err != nil { t.Fatalf("publishDelay: %v", err) }

	select {
	case got := <-recv:
		elapsed := got.Sub(start)
		if elapsed < delay { t.Fatalf("too early: %v < %v", elapsed, delay) }
		if elapsed > delay+3*time.Second { t.Fatalf("too late: %v > %v", elapsed, delay+3*time.Second) }
	case <-time.After(6 * time.Second):
		t.Fatalf("timeout waiting delayed message")
	}
}

// 定时分发的事件经 Redis 转发后由同一 Client 的 Bridge 收回。
func TestRedis_ScheduledRelay(t *testing.T) {
	addr := requireEnv(t, "EVC_REDIS_ADDR")
	cfg := evc.Config{
		Namespace: "it.cron",
		MQ:        evc.MQConfig{Provider: evc.MQProviderRedis, Redis: evc.RedisConfig{Addr: addr}},
		Relay:     evc.RelayConfig{Events: []string{"tick"}, Topics: []string{"tick"}},
	}
	ctx := context.Background()
	client, err := evc.New(ctx, cfg)
	if err != nil { t.Fatalf("new: %v", err) }
	defer client.Close(ctx)

	remote := make(chan struct{}, 8)
	_ = client.Bus().AddListener("tick", func(ctx context.Context, e evc.Event) error {
		if e.(*evc.PayloadEvent).Remote() { select { case remote <- struct{}{}: default: } }
		return nil
	}, 0)
	if _, err := client.Cron().AddDispatch("* * * * * *", "tick", func() evc.Event { return evc.NewPayloadEvent("t") }); err != nil { t.Fatalf("add: %v", err) }
	if err := client.Start(ctx); err != nil { t.Fatalf("start: %v", err) }

	select { case <-remote: case <-time.After(6 * time.Second): t.Fatalf("no relayed tick") }
}
