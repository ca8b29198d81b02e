package integration

import (
	"context"
	"os"
	"testing"
	"time"

	evc "github.com/northseadl/evconsole"
)

func requireEnv(t *testing.T, k string) string {
	v := os.Getenv(k)
	if v == "" { t.Skipf("env %s not set; skipping integration", k) }
	return v
}

func rabbitConfig(t *testing.T) evc.Config {
	uri := requireEnv(t, "EVC_RABBITMQ_URI")
	ex := requireEnv(t, "EVC_RABBITMQ_EXCHANGE")
	return evc.Config{MQ: evc.MQConfig{Provider: evc.MQProviderRabbitMQ, RabbitMQ: evc.RabbitMQConfig{URI: uri, Exchange: ex, DelayedExchange: os.Getenv("EVC_RABBITMQ_DELAYED_EXCHANGE")}}}
}

func TestRabbitMQ_EndToEnd(t *testing.T) {
	cfg := rabbitConfig(t)
	ctx := context.Background()
	client, err := evc.New(ctx, cfg)
	if err != nil { t.Fatalf("new: %v", err) }
	defer client.Close(ctx)

	topic := "it.evc.basic"
	done := make(chan struct{})
	stop, err := client.MQ().Consume(ctx, topic, "g1", func(ctx context.Context, m evc.Message) error { close(done); return nil })
	if err != nil { t.Fatalf("consume: %v", err) }
	defer stop(ctx)
	if err := client.MQ().Publish(ctx, evc.Message{Topic: topic, Body: []byte("hi")}); err != nil { t.Fatalf("pub: %v", err) }
	select { case <-done: case <-time.After(3*time.Second): t.Fatalf("timeout") }
}

// 两个 Client 共享 RabbitMQ：A 本地分发后转发，B 经 Bridge 收到并在本地分发。
func TestRabbitMQ_RelayBridge(t *testing.T) {
	base := rabbitConfig(t)
	ctx := context.Background()

	senderCfg := base
	senderCfg.Namespace = "it"
	senderCfg.Relay = evc.RelayConfig{Events: []string{"order.created"}}
	sender, err := evc.New(ctx, senderCfg)
	if err != nil { t.Fatalf("new sender: %v", err) }
	defer sender.Close(ctx)

	receiverCfg := base
	receiverCfg.Namespace = "it"
	receiverCfg.Relay = evc.RelayConfig{Topics: []string{"order.created"}, Group: "it-receiver"}
	receiver, err := evc.New(ctx, receiverCfg)
	if err != nil { t.Fatalf("new receiver: %v", err) }
	defer receiver.Close(ctx)

	recv := make(chan *evc.PayloadEvent, 1)
	_ = receiver.Bus().AddListener("order.created", func(ctx context.Context, e evc.Event) error { recv <- e.(*evc.PayloadEvent); return nil }, 0)
	if err := receiver.Start(ctx); err != nil { t.Fatalf("start: %v", err) }
	time.Sleep(100 * time.Millisecond)

	sent := evc.NewPayloadEvent(map[string]string{"order": "o1"})
	if _, err := sender.Bus().Dispatch(ctx, "order.created", sent); err != nil { t.Fatalf("dispatch: %v", err) }

	select {
	case got := <-recv:
		if !got.Remote() { t.Fatalf("expected remote event") }
		if got.ID() != sent.ID() { t.Fatalf("id mismatch: %s != %s", got.ID(), sent.ID()) }
	case <-time.After(3 * time.Second):
		t.Fatalf("relayed event not received")
	}
}
