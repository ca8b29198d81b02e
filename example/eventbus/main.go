package main

import (
	"context"
	"fmt"
	"os"
	"time"

	evconsole "github.com/northseadl/evconsole"
)

func main() {
	ctx := context.Background()

	cfg := evconsole.Config{
		Namespace: "demo",
		Relay:     evconsole.RelayConfig{Events: []string{"greeting"}, Topics: []string{"greeting"}, Group: "g1"},
	}
	if addr := os.Getenv("EVC_REDIS_ADDR"); addr != "" {
		cfg.MQ.Provider = evconsole.MQProviderRedis
		cfg.MQ.Redis.Addr = addr
		fmt.Println("[Bus] 使用 Redis MQ:", addr)
	} else if uri := os.Getenv("EVC_RABBITMQ_URI"); uri != "" {
		cfg.MQ.Provider = evconsole.MQProviderRabbitMQ
		cfg.MQ.RabbitMQ.URI = uri
		cfg.MQ.RabbitMQ.Exchange = os.Getenv("EVC_RABBITMQ_EXCHANGE")
		cfg.MQ.RabbitMQ.DelayedExchange = os.Getenv("EVC_RABBITMQ_DELAYED_EXCHANGE")
		fmt.Println("[Bus] 使用 RabbitMQ:", uri)
	} else {
		fmt.Println("[Bus] 未配置 MQ，使用 Noop（仅本地分发，不会转发）")
	}

	cli, err := evconsole.New(ctx, cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = cli.Close(ctx) }()

	_ = cli.Bus().AddListener("greeting", func(ctx context.Context, e evconsole.Event) error {
		pe := e.(*evconsole.PayloadEvent)
		src := "local"
		if pe.Remote() {
			src = "remote"
		}
		fmt.Printf("[Bus] 收到(%s): id=%s payload=%s\n", src, pe.ID(), pe.Payload)
		return nil
	}, 0)
	if err := cli.Start(ctx); err != nil {
		panic(err)
	}

	if _, err := cli.Bus().Dispatch(ctx, "greeting", evconsole.NewPayloadEvent(map[string]string{"msg": "hello"})); err != nil {
		panic(err)
	}
	fmt.Println("[Bus] 已分发事件，等待 1s...")
	time.Sleep(1 * time.Second)
	fmt.Println("[Bus] 结束")
}
