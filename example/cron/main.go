package main

import (
	"context"
	"fmt"
	"time"

	evconsole "github.com/northseadl/evconsole"
)

func main() {
	ctx := context.Background()

	// 本地 Cron（无需外部依赖），每秒分发一次 demo.tick，运行约 3.5 秒后退出
	cli, err := evconsole.New(ctx, evconsole.Config{})
	if err != nil {
		panic(err)
	}
	defer func() { _ = cli.Close(ctx) }()

	count := 0
	_ = cli.Bus().AddListener("demo.tick", func(ctx context.Context, e evconsole.Event) error {
		count++
		fmt.Println("[Cron] tick", count, evconsole.EventID(e))
		return nil
	}, 0)

	_, err = cli.Cron().AddDispatch("*/1 * * * * *", "demo.tick", nil)
	if err != nil {
		panic(err)
	}

	_ = cli.Start(ctx)
	fmt.Println("[Cron] 已启动，本示例将运行约 3.5s...")
	time.Sleep(3500 * time.Millisecond)
	_ = cli.Cron().Stop(ctx)
	fmt.Println("[Cron] 已停止，示例结束")
}
