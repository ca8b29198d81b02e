// Package evconsole 提供进程内事件分发器（监听器优先级 + 传播中断）与一个轻量的命令行
// 参数解析/命令调度器（Console）。
// 事件可通过可插拔的 MQ 适配器（RabbitMQ/Redis）转发到外部并从外部桥接回本地，
// 另提供基于 Cron 表达式的定时分发与幂等中间件。
package evconsole
