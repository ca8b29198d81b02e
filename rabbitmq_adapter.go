package evconsole

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// rabbitMQAdapter 实现 MQ 接口：事件名作为 routing key 发布到 topic exchange。
// 消费失败时按 retry 策略经延时交换机重投，超过上限后丢弃并记录日志。
type rabbitMQAdapter struct {
	cfg    RabbitMQConfig
	retry  RetryPolicy
	logger Logger
	mode   DelayMode

	conn   *amqp.Connection
	connMu sync.Mutex
}

const headerRetryCount = "x-retry-count"

func newRabbitMQAdapter(cfg RabbitMQConfig, mode DelayMode, retry RetryPolicy, logger Logger) (MQ, error) {
	if cfg.URI == "" || cfg.Exchange == "" {
		return nil, fmt.Errorf("rabbitmq config invalid: uri and exchange required")
	}
	if mode == DelayModeStandard && cfg.DelayedExchange == "" {
		return nil, fmt.Errorf("delayed exchange required in standard mode")
	}
	ad := &rabbitMQAdapter{cfg: cfg, mode: mode, retry: retry, logger: logger}
	if err := ad.ensureConnection(); err != nil {
		return nil, err
	}
	if err := ad.declareTopology(); err != nil {
		return nil, err
	}
	return ad, nil
}

func (r *rabbitMQAdapter) ensureConnection() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil && !r.conn.IsClosed() {
		return nil
	}
	conn, err := amqp.Dial(r.cfg.URI)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	r.conn = conn
	return nil
}

func (r *rabbitMQAdapter) channel() (*amqp.Channel, error) {
	if err := r.ensureConnection(); err != nil {
		return nil, err
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if r.cfg.Prefetch > 0 {
		_ = ch.Qos(r.cfg.Prefetch, 0, false)
	}
	return ch, nil
}

func (r *rabbitMQAdapter) declareTopology() error {
	ch, err := r.channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	ctx := context.Background()
	r.logger.Info(ctx, "declare exchange", "exchange", r.cfg.Exchange)
	if err := ch.ExchangeDeclare(r.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if r.mode == DelayModeStandard {
		r.logger.Info(ctx, "declare delayed exchange", "exchange", r.cfg.DelayedExchange)
		args := amqp.Table{"x-delayed-type": "topic"}
		if err := ch.ExchangeDeclare(r.cfg.DelayedExchange, "x-delayed-message", true, false, false, false, args); err != nil {
			return err
		}
	}
	return nil
}

func (r *rabbitMQAdapter) Publish(ctx context.Context, msg Message) error {
	ch, err := r.channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	closeChan := ch.NotifyClose(make(chan *amqp.Error, 1))
	rets := ch.NotifyReturn(make(chan amqp.Return, 1))
	if err := ch.PublishWithContext(ctx, r.cfg.Exchange, msg.Topic, true, false, publishing(msg, stringMapToTable(msg.Headers))); err != nil {
		return fmt.Errorf("rabbitmq publish failed (topic=%s): %w", msg.Topic, err)
	}
	// mandatory 发布：短暂等待退回或通道关闭
	select {
	case ret := <-rets:
		return fmt.Errorf("message unroutable to topic %s: %s (code=%d)", msg.Topic, ret.ReplyText, ret.ReplyCode)
	case closeErr := <-closeChan:
		if closeErr != nil {
			return fmt.Errorf("channel closed immediately after publish: %w", closeErr)
		}
		return nil
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (r *rabbitMQAdapter) PublishDelay(ctx context.Context, msg Message, delay time.Duration) error {
	ch, err := r.channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	headers := stringMapToTable(msg.Headers)
	if headers == nil {
		headers = amqp.Table{}
	}
	ms := int64(delay / time.Millisecond)
	exchange := r.cfg.DelayedExchange
	if r.mode == DelayModeAliyun {
		// 阿里云：普通交换机 + delay 头
		headers["delay"] = strconv.FormatInt(ms, 10)
		exchange = r.cfg.Exchange
	} else {
		headers["x-delay"] = ms
	}
	rets := ch.NotifyReturn(make(chan amqp.Return, 1))
	if err := ch.PublishWithContext(ctx, exchange, msg.Topic, true, false, publishing(msg, headers)); err != nil {
		return fmt.Errorf("rabbitmq delayed publish failed (topic=%s): %w", msg.Topic, err)
	}
	select {
	case ret := <-rets:
		r.logger.Error(ctx, "mq return (unroutable)", "exchange", ret.Exchange, "routing_key", ret.RoutingKey, "code", ret.ReplyCode, "text", ret.ReplyText)
	default:
	}
	return nil
}

func publishing(msg Message, headers amqp.Table) amqp.Publishing {
	return amqp.Publishing{
		ContentType: "application/json",
		MessageId:   msg.Key,
		Timestamp:   time.Now(),
		Headers:     headers,
		Body:        msg.Body,
	}
}

func (r *rabbitMQAdapter) Consume(ctx context.Context, topic, group string, handler Handler, mws ...Middleware) (func(context.Context) error, error) {
	ch, err := r.channel()
	if err != nil {
		return nil, err
	}
	q, err := r.bindQueue(ctx, ch, topic, group)
	if err != nil {
		ch.Close()
		return nil, err
	}
	msgs, err := ch.Consume(q, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, err
	}
	closeChan := ch.NotifyClose(make(chan *amqp.Error, 1))
	final := chainHandler(handler, mws)

	done := make(chan struct{})
	go func() {
		defer close(done)
		concurrency := r.cfg.ConsumerConcurrency
		if concurrency <= 0 {
			concurrency = 1
		}
		var wg sync.WaitGroup
		defer wg.Wait()
		sem := make(chan struct{}, concurrency)
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-closeChan:
				if err != nil {
					r.logger.Error(ctx, "rabbitmq channel closed by server", "queue", q, "error", err.Error())
				}
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				sem <- struct{}{}
				wg.Add(1)
				go func(del amqp.Delivery) {
					defer func() { <-sem; wg.Done() }()
					r.deliver(ctx, final, del)
				}(d)
			}
		}
	}()

	stop := func(sctx context.Context) error {
		// 关闭 channel 触发 msgs 退出
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
		select {
		case <-done:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	}
	return stop, nil
}

// bindQueue 声明 <topic>-<group> 队列并绑定到普通（及延时）交换机。
func (r *rabbitMQAdapter) bindQueue(ctx context.Context, ch *amqp.Channel, topic, group string) (string, error) {
	if group == "" {
		group = "default"
	}
	q, err := ch.QueueDeclare(fmt.Sprintf("%s-%s", sanitizeQueueName(topic), sanitizeQueueName(group)), true, false, false, false, nil)
	if err != nil {
		return "", err
	}
	exchanges := []string{r.cfg.Exchange}
	if r.mode == DelayModeStandard {
		exchanges = append(exchanges, r.cfg.DelayedExchange)
	}
	for _, ex := range exchanges {
		r.logger.Info(ctx, "queue bind", "queue", q.Name, "exchange", ex, "binding_key", topic)
		if err := ch.QueueBind(q.Name, topic, ex, false, nil); err != nil {
			return "", err
		}
	}
	return q.Name, nil
}

// deliver 执行 handler；失败时先延时重投再确认，重投失败则 Nack 让 broker 重发。
func (r *rabbitMQAdapter) deliver(ctx context.Context, h Handler, del amqp.Delivery) {
	m := Message{Topic: del.RoutingKey, Key: del.MessageId, Body: del.Body, Headers: tableToStringMap(del.Headers)}
	err := h(ctx, m)
	if err == nil {
		_ = del.Ack(false)
		return
	}
	attempt, _ := strconv.Atoi(m.Headers[headerRetryCount])
	backoff, ok := r.retry.NextBackoff(attempt)
	if !ok {
		r.logger.Error(ctx, "message dropped after retries", "topic", m.Topic, "key", m.Key, "attempts", attempt, "error", err)
		_ = del.Ack(false)
		return
	}
	h2 := copyHeaders(m.Headers)
	h2[headerRetryCount] = strconv.Itoa(attempt + 1)
	if perr := r.PublishDelay(ctx, Message{Topic: m.Topic, Key: m.Key, Body: m.Body, Headers: h2}, backoff); perr != nil {
		_ = del.Nack(false, true)
		return
	}
	_ = del.Ack(false)
}

func (r *rabbitMQAdapter) Close(ctx context.Context) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn.Close()
	}
	return nil
}

func stringMapToTable(m map[string]string) amqp.Table {
	if len(m) == 0 {
		return nil
	}
	t := amqp.Table{}
	for k, v := range m {
		t[k] = v
	}
	return t
}

func tableToStringMap(t amqp.Table) map[string]string {
	m := make(map[string]string, len(t))
	for k, v := range t {
		switch vv := v.(type) {
		case string:
			m[k] = vv
		case int32, int64, int:
			m[k] = fmt.Sprintf("%v", vv)
		}
	}
	return m
}

func copyHeaders(h map[string]string) map[string]string {
	m := make(map[string]string, len(h))
	for k, v := range h {
		m[k] = v
	}
	return m
}

// sanitizeQueueName 去掉队列名中的通配符与空白。
func sanitizeQueueName(s string) string {
	out := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '*', '#', '/':
			return -1
		}
		return r
	}, s)
	if out == "" {
		return "q"
	}
	return out
}
