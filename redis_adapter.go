package evconsole

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAdapter 基于 Redis Streams 实现 MQ；延时消息先写入 ZSET，由调度协程到期后转存至 Streams。
type redisAdapter struct {
	rdb    *redis.Client
	cfg    RedisConfig
	logger Logger

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

const (
	redisDelayZKey     = "evc:delay"
	redisHeaderPrefix  = "h:"
	redisDelayInterval = 200 * time.Millisecond
	redisDelayBatch    = 100
)

type delayItem struct {
	Topic   string            `json:"topic"`
	Key     string            `json:"key"`
	BodyB64 string            `json:"body_b64"`
	Headers map[string]string `json:"headers"`
}

func newRedisAdapter(cfg RedisConfig, logger Logger) (MQ, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr empty")
	}
	ad := &redisAdapter{
		rdb:    newRedisClient(cfg),
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	ad.startDelayScheduler()
	return ad, nil
}

func newRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
}

func (r *redisAdapter) startDelayScheduler() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(redisDelayInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.flushDue(context.Background())
			}
		}
	}()
}

// flushDue 将到期的延时消息写入对应 Stream。
func (r *redisAdapter) flushDue(ctx context.Context) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	items, err := r.rdb.ZRangeByScore(ctx, redisDelayZKey, &redis.ZRangeBy{Min: "-inf", Max: now, Count: redisDelayBatch}).Result()
	if err != nil {
		r.logger.Error(ctx, "redis delay scan failed", "error", err)
		return
	}
	for _, s := range items {
		var di delayItem
		if err := json.Unmarshal([]byte(s), &di); err != nil {
			r.logger.Error(ctx, "redis delay item corrupt", "error", err)
		} else if body, err := base64.StdEncoding.DecodeString(di.BodyB64); err == nil {
			if err := r.publishStream(ctx, Message{Topic: di.Topic, Key: di.Key, Body: body, Headers: di.Headers}); err != nil {
				r.logger.Error(ctx, "redis delay publish failed", "topic", di.Topic, "error", err)
				continue
			}
		}
		_ = r.rdb.ZRem(ctx, redisDelayZKey, s).Err()
	}
}

func (r *redisAdapter) Publish(ctx context.Context, msg Message) error {
	return r.publishStream(ctx, msg)
}

func (r *redisAdapter) PublishDelay(ctx context.Context, msg Message, delay time.Duration) error {
	di := delayItem{Topic: msg.Topic, Key: msg.Key, BodyB64: base64.StdEncoding.EncodeToString(msg.Body), Headers: msg.Headers}
	b, err := json.Marshal(di)
	if err != nil {
		return fmt.Errorf("encode delay item: %w", err)
	}
	score := float64(time.Now().Add(delay).UnixMilli())
	return r.rdb.ZAdd(ctx, redisDelayZKey, redis.Z{Score: score, Member: string(b)}).Err()
}

func (r *redisAdapter) Consume(ctx context.Context, topic, group string, handler Handler, mws ...Middleware) (func(context.Context) error, error) {
	if group == "" {
		group = "default"
	}
	// 从头读取；组已存在时忽略 BUSYGROUP
	if err := r.rdb.XGroupCreateMkStream(ctx, topic, group, "0").Err(); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("redis create group %s/%s: %w", topic, group, err)
	}
	final := chainHandler(handler, mws)
	consumer := fmt.Sprintf("%s-%d", group, time.Now().UnixNano())

	done := make(chan struct{})
	cctx, cancel := context.WithCancel(ctx)
	// Close 时一并停止消费
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-cctx.Done():
		}
	}()
	r.wg.Add(1)
	go func() {
		defer func() { r.wg.Done(); close(done) }()
		concurrency := r.cfg.ConsumerConcurrency
		if concurrency <= 0 {
			concurrency = 1
		}
		sem := make(chan struct{}, concurrency)
		var inflight sync.WaitGroup
		defer inflight.Wait()
		for cctx.Err() == nil {
			res, err := r.rdb.XReadGroup(cctx, &redis.XReadGroupArgs{
				Group:    group,
				Consumer: consumer,
				Streams:  []string{topic, ">"},
				Count:    int64(concurrency),
				Block:    2 * time.Second,
			}).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && cctx.Err() == nil {
					r.logger.Error(cctx, "redis read group failed", "topic", topic, "group", group, "error", err)
					time.Sleep(redisDelayInterval)
				}
				continue
			}
			for _, str := range res {
				for _, xmsg := range str.Messages {
					sem <- struct{}{}
					inflight.Add(1)
					go func(m redis.XMessage) {
						defer func() { <-sem; inflight.Done() }()
						if err := final(cctx, decodeXMessage(topic, m)); err != nil {
							r.logger.Error(cctx, "redis handler failed", "topic", topic, "id", m.ID, "error", err)
						}
						_ = r.rdb.XAck(cctx, topic, group, m.ID).Err()
					}(xmsg)
				}
			}
		}
	}()
	stop := func(sctx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	}
	return stop, nil
}

func (r *redisAdapter) Close(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.stopCh) })
	done := make(chan struct{})
	go func() { r.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return r.rdb.Close()
}

func (r *redisAdapter) publishStream(ctx context.Context, msg Message) error {
	fields := map[string]interface{}{"key": msg.Key, "body": base64.StdEncoding.EncodeToString(msg.Body)}
	for k, v := range msg.Headers {
		fields[redisHeaderPrefix+k] = v
	}
	return r.rdb.XAdd(ctx, &redis.XAddArgs{Stream: msg.Topic, Values: fields}).Err()
}

func decodeXMessage(topic string, xm redis.XMessage) Message {
	msg := Message{Topic: topic, Headers: make(map[string]string)}
	for k, v := range xm.Values {
		s, _ := v.(string)
		switch {
		case k == "key":
			msg.Key = s
		case k == "body":
			msg.Body, _ = base64.StdEncoding.DecodeString(s)
		case strings.HasPrefix(k, redisHeaderPrefix):
			msg.Headers[strings.TrimPrefix(k, redisHeaderPrefix)] = s
		}
	}
	return msg
}
