package evconsole

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// KV 是幂等中间件依赖的最小键值接口，便于单元测试注入 mock。
type KV interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
}

// IdempotencyConfig 配置 Bridge 消费侧的幂等中间件。
// Key 计算顺序：优先 Message.Key（即事件 ID）；若为空且提供 KeyFunc，则使用 KeyFunc。
// 最终存储 key 为 Prefix + ":" + sha1(keyRaw)。
type IdempotencyConfig struct {
	// KV 键值存储；为 nil 且提供 Redis* 参数时自动创建 RedisKV
	KV KV `toml:"-"`

	RedisAddr     string `toml:"redis_addr"`
	RedisUsername string `toml:"redis_username"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	Prefix  string                                               `toml:"prefix"`
	TTL     Duration                                             `toml:"ttl"`
	KeyFunc func(ctx context.Context, m Message) (string, error) `toml:"-"`
}

func (c IdempotencyConfig) enabled() bool { return c.KV != nil || c.RedisAddr != "" }

// NewIdempotencyMiddleware 生成 MQ Middleware：同一 key 在 TTL 内只处理一次。
func NewIdempotencyMiddleware(cfg IdempotencyConfig) (Middleware, error) {
	if cfg.KV == nil {
		return nil, fmt.Errorf("idempotency middleware requires KV")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "evc:idem"
	}
	ttl := time.Duration(cfg.TTL)
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, m Message) error {
			keyRaw := m.Key
			if keyRaw == "" && cfg.KeyFunc != nil {
				if s, err := cfg.KeyFunc(ctx, m); err == nil {
					keyRaw = s
				}
			}
			if keyRaw == "" {
				return next(ctx, m)
			}
			h := sha1.Sum([]byte(keyRaw))
			ok, err := cfg.KV.SetNX(ctx, prefix+":"+hex.EncodeToString(h[:]), "1", ttl)
			if err != nil {
				return fmt.Errorf("idempotency check: %w", err)
			}
			if !ok {
				return nil // 已处理，直接跳过
			}
			return next(ctx, m)
		}
	}, nil
}
