package evconsole

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV 适配 github.com/redis/go-redis 以满足 KV 接口。
type RedisKV struct{ R *redis.Client }

// NewRedisKV 按幂等配置中的 Redis 参数创建 KV。
func NewRedisKV(cfg IdempotencyConfig) RedisKV {
	return RedisKV{R: newRedisClient(RedisConfig{Addr: cfg.RedisAddr, Username: cfg.RedisUsername, Password: cfg.RedisPassword, DB: cfg.RedisDB})}
}

func (r RedisKV) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return r.R.SetNX(ctx, key, value, ttl).Result()
}

// Close 释放底层连接。
func (r RedisKV) Close() error { return r.R.Close() }
