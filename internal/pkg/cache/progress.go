package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/studiodesk/ffetrack/config"
)

// ProgressCache 执行视图进度的缓存，只是优化，随时可由条目状态重算。
//
// 每个实例有一个失效代数：Invalidate 使代数加一并删除缓存值，
// Set 只有在代数仍等于计算前读取的值时才写入，避免旧值在并发提交后被写回。
type ProgressCache interface {
	Generation(ctx context.Context, instanceID uint) (int64, error)
	Get(ctx context.Context, instanceID uint) ([]byte, bool, error)
	Set(ctx context.Context, instanceID uint, generation int64, data []byte) error
	Invalidate(ctx context.Context, instanceID uint) error
}

// NewProgressCache 未配置 Redis 时返回空实现
func NewProgressCache(cfg config.RedisConfig) ProgressCache {
	if cfg.Addr == "" {
		return NoopProgressCache{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisProgressCache(client, cfg.TTL)
}

type redisProgressCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProgressCache(client *redis.Client, ttl time.Duration) ProgressCache {
	return &redisProgressCache{client: client, ttl: ttl}
}

func progressKey(instanceID uint) string {
	return fmt.Sprintf("ffe:progress:instance:%d", instanceID)
}

func generationKey(instanceID uint) string {
	return fmt.Sprintf("ffe:progress:gen:instance:%d", instanceID)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, cmd stringGetter, instanceID uint) (int64, error) {
	gen, err := cmd.Get(ctx, generationKey(instanceID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

func (c *redisProgressCache) Generation(ctx context.Context, instanceID uint) (int64, error) {
	return readGeneration(ctx, c.client, instanceID)
}

func (c *redisProgressCache) Get(ctx context.Context, instanceID uint) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, progressKey(instanceID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set 在 WATCH 代数键的事务里比较后写入，代数已变化时静默放弃
func (c *redisProgressCache) Set(ctx context.Context, instanceID uint, generation int64, data []byte) error {
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, progressKey(instanceID), data, c.ttl)
			return nil
		})
		return err
	}, generationKey(instanceID))
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *redisProgressCache) Invalidate(ctx context.Context, instanceID uint) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(instanceID))
		pipe.Del(ctx, progressKey(instanceID))
		return nil
	})
	return err
}

// NoopProgressCache 不缓存
type NoopProgressCache struct{}

func (NoopProgressCache) Generation(ctx context.Context, instanceID uint) (int64, error) {
	return 0, nil
}

func (NoopProgressCache) Get(ctx context.Context, instanceID uint) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopProgressCache) Set(ctx context.Context, instanceID uint, generation int64, data []byte) error {
	return nil
}

func (NoopProgressCache) Invalidate(ctx context.Context, instanceID uint) error {
	return nil
}
