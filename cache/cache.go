// Package cache 提供 dealflow 的键值缓存：本地 otter 内存缓存或基于 Redis 的共享缓存。
//
// 两种实现都先把值编码为字节（json 或 msgpack），读取时解码到调用方提供的指针，
// 因此两种模式下的读写语义一致：
//
//	c, _ := cache.New(&cache.Config{Mode: cache.ModeLocal, Codec: "msgpack"})
//	_ = c.Set(ctx, "roi:abc", result, time.Hour)
//	var got roi.Result
//	if err := c.Get(ctx, "roi:abc", &got); errors.Is(err, cache.ErrMiss) {
//		...
//	}
package cache

import (
	"context"
	"time"

	"github.com/ceyewan/dealflow/xerrors"
)

var (
	// ErrMiss 键不存在或已过期
	ErrMiss = xerrors.New("cache: miss")
	// ErrClosed 缓存已关闭
	ErrClosed = xerrors.New("cache: closed")
)

// Cache 键值缓存，方法可并发调用
type Cache interface {
	// Get 读取并解码到 dest（必须是指针），不存在时返回 ErrMiss
	Get(ctx context.Context, key string, dest any) error
	// Set 写入，ttl <= 0 使用 Config.DefaultTTL
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
	// Close 释放本地资源，不关闭借用的 Redis 连接
	Close() error
}

// New 按 Config.Mode 创建缓存；redis 模式需要 WithRedisConnector
func New(cfg *Config, opts ...Option) (Cache, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts...)

	codec, err := newCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case ModeRedis:
		if o.redis == nil {
			return nil, xerrors.NewConfiguration("cache.mode", "redis mode requires a redis connector")
		}
		return newRedis(o.redis, cfg, codec, o.logger), nil
	default:
		return newLocal(cfg, codec, o.logger)
	}
}
