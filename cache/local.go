package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/xerrors"
)

type localCache struct {
	cache      *otter.Cache[string, []byte]
	counter    *stats.Counter
	codec      codec
	prefix     string
	defaultTTL time.Duration
	logger     clog.Logger
	closed     atomic.Bool
}

func newLocal(cfg *Config, c codec, logger clog.Logger) (Cache, error) {
	counter := stats.NewCounter()
	oc, err := otter.New(&otter.Options[string, []byte]{
		MaximumSize:   cfg.Capacity,
		StatsRecorder: counter,
		// 过期从写入开始计算，读取不续期，与 Redis 的 TTL 语义一致
		ExpiryCalculator: otter.ExpiryWriting[string, []byte](cfg.DefaultTTL),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to build otter cache")
	}
	return &localCache{
		cache:      oc,
		counter:    counter,
		codec:      c,
		prefix:     cfg.Prefix,
		defaultTTL: cfg.DefaultTTL,
		logger:     logger,
	}, nil
}

func (c *localCache) Get(_ context.Context, key string, dest any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data, ok := c.cache.GetIfPresent(c.prefix + key)
	if !ok {
		return ErrMiss
	}
	if err := c.codec.Unmarshal(data, dest); err != nil {
		return xerrors.Wrapf(err, "decode cache entry %q", key)
	}
	return nil
}

func (c *localCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data, err := c.codec.Marshal(value)
	if err != nil {
		return xerrors.Wrapf(err, "encode cache entry %q", key)
	}
	k := c.prefix + key
	c.cache.Set(k, data)
	if ttl > 0 && ttl != c.defaultTTL {
		c.cache.SetExpiresAfter(k, ttl)
	}
	return nil
}

func (c *localCache) Delete(_ context.Context, key string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.cache.Invalidate(c.prefix + key)
	return nil
}

func (c *localCache) Has(_ context.Context, key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	_, ok := c.cache.GetIfPresent(c.prefix + key)
	return ok, nil
}

func (c *localCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	snap := c.counter.Snapshot()
	c.logger.Debug("local cache closed",
		clog.Int64("hits", int64(snap.Hits)),
		clog.Int64("misses", int64(snap.Misses)))
	c.cache.InvalidateAll()
	return nil
}
