package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/xerrors"
)

type redisCache struct {
	conn       connector.RedisConnector
	codec      codec
	prefix     string
	defaultTTL time.Duration
	logger     clog.Logger
}

func newRedis(conn connector.RedisConnector, cfg *Config, c codec, logger clog.Logger) Cache {
	return &redisCache{
		conn:       conn,
		codec:      c,
		prefix:     cfg.Prefix,
		defaultTTL: cfg.DefaultTTL,
		logger:     logger,
	}
}

func (c *redisCache) client() (*redis.Client, error) {
	client := c.conn.GetClient()
	if client == nil {
		return nil, connector.ErrNotConnected
	}
	return client, nil
}

func (c *redisCache) Get(ctx context.Context, key string, dest any) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	data, err := client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return xerrors.Wrapf(err, "redis get %q", key)
	}
	if err := c.codec.Unmarshal(data, dest); err != nil {
		return xerrors.Wrapf(err, "decode cache entry %q", key)
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	data, err := c.codec.Marshal(value)
	if err != nil {
		return xerrors.Wrapf(err, "encode cache entry %q", key)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return xerrors.Wrapf(client.Set(ctx, c.prefix+key, data, ttl).Err(), "redis set %q", key)
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	return xerrors.Wrapf(client.Del(ctx, c.prefix+key).Err(), "redis del %q", key)
}

func (c *redisCache) Has(ctx context.Context, key string) (bool, error) {
	client, err := c.client()
	if err != nil {
		return false, err
	}
	n, err := client.Exists(ctx, c.prefix+key).Result()
	if err != nil {
		return false, xerrors.Wrapf(err, "redis exists %q", key)
	}
	return n > 0, nil
}

func (c *redisCache) Close() error { return nil }
