package connector

import (
	"context"
	"sync/atomic"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/xerrors"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

type redisConnector struct {
	cfg     *RedisConfig
	opts    *options
	client  *redis.Client
	logger  clog.Logger
	healthy atomic.Bool
	closed  atomic.Bool
}

// NewRedis 创建 Redis 连接器，此时不会访问网络
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid redis config")
	}
	o := applyOptions(opts...)

	c := &redisConnector{
		cfg:    cfg,
		opts:   o,
		logger: o.logger.With(clog.String("connector", "redis"), clog.String("name", cfg.Name)),
	}
	c.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	if cfg.Instrument {
		if err := redisotel.InstrumentTracing(c.client); err != nil {
			return nil, xerrors.Wrap(err, "redis tracing instrumentation")
		}
		if err := redisotel.InstrumentMetrics(c.client); err != nil {
			return nil, xerrors.Wrap(err, "redis metrics instrumentation")
		}
	}
	return c, nil
}

func (c *redisConnector) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	if c.healthy.Load() {
		return nil
	}
	c.logger.Info("connecting to redis", clog.String("addr", c.cfg.Addr))

	err := dial(ctx, c.opts, c.logger, c.cfg.Dial, func(ctx context.Context) error {
		return c.client.Ping(ctx).Err()
	})
	if err != nil {
		c.logger.Error("redis connection failed", clog.Error(err), clog.String("addr", c.cfg.Addr))
		return xerrors.Wrapf(err, "redis connector[%s]", c.cfg.Name)
	}

	c.healthy.Store(true)
	c.logger.Info("connected to redis", clog.String("addr", c.cfg.Addr))
	return nil
}

func (c *redisConnector) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.healthy.Store(false)
	if err := c.client.Close(); err != nil {
		c.logger.Error("failed to close redis connection", clog.Error(err))
		return err
	}
	c.logger.Info("redis connection closed")
	return nil
}

func (c *redisConnector) HealthCheck(ctx context.Context) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("redis health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "redis connector[%s]: %v", c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *redisConnector) IsHealthy() bool { return c.healthy.Load() }

func (c *redisConnector) Name() string { return "redis:" + c.cfg.Name }

func (c *redisConnector) GetClient() *redis.Client {
	if c.closed.Load() {
		return nil
	}
	return c.client
}
