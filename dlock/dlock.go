// Package dlock 提供按键互斥的锁：单进程的 local 驱动与基于 Redis 的分布式驱动。
//
// dealflow 用它串行化同一商机的阶段迁移，保证 "读取当前阶段、校验、写入历史" 不会交错：
//
//	locker, _ := dlock.New(&dlock.Config{Driver: dlock.DriverLocal})
//	lease, err := locker.Lock(ctx, "opp:"+id)
//	if err != nil {
//		return err
//	}
//	defer lease.Unlock(context.WithoutCancel(ctx))
package dlock

import (
	"context"
	"time"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/xerrors"
)

// 驱动
const (
	DriverLocal = "local"
	DriverRedis = "redis"
)

var (
	// ErrKeyEmpty 锁键为空
	ErrKeyEmpty = xerrors.New("dlock: key is empty")
	// ErrOwnershipLost 释放时锁已过期或被他人持有
	ErrOwnershipLost = xerrors.New("dlock: ownership lost")
)

// Config 锁配置
type Config struct {
	// Driver local | redis (默认: local)
	Driver string `mapstructure:"driver"`
	// Prefix redis 键前缀 (默认: "dealflow:lock:")
	Prefix string `mapstructure:"prefix"`
	// TTL redis 锁的有效期，持有期间由看门狗按 TTL/3 续期 (默认: 10s)
	TTL time.Duration `mapstructure:"ttl"`
	// RetryInterval Lock 轮询间隔 (默认: 50ms)
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

func (c *Config) validate() error {
	if c.Driver == "" {
		c.Driver = DriverLocal
	}
	if c.Driver != DriverLocal && c.Driver != DriverRedis {
		return xerrors.NewConfiguration("dlock.driver", "unsupported driver "+c.Driver)
	}
	if c.Prefix == "" {
		c.Prefix = "dealflow:lock:"
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 50 * time.Millisecond
	}
	return nil
}

// Locker 按键互斥
type Locker interface {
	// Lock 阻塞直到获得锁或 ctx 结束
	Lock(ctx context.Context, key string) (Lease, error)
	// TryLock 不等待；锁被占用时返回 (nil, false, nil)
	TryLock(ctx context.Context, key string) (Lease, bool, error)
}

// Lease 一次成功加锁的凭证
type Lease interface {
	Key() string
	// Unlock 释放锁，重复调用返回 nil
	Unlock(ctx context.Context) error
}

// Option 初始化选项
type Option func(*options)

type options struct {
	logger clog.Logger
	redis  connector.RedisConnector
}

// WithLogger 设置 Logger，自动追加 "dlock" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("dlock")
		}
	}
}

// WithRedisConnector redis 驱动使用的连接器
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) { o.redis = conn }
}

// New 按 Config.Driver 创建 Locker
func New(cfg *Config, opts ...Option) (Locker, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	if c.Driver == DriverRedis {
		if o.redis == nil {
			return nil, xerrors.NewConfiguration("dlock.driver", "redis driver requires a redis connector")
		}
		return &redisLocker{conn: o.redis, cfg: c, logger: o.logger}, nil
	}
	return newLocalLocker(c, o.logger), nil
}

// retry 反复调用 try 直到成功或 ctx 结束
func retry(ctx context.Context, interval time.Duration, try func() (Lease, bool, error)) (Lease, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		lease, ok, err := try()
		if err != nil {
			return nil, err
		}
		if ok {
			return lease, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
