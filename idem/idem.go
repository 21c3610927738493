// Package idem 为写接口提供基于 Idempotency-Key 的幂等保护。
//
// 同一个键在 TTL 内只执行一次：首个请求持有处理锁并执行，成功结果被保存，
// 后续相同键的请求直接重放保存的结果；处理尚未结束时到达的请求返回 ErrInFlight。
//
//	g, _ := idem.New(&idem.Config{Driver: idem.DriverMemory})
//	r.POST("/v1/stage-transitions", g.GinMiddleware(), handler)
package idem

import (
	"context"
	"errors"
	"time"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/xerrors"
)

// Guard 幂等执行器，方法可并发调用
type Guard struct {
	cfg    Config
	store  Store
	logger clog.Logger
	clock  clock.Clock
}

// New 按 Config.Driver 创建 Guard；redis 驱动需要 WithRedisConnector
func New(cfg *Config, opts ...Option) (*Guard, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts...)

	var store Store
	switch c.Driver {
	case DriverRedis:
		if o.redis == nil {
			return nil, xerrors.NewConfiguration("idem.driver", "redis driver requires a redis connector")
		}
		store = newRedisStore(o.redis, c.Prefix)
	default:
		store = newMemoryStore(c.Prefix, o.clock)
	}

	return &Guard{cfg: c, store: store, logger: o.logger, clock: o.clock}, nil
}

// Execute 以 key 幂等地执行 fn
//
// 命中已保存的结果时不调用 fn，返回 (保存的字节, true, nil)。
// fn 失败时释放锁，允许调用方用同一个键重试。
func (g *Guard) Execute(ctx context.Context, key string, fn func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrKeyEmpty
	}

	cached, token, err := g.acquire(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if token == "" {
		g.logger.DebugContext(ctx, "idempotent replay", clog.String("key", key))
		return cached, true, nil
	}

	val, err := fn(ctx)
	if err != nil {
		g.release(ctx, key, token)
		return nil, false, err
	}
	if err := g.store.SetResult(ctx, key, val, g.cfg.TTL, token); err != nil {
		g.logger.ErrorContext(ctx, "failed to save idempotent result", clog.String("key", key), clog.Error(err))
		g.release(ctx, key, token)
		return nil, false, err
	}
	return val, false, nil
}

// acquire 返回已保存的结果，或者返回新获取的锁令牌
//
// 锁被占用时在 WaitTimeout 内轮询，超时返回 ErrInFlight。
func (g *Guard) acquire(ctx context.Context, key string) ([]byte, LockToken, error) {
	deadline := g.clock.Now().Add(g.cfg.WaitTimeout)
	for {
		val, err := g.store.GetResult(ctx, key)
		if err == nil {
			return val, "", nil
		}
		if !errors.Is(err, ErrResultNotFound) {
			return nil, "", err
		}

		token, ok, err := g.store.Lock(ctx, key, g.cfg.LockTTL)
		if err != nil {
			return nil, "", err
		}
		if ok {
			return nil, token, nil
		}

		if !g.clock.Now().Before(deadline) {
			return nil, "", ErrInFlight
		}
		if err := g.clock.Sleep(ctx, g.cfg.WaitInterval); err != nil {
			return nil, "", err
		}
	}
}

func (g *Guard) release(ctx context.Context, key string, token LockToken) {
	if err := g.store.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
		g.logger.WarnContext(ctx, "failed to release idempotency lock", clog.String("key", key), clog.Error(err))
	}
}

// TTL 结果保存时长
func (g *Guard) TTL() time.Duration {
	return g.cfg.TTL
}
