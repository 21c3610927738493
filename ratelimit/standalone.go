package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/metrics"
)

// bucket 包装 rate.Limiter 并记录最后访问时间
type bucket struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

type standaloneLimiter struct {
	cfg     *Config
	logger  clog.Logger
	clock   clock.Clock
	checks  metrics.Counter
	buckets sync.Map // key:rate:burst -> *bucket
	stop    chan struct{}
	once    sync.Once
}

func newStandalone(cfg *Config, o *options) *standaloneLimiter {
	l := &standaloneLimiter{
		cfg:    cfg,
		logger: o.logger,
		clock:  o.clock,
		checks: checkCounter(o.meter),
		stop:   make(chan struct{}),
	}
	go l.cleanupLoop()

	l.logger.Info("standalone rate limiter created",
		clog.Duration("cleanup_interval", cfg.CleanupInterval),
		clog.Duration("idle_timeout", cfg.IdleTimeout))
	return l
}

func (l *standaloneLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	return l.AllowN(ctx, key, limit, 1)
}

func (l *standaloneLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error) {
	if err := checkArgs(key, limit, n); err != nil {
		return false, err
	}

	b := l.bucketFor(key, limit)
	now := l.clock.Now()
	b.mu.Lock()
	allowed := b.limiter.AllowN(now, n)
	b.lastSeen = now
	b.mu.Unlock()

	l.checks.Inc(ctx, metrics.L(LabelMode, ModeStandalone), metrics.L(LabelResult, resultLabel(allowed)))
	if !allowed {
		l.logger.DebugContext(ctx, "rate limited", clog.String("key", key), clog.Int("requested", n))
	}
	return allowed, nil
}

func (l *standaloneLimiter) bucketFor(key string, limit Limit) *bucket {
	id := fmt.Sprintf("%s:%v:%d", key, limit.Rate, limit.Burst)
	if v, ok := l.buckets.Load(id); ok {
		return v.(*bucket)
	}
	b := &bucket{
		limiter:  rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst),
		lastSeen: l.clock.Now(),
	}
	actual, _ := l.buckets.LoadOrStore(id, b)
	return actual.(*bucket)
}

func (l *standaloneLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := l.evictIdle(l.clock.Now()); n > 0 {
				l.logger.Debug("evicted idle rate limit buckets", clog.Int("count", n))
			}
		case <-l.stop:
			return
		}
	}
}

// evictIdle 删除 IdleTimeout 内未访问的桶，返回删除数量
func (l *standaloneLimiter) evictIdle(now time.Time) int {
	count := 0
	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		idle := now.Sub(b.lastSeen)
		b.mu.Unlock()
		if idle > l.cfg.IdleTimeout {
			l.buckets.Delete(key)
			count++
		}
		return true
	})
	return count
}

func (l *standaloneLimiter) Close() error {
	l.once.Do(func() { close(l.stop) })
	return nil
}
