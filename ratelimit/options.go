package ratelimit

import (
	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/metrics"
)

// 指标
const (
	MetricChecks = "dealflow_ratelimit_checks_total"
	LabelMode    = "mode"
	LabelResult  = "result"
)

// Option 限流器选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	clock  clock.Clock
	redis  connector.RedisConnector
}

// WithLogger 设置 Logger，自动追加 "ratelimit" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("ratelimit")
		}
	}
}

// WithMeter 设置 Meter，记录放行与拒绝次数
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithClock 注入时钟；单机模式用它计算令牌
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithRedisConnector 分布式模式使用的 Redis 连接器
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) { o.redis = conn }
}

func applyOptions(opts ...Option) *options {
	o := &options{logger: clog.Discard(), meter: metrics.Discard(), clock: clock.Real()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// checkCounter 注册失败时退化为空实现
func checkCounter(m metrics.Meter) metrics.Counter {
	c, err := m.Counter(MetricChecks, "Number of rate limit checks by result")
	if err != nil {
		c, _ = metrics.Discard().Counter(MetricChecks, "")
	}
	return c
}

func resultLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
