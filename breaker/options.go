package breaker

import (
	"context"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/metrics"
)

// Option 熔断器选项
type Option func(*options)

type options struct {
	logger  clog.Logger
	clock   clock.Clock
	metrics *metrics.ResilienceMetrics
}

// WithLogger 设置 Logger，自动追加 "breaker" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithClock 注入时钟，测试中使用 clock.Fake 控制 open 等待
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetrics 记录状态迁移与拒绝次数
func WithMetrics(m *metrics.ResilienceMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{
		logger: clog.Discard(),
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// transition 记录一次状态迁移
func (o *options) transition(kind string, from, to State) {
	o.logger.Info("circuit breaker state changed",
		clog.String("kind", kind),
		clog.String("from", from.String()),
		clog.String("to", to.String()))
	o.metrics.ObserveTransition(context.Background(), kind, from.String(), to.String(), float64(to))
}

func (o *options) rejected(kind string, err error) {
	o.logger.Debug("call rejected by circuit breaker", clog.String("kind", kind), clog.Error(err))
	o.metrics.ObserveRejected(context.Background(), kind)
}
