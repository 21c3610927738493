package resilience

import (
	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/metrics"
	"github.com/ceyewan/dealflow/retry"
)

// Option Registry 选项
type Option func(*options)

type options struct {
	logger    clog.Logger
	clock     clock.Clock
	metrics   *metrics.ResilienceMetrics
	predicate retry.Predicate
}

// WithLogger 设置 Logger，自动追加 "resilience" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("resilience")
		}
	}
}

// WithClock 注入时钟，熔断等待、退避和超时都经过它
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetrics 设置指标集，nil 表示不记录
func WithMetrics(m *metrics.ResilienceMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRetryPredicate 替换默认的重试判定
func WithRetryPredicate(p retry.Predicate) Option {
	return func(o *options) {
		o.predicate = p
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{
		logger:    clog.Discard(),
		clock:     clock.Real(),
		predicate: retry.DefaultPredicate,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
