package idem

import (
	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
)

// Option 初始化选项
type Option func(*options)

type options struct {
	logger clog.Logger
	clock  clock.Clock
	redis  connector.RedisConnector
}

// WithLogger 设置 Logger，自动追加 "idem" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("idem")
		}
	}
}

// WithClock 注入时钟，内存存储用它判断过期
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithRedisConnector redis 驱动使用的连接器
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) { o.redis = conn }
}

func applyOptions(opts ...Option) *options {
	o := &options{logger: clog.Discard(), clock: clock.Real()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
