package connector

import (
	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
)

type options struct {
	logger clog.Logger
	clock  clock.Clock
}

// Option 连接器选项
type Option func(*options)

// WithLogger 设置 Logger，自动追加 "connector" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithClock 注入时钟，控制建立连接时的重试等待
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
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
