package cache

import (
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
)

// Option 缓存选项
type Option func(*options)

type options struct {
	logger clog.Logger
	redis  connector.RedisConnector
}

// WithLogger 设置 Logger，自动追加 "cache" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("cache")
		}
	}
}

// WithRedisConnector 注入 Redis 连接器，仅 redis 模式使用
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		o.redis = conn
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
