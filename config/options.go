package config

import "github.com/ceyewan/dealflow/clog"

// Option 加载器选项
type Option func(*options)

type options struct {
	logger   clog.Logger
	defaults map[string]any
	watch    bool
}

func defaultOptions() *options {
	return &options{
		logger: clog.Discard(),
		watch:  true,
	}
}

// WithLogger 注入日志记录器，自动追加 "config" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("config")
		}
	}
}

// WithDefaults 设置默认值，key 使用 "." 分隔的路径，例如 "server.addr"
func WithDefaults(defaults map[string]any) Option {
	return func(o *options) {
		if o.defaults == nil {
			o.defaults = make(map[string]any, len(defaults))
		}
		for k, v := range defaults {
			o.defaults[k] = v
		}
	}
}

// WithoutWatch 关闭配置文件监听
func WithoutWatch() Option {
	return func(o *options) {
		o.watch = false
	}
}
