package db

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/dealflow/clog"
)

// Option DB 选项
type Option func(*options)

type options struct {
	logger clog.Logger
	tracer trace.TracerProvider
}

// WithLogger 设置 Logger，自动追加 "db" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("db")
		}
	}
}

// WithTracerProvider 指定 otelgorm 使用的 TracerProvider，默认使用全局 Provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
