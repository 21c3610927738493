package mq

import (
	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
)

// Option 客户端选项
type Option func(*options)

type options struct {
	logger clog.Logger
	clock  clock.Clock
	nats   connector.NATSConnector
	kafka  connector.KafkaConnector
}

// WithLogger 设置 Logger，自动追加 "mq" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("mq")
		}
	}
}

// WithClock 注入时钟，用于 Kafka 拉取出错后的退避
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithNATSConnector 注入 NATS 连接器
func WithNATSConnector(conn connector.NATSConnector) Option {
	return func(o *options) { o.nats = conn }
}

// WithKafkaConnector 注入 Kafka 连接器
func WithKafkaConnector(conn connector.KafkaConnector) Option {
	return func(o *options) { o.kafka = conn }
}

func applyOptions(opts ...Option) *options {
	o := &options{logger: clog.Discard(), clock: clock.Real()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
