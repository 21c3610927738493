// Package mq 提供 dealflow 的消息发布与订阅，后端可选 NATS、Kafka 或进程内内存。
//
//	client, _ := mq.New(&mq.Config{Driver: mq.DriverNATS}, mq.WithNATSConnector(natsConn))
//	_ = client.Publish(ctx, "dealflow.stage.changed", mq.Message{Key: oppID, Data: payload})
//	sub, _ := client.Subscribe(ctx, "dealflow.stage.changed", "crm-sync", handler)
//	defer sub.Unsubscribe()
//
// 连接由 connector 管理，Close 只释放订阅等本地资源。
package mq

import (
	"context"
	"maps"

	"github.com/ceyewan/dealflow/xerrors"
)

// 哨兵错误
var (
	ErrClosed = xerrors.New("mq: client closed")
)

// Headers 消息头
type Headers map[string]string

// Get 获取指定 key 的值，不存在返回空字符串
func (h Headers) Get(key string) string {
	return h[key]
}

// Set 设置键值对，实现 propagation.TextMapCarrier
func (h Headers) Set(key, value string) {
	h[key] = value
}

// Keys 实现 propagation.TextMapCarrier
func (h Headers) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

// Clone 深拷贝
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	return maps.Clone(h)
}

// Message 一条消息
//
// Key 用于 Kafka 分区，NATS 下写入 "key" 消息头。
type Message struct {
	Topic   string
	Key     string
	Data    []byte
	Headers Headers
}

// Handler 消息处理函数；Kafka 队列订阅下返回 nil 才提交 offset
type Handler func(ctx context.Context, msg Message) error

// Subscription 订阅句柄
type Subscription interface {
	Unsubscribe() error
}

// Client 消息客户端
type Client interface {
	// Publish 发布到 topic；Kafka 等待 broker 确认，NATS 发后即忘
	Publish(ctx context.Context, topic string, msg Message) error
	// Subscribe 订阅 topic；group 非空时组内负载均衡，为空时广播
	Subscribe(ctx context.Context, topic, group string, h Handler) (Subscription, error)
	// Close 取消所有订阅
	Close() error
}

// New 按 Config.Driver 创建客户端
func New(cfg *Config, opts ...Option) (Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts...)

	switch cfg.Driver {
	case DriverNATS:
		if o.nats == nil {
			return nil, xerrors.NewConfiguration("mq.driver", "nats driver requires a nats connector")
		}
		return newNATS(o.nats, o.logger), nil
	case DriverKafka:
		if o.kafka == nil {
			return nil, xerrors.NewConfiguration("mq.driver", "kafka driver requires a kafka connector")
		}
		return newKafka(o.kafka, cfg, o), nil
	default:
		return newMemory(cfg.Buffer, o.logger), nil
	}
}
