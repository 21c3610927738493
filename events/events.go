// Package events 把阶段变更发布到消息总线，并通过 resilience 编排同步到 CRM。
//
//	pub := events.NewPublisher(mqClient, events.WithLogger(logger))
//	syncer := events.NewStageSyncer(pub, orch)
//	res, err := syncer.Sync(ctx, pipeline.BuildUpdate(req, result))
package events

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/mq"
	"github.com/ceyewan/dealflow/pipeline"
	"github.com/ceyewan/dealflow/xerrors"
)

// TopicStageChanged 阶段变更事件 topic
const TopicStageChanged = "dealflow.stage.changed"

const (
	headerContentType = "content-type"
	headerEventType   = "event-type"
	contentType       = "application/msgpack"
	eventStageChanged = "stage.changed"
)

// Option Publisher 与 Consumer 共用的选项
type Option func(*options)

type options struct {
	logger clog.Logger
	topic  string
}

// WithLogger 设置 Logger，自动追加 "events" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("events")
		}
	}
}

// WithTopic 覆盖默认 topic
func WithTopic(topic string) Option {
	return func(o *options) {
		if topic != "" {
			o.topic = topic
		}
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{logger: clog.Discard(), topic: TopicStageChanged}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Publisher 阶段变更事件发布者
type Publisher struct {
	client mq.Client
	opts   *options
}

// NewPublisher 创建发布者
func NewPublisher(client mq.Client, opts ...Option) *Publisher {
	return &Publisher{client: client, opts: applyOptions(opts...)}
}

// Topic 返回发布的 topic
func (p *Publisher) Topic() string {
	return p.opts.topic
}

// PublishStageChanged 以 msgpack 编码发布，并注入当前 trace 上下文
func (p *Publisher) PublishStageChanged(ctx context.Context, u pipeline.CRMUpdate) error {
	if u.OpportunityID == "" {
		return xerrors.NewValidation("opportunity_id", "opportunity id is required")
	}
	data, err := msgpack.Marshal(&u)
	if err != nil {
		return xerrors.Wrap(err, "encode stage update")
	}

	headers := mq.Headers{
		headerContentType: contentType,
		headerEventType:   eventStageChanged,
	}
	otel.GetTextMapPropagator().Inject(ctx, headers)

	if err := p.client.Publish(ctx, p.opts.topic, mq.Message{
		Key:     u.OpportunityID,
		Data:    data,
		Headers: headers,
	}); err != nil {
		return xerrors.Wrapf(err, "publish stage update for %s", u.OpportunityID)
	}
	p.opts.logger.DebugContext(ctx, "stage update published",
		clog.String("opportunity_id", u.OpportunityID),
		clog.String("stage", string(u.InternalStage)))
	return nil
}

// StageHandler 处理解码后的阶段变更
type StageHandler func(ctx context.Context, u pipeline.CRMUpdate) error

// SubscribeStageChanged 订阅阶段变更，提取上游 trace 上下文后交给 h
//
// 无法解码的消息记录日志后丢弃。
func SubscribeStageChanged(ctx context.Context, client mq.Client, group string, h StageHandler, opts ...Option) (mq.Subscription, error) {
	o := applyOptions(opts...)
	return client.Subscribe(ctx, o.topic, group, func(ctx context.Context, msg mq.Message) error {
		if msg.Headers != nil {
			ctx = otel.GetTextMapPropagator().Extract(ctx, msg.Headers)
		}
		var u pipeline.CRMUpdate
		if err := msgpack.Unmarshal(msg.Data, &u); err != nil {
			o.logger.ErrorContext(ctx, "drop undecodable stage update",
				clog.String("key", msg.Key), clog.Error(err))
			return nil
		}
		return h(ctx, u)
	})
}
