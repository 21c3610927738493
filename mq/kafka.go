package mq

import (
	"context"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/xerrors"
)

type kafkaClient struct {
	conn    connector.KafkaConnector
	logger  clog.Logger
	clock   clock.Clock
	backoff time.Duration

	mu     sync.Mutex
	subs   map[*kafkaSubscription]struct{}
	closed bool
}

func newKafka(conn connector.KafkaConnector, cfg *Config, o *options) *kafkaClient {
	return &kafkaClient{
		conn:    conn,
		logger:  o.logger.With(clog.String("driver", DriverKafka)),
		clock:   o.clock,
		backoff: cfg.PollBackoff,
		subs:    make(map[*kafkaSubscription]struct{}),
	}
}

func (c *kafkaClient) Publish(ctx context.Context, topic string, msg Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	client := c.conn.GetClient()
	if client == nil {
		return connector.ErrNotConnected
	}

	record := &kgo.Record{Topic: topic, Value: msg.Data}
	if msg.Key != "" {
		record.Key = []byte(msg.Key)
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return xerrors.Wrapf(client.ProduceSync(ctx, record).FirstErr(), "kafka produce %s", topic)
}

// Subscribe 每个订阅使用独立的 kgo.Client；group 为空时直接消费全部分区（广播）
func (c *kafkaClient) Subscribe(ctx context.Context, topic, group string, h Handler) (Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.mu.Unlock()

	opts := []kgo.Opt{
		kgo.SeedBrokers(c.conn.Seeds()...),
		kgo.ClientID(c.conn.ClientID()),
		kgo.ConsumeTopics(topic),
		kgo.WithLogger(connector.NewKgoLogger(c.logger)),
		kgo.AllowAutoTopicCreation(),
	}
	if group != "" {
		opts = append(opts, kgo.ConsumerGroup(group), kgo.DisableAutoCommit())
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "create kafka consumer")
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &kafkaSubscription{owner: c, client: client, cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	go c.consume(subCtx, sub, group != "", h)
	return sub, nil
}

func (c *kafkaClient) consume(ctx context.Context, sub *kafkaSubscription, commit bool, h Handler) {
	defer close(sub.done)
	for {
		fetches := sub.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				c.logger.Error("kafka poll failed", clog.String("topic", e.Topic), clog.Error(e.Err))
			}
			if c.clock.Sleep(ctx, c.backoff) != nil {
				return
			}
			continue
		}

		fetches.EachRecord(func(r *kgo.Record) {
			msg := Message{Topic: r.Topic, Key: string(r.Key), Data: r.Value, Headers: make(Headers, len(r.Headers))}
			for _, hd := range r.Headers {
				msg.Headers[hd.Key] = string(hd.Value)
			}
			if err := h(ctx, msg); err != nil {
				c.logger.Error("message handler failed", clog.String("topic", r.Topic), clog.Error(err))
				return
			}
			if commit {
				if err := sub.client.CommitRecords(ctx, r); err != nil {
					c.logger.Warn("kafka commit failed", clog.String("topic", r.Topic), clog.Error(err))
				}
			}
		})
	}
}

func (c *kafkaClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*kafkaSubscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	return nil
}

type kafkaSubscription struct {
	owner  *kafkaClient
	client *kgo.Client
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *kafkaSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.client.Close()
		<-s.done
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		s.owner.mu.Unlock()
	})
	return nil
}
