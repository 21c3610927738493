package mq

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/xerrors"
)

const headerKey = "key"

type natsClient struct {
	conn   connector.NATSConnector
	logger clog.Logger

	mu     sync.Mutex
	subs   map[*nats.Subscription]struct{}
	closed bool
}

func newNATS(conn connector.NATSConnector, logger clog.Logger) *natsClient {
	return &natsClient{
		conn:   conn,
		logger: logger.With(clog.String("driver", DriverNATS)),
		subs:   make(map[*nats.Subscription]struct{}),
	}
}

func (c *natsClient) client() (*nats.Conn, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	nc := c.conn.GetClient()
	if nc == nil {
		return nil, connector.ErrNotConnected
	}
	return nc, nil
}

func (c *natsClient) Publish(ctx context.Context, topic string, msg Message) error {
	nc, err := c.client()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := nats.NewMsg(topic)
	m.Data = msg.Data
	for k, v := range msg.Headers {
		m.Header.Set(k, v)
	}
	if msg.Key != "" {
		m.Header.Set(headerKey, msg.Key)
	}
	return xerrors.Wrapf(nc.PublishMsg(m), "nats publish %s", topic)
}

func (c *natsClient) Subscribe(ctx context.Context, topic, group string, h Handler) (Subscription, error) {
	nc, err := c.client()
	if err != nil {
		return nil, err
	}
	msgCtx := context.WithoutCancel(ctx)
	cb := func(m *nats.Msg) {
		msg := Message{Topic: m.Subject, Data: m.Data, Headers: make(Headers, len(m.Header))}
		for k := range m.Header {
			msg.Headers[k] = m.Header.Get(k)
		}
		msg.Key = msg.Headers.Get(headerKey)
		if err := h(msgCtx, msg); err != nil {
			c.logger.Error("message handler failed", clog.String("topic", m.Subject), clog.Error(err))
		}
	}

	var sub *nats.Subscription
	if group != "" {
		sub, err = nc.QueueSubscribe(topic, group, cb)
	} else {
		sub, err = nc.Subscribe(topic, cb)
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "nats subscribe %s", topic)
	}

	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()
	return &natsSubscription{client: c, sub: sub}, nil
}

func (c *natsClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	for sub := range c.subs {
		errs = append(errs, sub.Unsubscribe())
	}
	clear(c.subs)
	return xerrors.Combine(errs...)
}

type natsSubscription struct {
	client *natsClient
	sub    *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	s.client.mu.Lock()
	delete(s.client.subs, s.sub)
	s.client.mu.Unlock()
	if !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}
