package mq

import (
	"context"
	"sync"

	"github.com/ceyewan/dealflow/clog"
)

// memoryClient 进程内驱动：无外部依赖的单实例部署与测试使用
//
// 每个订阅一个缓冲 channel 和一个投递 goroutine；同一 group 的订阅轮询分配。
type memoryClient struct {
	buffer int
	logger clog.Logger

	mu     sync.Mutex
	topics map[string][]*memorySubscription
	next   map[string]int
	closed bool
}

func newMemory(buffer int, logger clog.Logger) *memoryClient {
	return &memoryClient{
		buffer: buffer,
		logger: logger.With(clog.String("driver", DriverMemory)),
		topics: make(map[string][]*memorySubscription),
		next:   make(map[string]int),
	}
}

func (c *memoryClient) Publish(ctx context.Context, topic string, msg Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	targets := c.targets(topic)
	c.mu.Unlock()

	msg.Topic = topic
	msg.Headers = msg.Headers.Clone()
	for _, s := range targets {
		select {
		case s.ch <- msg:
		case <-s.stop:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// targets 广播订阅全部投递，每个 group 选一个；调用方持有 mu
func (c *memoryClient) targets(topic string) []*memorySubscription {
	var (
		out    []*memorySubscription
		groups = map[string][]*memorySubscription{}
		order  []string
	)
	for _, s := range c.topics[topic] {
		if s.group == "" {
			out = append(out, s)
			continue
		}
		if _, ok := groups[s.group]; !ok {
			order = append(order, s.group)
		}
		groups[s.group] = append(groups[s.group], s)
	}
	for _, g := range order {
		members := groups[g]
		k := topic + "\x00" + g
		out = append(out, members[c.next[k]%len(members)])
		c.next[k]++
	}
	return out
}

func (c *memoryClient) Subscribe(ctx context.Context, topic, group string, h Handler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	s := &memorySubscription{
		owner: c,
		topic: topic,
		group: group,
		ch:    make(chan Message, c.buffer),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	c.topics[topic] = append(c.topics[topic], s)
	go s.run(context.WithoutCancel(ctx), h)
	return s, nil
}

func (c *memoryClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var subs []*memorySubscription
	for _, list := range c.topics {
		subs = append(subs, list...)
	}
	c.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	return nil
}

type memorySubscription struct {
	owner *memoryClient
	topic string
	group string
	ch    chan Message
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (s *memorySubscription) run(ctx context.Context, h Handler) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case msg := <-s.ch:
			if err := h(ctx, msg); err != nil {
				s.owner.logger.Error("message handler failed", clog.String("topic", msg.Topic), clog.Error(err))
			}
		}
	}
}

func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() {
		c := s.owner
		c.mu.Lock()
		list := c.topics[s.topic]
		for i, x := range list {
			if x == s {
				c.topics[s.topic] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		close(s.stop)
		<-s.done
	})
	return nil
}
