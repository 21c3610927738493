package mq_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dealflow/mq"
	"github.com/ceyewan/dealflow/testkit"
	"github.com/ceyewan/dealflow/xerrors"
)

type collector struct {
	mu   sync.Mutex
	msgs []mq.Message
}

func (c *collector) handle(_ context.Context, m mq.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) first() mq.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs[0]
}

func TestMemoryBroadcastAndGroups(t *testing.T) {
	client, err := mq.New(nil)
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	var a, b, g1, g2 collector
	for _, sub := range []struct {
		group string
		c     *collector
	}{{"", &a}, {"", &b}, {"workers", &g1}, {"workers", &g2}} {
		_, err := client.Subscribe(ctx, "stage.changed", sub.group, sub.c.handle)
		require.NoError(t, err)
	}

	for i := 0; i < 4; i++ {
		require.NoError(t, client.Publish(ctx, "stage.changed", mq.Message{
			Key:     "opp-1",
			Data:    []byte("payload"),
			Headers: mq.Headers{"source": "test"},
		}))
	}

	assert.Eventually(t, func() bool {
		return a.count() == 4 && b.count() == 4 && g1.count()+g2.count() == 4
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, g1.count(), "group members share messages round robin")

	m := a.first()
	assert.Equal(t, "stage.changed", m.Topic)
	assert.Equal(t, "opp-1", m.Key)
	assert.Equal(t, "test", m.Headers.Get("source"))
}

func TestMemoryUnsubscribeAndClose(t *testing.T) {
	client, err := mq.New(&mq.Config{Driver: "memory", Buffer: 1})
	require.NoError(t, err)
	ctx := context.Background()

	var c collector
	sub, err := client.Subscribe(ctx, "t", "", c.handle)
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, client.Publish(ctx, "t", mq.Message{Data: []byte("x")}))
	assert.Zero(t, c.count())

	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Publish(ctx, "t", mq.Message{}), mq.ErrClosed)
	_, err = client.Subscribe(ctx, "t", "", c.handle)
	assert.ErrorIs(t, err, mq.ErrClosed)
}

func TestConfigErrors(t *testing.T) {
	_, err := mq.New(&mq.Config{Driver: "rabbitmq"})
	assert.True(t, xerrors.IsValidation(err))
	_, err = mq.New(&mq.Config{Driver: "nats"})
	assert.True(t, xerrors.IsValidation(err))
	_, err = mq.New(&mq.Config{Driver: "kafka"})
	assert.True(t, xerrors.IsValidation(err))
}

func TestNATSRoundTrip(t *testing.T) {
	conn := testkit.NewNATSConnector(t)
	client, err := mq.New(&mq.Config{Driver: mq.DriverNATS}, mq.WithNATSConnector(conn), mq.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	topic := "dealflow.test." + testkit.NewID()
	var c collector
	_, err = client.Subscribe(ctx, topic, "crm", c.handle)
	require.NoError(t, err)
	require.NoError(t, conn.GetClient().Flush())

	require.NoError(t, client.Publish(ctx, topic, mq.Message{Key: "opp-7", Data: []byte("hello")}))
	require.Eventually(t, func() bool { return c.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "opp-7", c.first().Key)
	assert.Equal(t, []byte("hello"), c.first().Data)
}

func TestKafkaRoundTrip(t *testing.T) {
	conn := testkit.NewKafkaConnector(t)
	client, err := mq.New(&mq.Config{Driver: mq.DriverKafka}, mq.WithKafkaConnector(conn), mq.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	topic := "dealflow-test-" + testkit.NewID()
	require.NoError(t, client.Publish(ctx, topic, mq.Message{Key: "opp-7", Data: []byte("hello")}))

	var c collector
	_, err = client.Subscribe(ctx, topic, "crm-"+testkit.NewID(), c.handle)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.count() >= 1 }, 30*time.Second, 50*time.Millisecond)
	assert.Equal(t, "opp-7", c.first().Key)
}
