package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/dealflow/events"
	"github.com/ceyewan/dealflow/mq"
	"github.com/ceyewan/dealflow/pipeline"
	"github.com/ceyewan/dealflow/resilience"
	"github.com/ceyewan/dealflow/testkit"
	"github.com/ceyewan/dealflow/xerrors"
)

func sampleUpdate() pipeline.CRMUpdate {
	return pipeline.CRMUpdate{
		OpportunityID: "opp-42",
		StageName:     "Proposal Sent",
		InternalStage: pipeline.StageProposal,
		PreviousStage: pipeline.StageEngagement,
		Probability:   60,
		ChangedAt:     testkit.Epoch,
	}
}

type received struct {
	mu      sync.Mutex
	updates []pipeline.CRMUpdate
	traces  []oteltrace.TraceID
}

func (r *received) handle(ctx context.Context, u pipeline.CRMUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	r.traces = append(r.traces, oteltrace.SpanContextFromContext(ctx).TraceID())
	return nil
}

func (r *received) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func TestPublishAndSubscribe_PropagatesTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	client, err := mq.New(nil)
	require.NoError(t, err)
	defer client.Close()

	var got received
	_, err = events.SubscribeStageChanged(context.Background(), client, "crm", got.handle)
	require.NoError(t, err)

	traceID := oteltrace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	ctx := oteltrace.ContextWithSpanContext(context.Background(), oteltrace.NewSpanContext(oteltrace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     oteltrace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: oteltrace.FlagsSampled,
	}))

	pub := events.NewPublisher(client, events.WithLogger(testkit.NewLogger()))
	assert.Equal(t, events.TopicStageChanged, pub.Topic())
	require.NoError(t, pub.PublishStageChanged(ctx, sampleUpdate()))

	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)
	got.mu.Lock()
	defer got.mu.Unlock()
	assert.Equal(t, "opp-42", got.updates[0].OpportunityID)
	assert.Equal(t, pipeline.StageProposal, got.updates[0].InternalStage)
	assert.Equal(t, 60, got.updates[0].Probability)
	assert.True(t, got.updates[0].ChangedAt.Equal(testkit.Epoch))
	assert.Equal(t, traceID, got.traces[0])
}

func TestSubscribe_DropsUndecodable(t *testing.T) {
	client, err := mq.New(nil)
	require.NoError(t, err)
	defer client.Close()

	var got received
	_, err = events.SubscribeStageChanged(context.Background(), client, "", got.handle, events.WithTopic("custom"))
	require.NoError(t, err)

	require.NoError(t, client.Publish(context.Background(), "custom", mq.Message{Data: []byte{0xc1}}))
	pub := events.NewPublisher(client, events.WithTopic("custom"))
	require.NoError(t, pub.PublishStageChanged(context.Background(), sampleUpdate()))

	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPublish_RequiresOpportunity(t *testing.T) {
	client, err := mq.New(nil)
	require.NoError(t, err)
	defer client.Close()

	err = events.NewPublisher(client).PublishStageChanged(context.Background(), pipeline.CRMUpdate{})
	assert.True(t, xerrors.IsValidation(err))
}

func newOrchestrator(t *testing.T, kit *testkit.Kit) *resilience.Orchestrator {
	t.Helper()
	reg, err := resilience.NewRegistry(resilience.DefaultConfig(),
		resilience.WithClock(kit.Clock), resilience.WithLogger(kit.Logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return resilience.NewOrchestrator(reg)
}

func TestStageSyncer(t *testing.T) {
	kit := testkit.NewKit(t)
	orch := newOrchestrator(t, kit)

	client, err := mq.New(nil)
	require.NoError(t, err)
	var got received
	_, err = events.SubscribeStageChanged(kit.Ctx, client, "crm", got.handle)
	require.NoError(t, err)

	syncer := events.NewStageSyncer(events.NewPublisher(client, events.WithLogger(kit.Logger)), orch, 0)

	res, err := syncer.Sync(kit.Ctx, sampleUpdate())
	require.NoError(t, err)
	assert.Equal(t, events.SyncStatusSynced, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Error)
	assert.NotEmpty(t, res.CallID)
	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)

	// 总线关闭后发布失败，重试耗尽返回 queued
	require.NoError(t, client.Close())
	res, err = syncer.Sync(kit.Ctx, sampleUpdate())
	require.NoError(t, err)
	assert.Equal(t, events.SyncStatusQueued, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.False(t, res.CircuitOpen)
	assert.Contains(t, res.Error, "client closed")
}
