package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/db"
	"github.com/ceyewan/dealflow/history"
	"github.com/ceyewan/dealflow/pipeline"
	"github.com/ceyewan/dealflow/testkit"
	"github.com/ceyewan/dealflow/xerrors"
)

func newStore(t *testing.T) history.Store {
	t.Helper()
	database, err := db.New(testkit.NewSQLiteConnector(t), nil)
	require.NoError(t, err)
	store, err := history.NewStore(context.Background(), database, 1)
	require.NoError(t, err)
	return store
}

func TestAppendAndCurrent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	clk := clock.NewFake(testkit.Epoch)
	v := pipeline.NewValidator(pipeline.WithClock(clk))

	_, ok, err := store.Current(ctx, "opp-1")
	require.NoError(t, err)
	assert.False(t, ok)

	steps := []pipeline.TransitionRequest{
		{OpportunityID: "opp-1", To: pipeline.StageQualification},
		{OpportunityID: "opp-1", From: pipeline.StageQualification, To: pipeline.StageEngagement, Reason: "discovery call"},
		{OpportunityID: "opp-1", From: pipeline.StageEngagement, To: pipeline.StageProposal},
	}
	for _, req := range steps {
		res, err := v.Validate(req)
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx, history.FromResult(res)))
		clk.Advance(time.Minute)
	}

	stage, ok, err := store.Current(ctx, "opp-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pipeline.StageProposal, stage)

	records, err := store.List(ctx, "opp-1", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "PROPOSAL", records[0].ToStage)
	assert.Equal(t, 60, records[0].Probability)
	assert.Equal(t, "discovery call", records[1].Reason)
	assert.NotZero(t, records[0].ID)

	records, err = store.List(ctx, "opp-1", 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = store.List(ctx, "opp-2", 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBackwardTransitionIsRecordedWithWarning(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	res, err := pipeline.NewValidator().Validate(pipeline.TransitionRequest{
		OpportunityID: "opp-9", From: pipeline.StageNegotiation, To: pipeline.StageEngagement,
	})
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, history.FromResult(res)))

	records, err := store.List(ctx, "opp-9", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Accepted)
	assert.Contains(t, records[0].Warning, "NEGOTIATION -> ENGAGEMENT")
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	assert.True(t, xerrors.IsValidation(store.Append(ctx, history.Record{ToStage: "PROPOSAL"})))
	_, err := store.List(ctx, "", 0)
	assert.True(t, xerrors.IsValidation(err))

	database, err := db.New(testkit.NewSQLiteConnector(t), nil)
	require.NoError(t, err)
	_, err = history.NewStore(ctx, database, 5000)
	assert.True(t, xerrors.IsValidation(err))
}
