package pipeline

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/xerrors"
)

var ranked = []Stage{
	StageQualification, StageEngagement, StageValueDemonstration,
	StageProposal, StageNegotiation, StageClosedWon,
}

func TestAccept_Monotonic(t *testing.T) {
	for i, from := range ranked {
		for j, to := range ranked {
			want := j >= i || to == StageClosedWon
			assert.Equal(t, want, Accept(from, to), "%s -> %s", from, to)
		}
	}
}

func TestAccept_ClosedAlwaysReachable(t *testing.T) {
	for _, from := range append(ranked, StageClosedLost, "SOMETHING_ELSE", "") {
		assert.True(t, Accept(from, StageClosedWon))
		assert.True(t, Accept(from, StageClosedLost))
	}
	assert.False(t, Accept(StageClosedLost, StageProposal))
	assert.False(t, Accept("DISCOVERY", StageProposal))
	assert.False(t, Accept(StageProposal, "DISCOVERY"))
}

func TestProbabilityAndCRMStage(t *testing.T) {
	want := map[Stage]int{
		StageQualification: 10, StageEngagement: 40, StageValueDemonstration: 50,
		StageProposal: 60, StageNegotiation: 75, StageClosedWon: 100, StageClosedLost: 0,
	}
	for s, p := range want {
		assert.Equal(t, p, Probability(s), s)
	}
	assert.Equal(t, 10, Probability("DISCOVERY"))

	assert.Equal(t, "Proposal Sent", CRMStage(StageProposal))
	assert.Equal(t, "Value Demonstration", CRMStage(StageValueDemonstration))
	assert.Equal(t, "Open", CRMStage("DISCOVERY"))
	assert.Len(t, Definitions(), 7)
}

func TestParseStage(t *testing.T) {
	assert.Equal(t, StageValueDemonstration, ParseStage(" value demonstration "))
	assert.Equal(t, StageClosedWon, ParseStage("closed-won"))
	assert.True(t, ParseStage("negotiation").Known())
	assert.False(t, ParseStage("discovery").Known())
	assert.Equal(t, Stage(""), ParseStage("   "))
}

func TestValidate_Forward(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	v := NewValidator(WithClock(clk))

	res, err := v.Validate(TransitionRequest{OpportunityID: "opp-1", From: "engagement", To: "PROPOSAL", Reason: "demo done"})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, res.Applied)
	assert.Empty(t, res.Warning)
	assert.Equal(t, 60, res.ResultingProbability)
	assert.Equal(t, "Proposal Sent", res.CRMStage)
	assert.Equal(t, HistoryEntry{
		OpportunityID: "opp-1", From: StageEngagement, To: StageProposal,
		Reason: "demo done", At: clk.Now(),
	}, res.History)
}

func TestValidate_FirstStageAndMissingTarget(t *testing.T) {
	v := NewValidator()

	res, err := v.Validate(TransitionRequest{To: StageQualification})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Empty(t, res.Warning)

	_, err = v.Validate(TransitionRequest{From: StageProposal, To: " "})
	require.Error(t, err)
	assert.True(t, xerrors.IsValidation(err))
}

func TestValidate_BackwardLenient(t *testing.T) {
	var buf bytes.Buffer
	logger := clog.Must(&clog.Config{Level: "debug", Format: "json", Output: "buffer"}, clog.WithBuffer(&buf))
	v := NewValidator(WithLogger(logger))

	res, err := v.Validate(TransitionRequest{OpportunityID: "opp-2", From: StageNegotiation, To: StageEngagement})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.True(t, res.Applied)
	assert.Contains(t, res.Warning, "NEGOTIATION -> ENGAGEMENT")
	assert.Equal(t, 40, res.ResultingProbability)
	assert.Contains(t, buf.String(), "invalid stage transition detected")
}

func TestValidate_BackwardStrict(t *testing.T) {
	v := NewValidator(WithStrict())
	assert.True(t, v.Strict())

	res, err := v.Validate(TransitionRequest{From: StageNegotiation, To: StageEngagement})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackwardTransition)
	assert.True(t, xerrors.IsTerminal(err))
	assert.False(t, res.Accepted)
	assert.False(t, res.Applied)

	res, err = v.Validate(TransitionRequest{From: StageNegotiation, To: StageClosedLost})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Zero(t, res.ResultingProbability)
}

func TestBuildUpdate(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	closeDate := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	req := TransitionRequest{
		OpportunityID: "opp-3", From: StageProposal, To: StageNegotiation,
		Reason: "pricing agreed", ExpectedCloseDate: closeDate, DealValue: 250000,
	}
	res, err := NewValidator(WithClock(clk)).Validate(req)
	require.NoError(t, err)

	u := BuildUpdate(req, res)
	assert.Equal(t, "Negotiation", u.StageName)
	assert.Equal(t, StageNegotiation, u.InternalStage)
	assert.Equal(t, StageProposal, u.PreviousStage)
	assert.Equal(t, 75, u.Probability)
	assert.Equal(t, closeDate, u.CloseDate)
	assert.Equal(t, 250000.0, u.Amount)
	assert.Equal(t, clk.Now(), u.ChangedAt)
}
