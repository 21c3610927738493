package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/xerrors"
)

var errRemote = errors.New("connection refused")

func TestPolicy_DefaultSchedule(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}, p.Schedule())

	p.MaxDelay = 10 * time.Second
	assert.Equal(t, 10*time.Second, p.Backoff(2))
	assert.Equal(t, 5*time.Second, p.Backoff(0))
}

func TestPolicy_Validate(t *testing.T) {
	for name, p := range map[string]Policy{
		"attempts":   {MaxAttempts: 0, BaseDelay: time.Second, Multiplier: 2},
		"delay":      {MaxAttempts: 1, BaseDelay: -time.Second, Multiplier: 2},
		"multiplier": {MaxAttempts: 1, BaseDelay: time.Second, Multiplier: 0.5},
		"max_delay":  {MaxAttempts: 1, BaseDelay: time.Second, Multiplier: 1, MaxDelay: -1},
	} {
		t.Run(name, func(t *testing.T) {
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, xerrors.IsValidation(err))
		})
	}
}

func TestExecute_ExhaustsWithBackoff(t *testing.T) {
	fake := clock.NewFake(time.Time{})
	r := New(DefaultPolicy(), WithClock(fake))

	calls := 0
	trace, err := r.Execute(context.Background(), func(context.Context, int) error {
		calls++
		return errRemote
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errRemote)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	assert.Equal(t, 3, calls, "a fourth attempt never occurs")
	assert.Equal(t, []time.Duration{5 * time.Second, 15 * time.Second}, fake.Sleeps())
	assert.Equal(t, fake.Sleeps(), trace.Delays())
	assert.Equal(t, 3, trace.Count())
	assert.Zero(t, trace.Attempts[2].DelayBeforeNext)
}

func TestExecute_SucceedsAfterRetry(t *testing.T) {
	fake := clock.NewFake(time.Time{})
	var retried []int
	r := New(DefaultPolicy(), WithClock(fake), WithOnRetry(func(_ context.Context, a Attempt) {
		retried = append(retried, a.Number)
	}))

	trace, err := r.Execute(context.Background(), func(_ context.Context, attempt int) error {
		if attempt < 2 {
			return errRemote
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, trace.Count())
	assert.True(t, trace.Attempts[0].Failed())
	assert.False(t, trace.Attempts[1].Failed())
	assert.Equal(t, []int{1}, retried)
	assert.Equal(t, []time.Duration{5 * time.Second}, fake.Sleeps())
}

func TestExecute_TerminalNotRetried(t *testing.T) {
	fake := clock.NewFake(time.Time{})
	r := New(DefaultPolicy(), WithClock(fake))

	for _, terminal := range []error{
		xerrors.NewValidation("beds", "required"),
		xerrors.NewConfiguration("stage", "unknown"),
		xerrors.Terminal(errRemote),
	} {
		calls := 0
		_, err := r.Execute(context.Background(), func(context.Context, int) error {
			calls++
			return terminal
		})
		assert.Equal(t, terminal, err)
		assert.Equal(t, 1, calls)
	}
	assert.Empty(t, fake.Sleeps())
}

func TestExecute_CustomPredicate(t *testing.T) {
	r := New(DefaultPolicy(), WithClock(clock.NewFake(time.Time{})), WithPredicate(func(error) bool { return false }))
	calls := 0
	_, err := r.Execute(context.Background(), func(context.Context, int) error {
		calls++
		return errRemote
	})
	assert.ErrorIs(t, err, errRemote)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestExecute_CancellationAbortsBackoff(t *testing.T) {
	// 真实时钟：5s 的退避必须被取消立即打断
	r := New(DefaultPolicy())
	ctx, cancel := context.WithCancel(context.Background())

	start := time.Now()
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	trace, err := r.Execute(ctx, func(context.Context, int) error { return errRemote })

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, trace.Count())
}

func TestExecute_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	trace, err := New(DefaultPolicy()).Execute(ctx, func(context.Context, int) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
	assert.Zero(t, trace.Count())
}

func TestNew_InvalidPolicyFallsBack(t *testing.T) {
	r := New(Policy{})
	assert.Equal(t, DefaultPolicy(), r.Policy())
}

func TestDo_ReturnsValue(t *testing.T) {
	r := New(Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 1}, WithClock(clock.NewFake(time.Time{})))

	calls := 0
	v, trace, err := Do(context.Background(), r, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "partial", errRemote
		}
		return "Negotiation", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Negotiation", v)
	assert.Equal(t, 2, trace.Count())

	v, _, err = Do(context.Background(), r, func(context.Context) (string, error) {
		return "ignored", errRemote
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Empty(t, v)
}
