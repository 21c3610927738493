package connector

import (
	"context"
	"fmt"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/retry"
)

// dial 按 Dial 参数执行 fn：每次尝试受 ConnectTimeout 约束，失败后固定间隔重试
func dial(ctx context.Context, o *options, logger clog.Logger, d Dial, fn func(ctx context.Context) error) error {
	r := retry.New(retry.Policy{
		MaxAttempts: d.MaxRetries + 1,
		BaseDelay:   d.RetryInterval,
		Multiplier:  1,
	}, retry.WithClock(o.clock), retry.WithLogger(logger))

	trace, err := r.Execute(ctx, func(ctx context.Context, _ int) error {
		actx, cancel := clock.WithAttemptTimeout(ctx, d.ConnectTimeout)
		defer cancel()
		return fn(actx)
	})
	if err != nil {
		return fmt.Errorf("%w after %d attempts: %w", ErrConnection, trace.Count(), err)
	}
	return nil
}
