// Package resilience 组合熔断、重试与单次超时，为工作流中的远程调用提供统一的执行入口。
//
// 每个调用属于一个 OperationKind，同一 kind 的调用共享熔断电路与重试策略：
//
//	reg, _ := resilience.NewRegistry(resilience.DefaultConfig(), resilience.WithLogger(logger))
//	orch := resilience.NewOrchestrator(reg)
//
//	value, ok, err := resilience.Execute(ctx, orch, resilience.KindCRMStageUpdate, 0,
//		func(ctx context.Context) (string, error) { return crm.UpdateStage(ctx, deal) },
//		func() string { return "queued" })
//
// 返回的 error 只表示调用方错误（参数校验、配置）；远程失败由 fallback 兜底，ok 为 false。
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/metrics"
	"github.com/ceyewan/dealflow/retry"
	"github.com/ceyewan/dealflow/trace"
	"github.com/ceyewan/dealflow/xerrors"
)

// Op 一次远程调用，需要遵守 ctx 的取消
type Op[R any] func(ctx context.Context) (R, error)

// Fallback 远程调用失败或熔断时的兜底值
type Fallback[R any] func() R

// Outcome 一次编排调用的完整结果
type Outcome[R any] struct {
	CallID      string
	Kind        OperationKind
	Value       R
	Success     bool
	Fallback    bool
	CircuitOpen bool
	Attempts    []retry.Attempt
	// Err 成功时为 nil；熔断为 *CircuitOpenError；重试耗尽为 *TransientRemoteError
	Err      error
	Duration time.Duration
}

// Orchestrator 远程调用编排器，可并发使用
type Orchestrator struct {
	registry *Registry
	logger   clog.Logger
	clock    clock.Clock
	metrics  *metrics.ResilienceMetrics
}

// NewOrchestrator 使用 Registry 的 Logger、时钟与指标创建编排器
func NewOrchestrator(registry *Registry) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		logger:   registry.opts.logger,
		clock:    registry.opts.clock,
		metrics:  registry.opts.metrics,
	}
}

// Registry 返回底层 Registry
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Execute 执行 op 并返回 (值, 是否成功, 调用方错误)
//
// timeout 为单次尝试时限，<= 0 时使用 kind 的 PerAttemptTimeout。
func Execute[R any](ctx context.Context, o *Orchestrator, kind OperationKind, timeout time.Duration, op Op[R], fallback Fallback[R]) (R, bool, error) {
	out, err := ExecuteOutcome(ctx, o, kind, timeout, op, fallback)
	return out.Value, out.Success, err
}

// ExecuteOutcome 与 Execute 相同，额外返回尝试记录和失败原因
func ExecuteOutcome[R any](ctx context.Context, o *Orchestrator, kind OperationKind, timeout time.Duration, op Op[R], fallback Fallback[R]) (Outcome[R], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out := Outcome[R]{CallID: uuid.NewString(), Kind: kind.Normalize()}

	if op == nil {
		out.Err = xerrors.NewValidation("operation", "operation is required")
		return out, out.Err
	}
	entry, err := o.registry.Lookup(kind)
	if err != nil {
		out.Err = err
		return out, err
	}
	kind = entry.Kind
	started := o.clock.Now()

	ctx, span := trace.StartSpan(ctx, trace.SpanNameRemoteCall(string(kind)),
		attribute.String(trace.AttrOperationKind, string(kind)),
		attribute.String(trace.AttrCallID, out.CallID))
	defer span.End()

	logger := o.logger.With(clog.String("kind", string(kind)), clog.String("call_id", out.CallID))
	finish := func(outcome string) {
		out.Duration = o.clock.Since(started)
		span.SetAttributes(
			attribute.Int(trace.AttrAttempts, len(out.Attempts)),
			attribute.Bool(trace.AttrFallback, out.Fallback),
			attribute.Bool(trace.AttrCircuitOpen, out.CircuitOpen))
		if !out.Success {
			trace.MarkSpanError(span, out.Err)
		}
		o.metrics.ObserveCall(ctx, string(kind), outcome, len(out.Attempts), out.Duration)
	}

	brk := o.registry.Breaker()
	permit, err := brk.Acquire(string(kind))
	if err != nil {
		out.CircuitOpen = true
		out.Err = &CircuitOpenError{Kind: kind, State: brk.State(string(kind)), Err: err}
		out.Value, out.Fallback = runFallback(ctx, logger, fallback), true
		logger.WarnContext(ctx, "circuit open, serving fallback", clog.Error(err))
		finish(metrics.OutcomeCircuitOpen)
		return out, nil
	}

	if timeout <= 0 {
		timeout = entry.Policy.PerAttemptTimeout
	}
	var value R
	tr, err := entry.Retrier.Execute(ctx, func(ctx context.Context, attempt int) error {
		v, err := runAttempt(ctx, kind, attempt, timeout, op)
		if err != nil {
			span.AddEvent("attempt failed", oteltrace.WithAttributes(
				attribute.Int(trace.AttrAttempt, attempt),
				attribute.String("error", err.Error())))
			return err
		}
		value = v
		return nil
	})
	out.Attempts = tr.Attempts

	switch {
	case err == nil:
		permit.Success()
		out.Value, out.Success = value, true
		logger.DebugContext(ctx, "remote call succeeded", clog.Int("attempts", len(out.Attempts)))
		finish(metrics.OutcomeSuccess)
		return out, nil

	case ctx.Err() != nil:
		// 调用方放弃，不计入熔断
		permit.Release()
		out.Err = err
		out.Value, out.Fallback = runFallback(ctx, logger, fallback), true
		logger.WarnContext(ctx, "remote call cancelled, serving fallback", clog.Error(err))
		finish(metrics.OutcomeFallback)
		return out, nil

	case xerrors.IsTerminal(err):
		permit.Release()
		out.Err = err
		logger.WarnContext(ctx, "remote call rejected", clog.Error(err))
		finish(metrics.OutcomeRejected)
		return out, err

	default:
		permit.Failure()
		last := err
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			last = exhausted.Last
		}
		out.Err = &TransientRemoteError{Kind: kind, Attempts: len(out.Attempts), Err: last}
		out.Value, out.Fallback = runFallback(ctx, logger, fallback), true
		logger.WarnContext(ctx, "remote call failed, serving fallback",
			clog.Int("attempts", len(out.Attempts)),
			clog.Error(last))
		finish(metrics.OutcomeFallback)
		return out, nil
	}
}

// runAttempt 在独立 goroutine 中执行 op，超时后立即返回，不等待忽略 ctx 的 op
func runAttempt[R any](ctx context.Context, kind OperationKind, attempt int, timeout time.Duration, op Op[R]) (R, error) {
	actx, cancel := clock.WithAttemptTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value R
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: &PanicError{Value: p}}
			}
		}()
		v, err := op(actx)
		done <- result{value: v, err: err}
	}()

	var zero R
	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && !xerrors.IsTerminal(r.err) &&
			errors.Is(actx.Err(), context.DeadlineExceeded) {
			return zero, &TimeoutError{Kind: kind, Attempt: attempt, Timeout: timeout}
		}
		return r.value, r.err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &TimeoutError{Kind: kind, Attempt: attempt, Timeout: timeout}
	}
}

func runFallback[R any](ctx context.Context, logger clog.Logger, fallback Fallback[R]) (value R) {
	if fallback == nil {
		return value
	}
	defer func() {
		if p := recover(); p != nil {
			logger.ErrorContext(ctx, "fallback panicked", clog.Any("panic", p))
			var zero R
			value = zero
		}
	}()
	return fallback()
}
