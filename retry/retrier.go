package retry

import (
	"context"
	"fmt"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
)

// Option Retrier 选项
type Option func(*Retrier)

// WithPredicate 设置重试判定，nil 时使用 DefaultPredicate
func WithPredicate(p Predicate) Option {
	return func(r *Retrier) {
		if p != nil {
			r.predicate = p
		}
	}
}

// WithClock 注入时钟
func WithClock(c clock.Clock) Option {
	return func(r *Retrier) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger 设置 Logger，自动追加 "retry" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(r *Retrier) {
		if logger != nil {
			r.logger = logger.WithNamespace("retry")
		}
	}
}

// WithOnRetry 在每次退避等待之前回调
func WithOnRetry(fn func(ctx context.Context, a Attempt)) Option {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

// Retrier 按 Policy 执行重试，可并发使用
type Retrier struct {
	policy    Policy
	predicate Predicate
	clock     clock.Clock
	logger    clog.Logger
	onRetry   func(ctx context.Context, a Attempt)
}

// New 创建 Retrier，policy 非法时回退到 DefaultPolicy
func New(policy Policy, opts ...Option) *Retrier {
	if policy.Validate() != nil {
		policy = DefaultPolicy()
	}
	r := &Retrier{
		policy:    policy,
		predicate: DefaultPredicate,
		clock:     clock.Real(),
		logger:    clog.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy 返回生效的参数
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Execute 执行 fn 直到成功、遇到不可重试错误或尝试耗尽
//
// 返回值：
//   - 成功：nil
//   - 不满足 Predicate 的错误：原样返回，不再重试
//   - 尝试耗尽：*ExhaustedError
//   - ctx 取消或超时：包装 ctx.Err() 的错误，等待立即中止
func (r *Retrier) Execute(ctx context.Context, fn func(ctx context.Context, attempt int) error) (*Trace, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	trace := &Trace{Attempts: make([]Attempt, 0, r.policy.MaxAttempts)}

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return trace, r.cancelled(err, trace)
		}

		started := r.clock.Now()
		err := fn(ctx, n)
		trace.Attempts = append(trace.Attempts, Attempt{
			Number:    n,
			StartedAt: started,
			Duration:  r.clock.Since(started),
			Err:       err,
		})

		if err == nil {
			return trace, nil
		}
		if ctx.Err() != nil {
			return trace, r.cancelled(ctx.Err(), trace)
		}
		if !r.predicate(err) {
			return trace, err
		}
		if n >= r.policy.MaxAttempts {
			return trace, &ExhaustedError{Attempts: n, Last: err}
		}

		delay := r.policy.Backoff(n)
		trace.Attempts[n-1].DelayBeforeNext = delay
		if r.onRetry != nil {
			r.onRetry(ctx, trace.Attempts[n-1])
		}
		r.logger.WarnContext(ctx, "attempt failed, retrying",
			clog.Int("attempt", n),
			clog.Int("max_attempts", r.policy.MaxAttempts),
			clog.Duration("backoff", delay),
			clog.Error(err))

		if err := r.clock.Sleep(ctx, delay); err != nil {
			return trace, r.cancelled(err, trace)
		}
	}
}

func (r *Retrier) cancelled(ctxErr error, trace *Trace) error {
	if n := trace.Count(); n > 0 && trace.Attempts[n-1].Err != nil {
		return fmt.Errorf("retry cancelled after %d attempts: %w (last error: %v)", n, ctxErr, trace.Attempts[n-1].Err)
	}
	return fmt.Errorf("retry cancelled: %w", ctxErr)
}

// Do 泛型版本的 Execute，返回最后一次成功的结果
func Do[T any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (T, error)) (T, *Trace, error) {
	var result T
	trace, err := r.Execute(ctx, func(ctx context.Context, _ int) error {
		v, err := fn(ctx)
		if err == nil {
			result = v
		}
		return err
	})
	if err != nil {
		var zero T
		return zero, trace, err
	}
	return result, trace, nil
}
