// Package clock 提供可注入的时间源，供重试退避、熔断等待和单次尝试超时使用。
//
// 生产代码使用 Real()，测试使用 NewFake() 手动推进时间，
// 这样退避间隔和熔断等待时长都可以被精确断言而不需要真实等待。
package clock

import (
	"context"
	"time"
)

// Clock 时间源接口
type Clock interface {
	// Now 返回当前时间
	Now() time.Time

	// Since 返回自 t 以来经过的时间
	Since(t time.Time) time.Duration

	// Sleep 等待 d，ctx 取消或超时时立即返回 ctx 的错误
	Sleep(ctx context.Context, d time.Duration) error
}

// Real 返回基于系统时间的 Clock
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithAttemptTimeout 为单次尝试派生带超时的 Context。
// timeout <= 0 表示不限制，返回可取消但无截止时间的 Context。
func WithAttemptTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
