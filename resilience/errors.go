package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/ceyewan/dealflow/breaker"
	"github.com/ceyewan/dealflow/xerrors"
)

// ErrRegistryClosed Close 之后继续使用 Registry
var ErrRegistryClosed = xerrors.New("resilience registry is closed")

// TransientRemoteError 重试耗尽后的远程失败
type TransientRemoteError struct {
	Kind     OperationKind
	Attempts int
	Err      error
}

func (e *TransientRemoteError) Error() string {
	return fmt.Sprintf("remote call %s failed after %d attempts: %v", e.Kind, e.Attempts, e.Err)
}

func (e *TransientRemoteError) Unwrap() error {
	return e.Err
}

// TimeoutError 单次尝试超过时限，可重试
type TimeoutError struct {
	Kind    OperationKind
	Attempt int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("remote call %s attempt %d timed out after %s", e.Kind, e.Attempt, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// CircuitOpenError 熔断器拒绝了调用，远程服务没有被访问
type CircuitOpenError struct {
	Kind  OperationKind
	State breaker.State
	Err   error
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit for %s is %s: %v", e.Kind, e.State, e.Err)
}

func (e *CircuitOpenError) Unwrap() error {
	return e.Err
}

// Is half_open 忙碌时同样视为 breaker.ErrOpenState
func (e *CircuitOpenError) Is(target error) bool {
	return target == breaker.ErrOpenState
}

// PanicError op 发生 panic，按临时错误处理
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}
