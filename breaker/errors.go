package breaker

import "github.com/ceyewan/dealflow/xerrors"

var (
	// ErrOpenState 熔断器处于打开状态
	ErrOpenState = xerrors.New("breaker: circuit breaker is open")

	// ErrTooManyRequests half_open 状态下试探调用尚未结束
	ErrTooManyRequests = xerrors.New("breaker: too many requests")
)

// IsRejected 判断错误是否为熔断器拒绝
func IsRejected(err error) bool {
	return xerrors.Is(err, ErrOpenState) || xerrors.Is(err, ErrTooManyRequests)
}
