// Package retry 提供有界重试：固定次数、指数退避、可取消的等待。
//
// 第 1 次尝试立即执行；失败且满足 Predicate 时等待
// BaseDelay × Multiplier^(n-1) 后进行第 n+1 次尝试，最后一次尝试后不再等待。
// 默认参数（3 次、5s、3 倍）下两次等待分别为 5s 和 15s。
//
// 重试本身不负责降级，耗尽后返回 *ExhaustedError，由调用方决定如何处理。
package retry

import (
	"fmt"
	"math"
	"time"

	"github.com/ceyewan/dealflow/xerrors"
)

// Policy 重试参数
type Policy struct {
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" json:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier" json:"multiplier"`
	// MaxDelay 单次等待上限，0 表示不限制
	MaxDelay time.Duration `mapstructure:"max_delay" json:"max_delay,omitempty"`
}

// DefaultPolicy 3 次尝试，5s 起始，3 倍退避
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		Multiplier:  3,
	}
}

// Validate 校验参数
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return xerrors.NewConfiguration("max_retry_attempts", fmt.Sprintf("must be >= 1, got %d", p.MaxAttempts))
	}
	if p.BaseDelay < 0 {
		return xerrors.NewConfiguration("retry_base_delay", fmt.Sprintf("must be >= 0, got %s", p.BaseDelay))
	}
	if p.Multiplier < 1 {
		return xerrors.NewConfiguration("retry_backoff_multiplier", fmt.Sprintf("must be >= 1, got %v", p.Multiplier))
	}
	if p.MaxDelay < 0 {
		return xerrors.NewConfiguration("retry_max_delay", fmt.Sprintf("must be >= 0, got %s", p.MaxDelay))
	}
	return nil
}

// Backoff 返回第 attempt 次尝试失败后的等待时长（attempt 从 1 开始）
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > math.MaxInt64 {
		d = math.MaxInt64
	}
	delay := time.Duration(d)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Schedule 返回每次尝试失败后的退避序列，长度为 MaxAttempts；
// 最后一项仅用于展示，实际不会等待
func (p Policy) Schedule() []time.Duration {
	out := make([]time.Duration, 0, p.MaxAttempts)
	for n := 1; n <= p.MaxAttempts; n++ {
		out = append(out, p.Backoff(n))
	}
	return out
}

// Predicate 判断错误是否值得重试
type Predicate func(err error) bool

// DefaultPredicate 除终止性错误（校验、配置、显式标记）外都重试
func DefaultPredicate(err error) bool {
	return xerrors.IsRetryable(err)
}

// Attempt 一次尝试的记录
type Attempt struct {
	Number          int           `json:"number"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Err             error         `json:"-"`
	DelayBeforeNext time.Duration `json:"delay_before_next"`
}

// Failed 该次尝试是否失败
func (a Attempt) Failed() bool {
	return a.Err != nil
}

// Trace 一次 Execute 的全部尝试
type Trace struct {
	Attempts []Attempt `json:"attempts"`
}

// Count 尝试次数
func (t *Trace) Count() int {
	if t == nil {
		return 0
	}
	return len(t.Attempts)
}

// Delays 实际等待过的退避时长
func (t *Trace) Delays() []time.Duration {
	if t == nil {
		return nil
	}
	var out []time.Duration
	for _, a := range t.Attempts {
		if a.DelayBeforeNext > 0 {
			out = append(out, a.DelayBeforeNext)
		}
	}
	return out
}

// ErrExhausted 所有尝试都失败
var ErrExhausted = xerrors.New("retry: attempts exhausted")

// ExhaustedError 尝试耗尽，携带最后一次错误
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: %d attempts exhausted: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Last}
}
