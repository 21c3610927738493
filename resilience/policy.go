package resilience

import (
	"fmt"
	"strings"
	"time"

	"github.com/ceyewan/dealflow/breaker"
	"github.com/ceyewan/dealflow/retry"
	"github.com/ceyewan/dealflow/xerrors"
)

// Policy 单个 OperationKind 的熔断、重试与超时参数
//
// 零值字段在合并时表示"未设置"。
type Policy struct {
	FailureRateThreshold   float64       `mapstructure:"failure_rate_threshold" json:"failure_rate_threshold"`
	SlidingWindowSize      int           `mapstructure:"sliding_window_size" json:"sliding_window_size"`
	OpenStateWait          time.Duration `mapstructure:"open_state_wait" json:"open_state_wait"`
	MaxRetryAttempts       int           `mapstructure:"max_retry_attempts" json:"max_retry_attempts"`
	RetryBaseDelay         time.Duration `mapstructure:"retry_base_delay" json:"retry_base_delay"`
	RetryBackoffMultiplier float64       `mapstructure:"retry_backoff_multiplier" json:"retry_backoff_multiplier"`
	PerAttemptTimeout      time.Duration `mapstructure:"per_attempt_timeout" json:"per_attempt_timeout"`
}

// DefaultPolicy 50%、窗口 10、open 60s、3 次、5s 起始、3 倍、单次 30s
func DefaultPolicy() Policy {
	return Policy{
		FailureRateThreshold:   50,
		SlidingWindowSize:      10,
		OpenStateWait:          60 * time.Second,
		MaxRetryAttempts:       3,
		RetryBaseDelay:         5 * time.Second,
		RetryBackoffMultiplier: 3,
		PerAttemptTimeout:      30 * time.Second,
	}
}

// Merge 用 o 中的非零字段覆盖 p
func (p Policy) Merge(o Policy) Policy {
	if o.FailureRateThreshold != 0 {
		p.FailureRateThreshold = o.FailureRateThreshold
	}
	if o.SlidingWindowSize != 0 {
		p.SlidingWindowSize = o.SlidingWindowSize
	}
	if o.OpenStateWait != 0 {
		p.OpenStateWait = o.OpenStateWait
	}
	if o.MaxRetryAttempts != 0 {
		p.MaxRetryAttempts = o.MaxRetryAttempts
	}
	if o.RetryBaseDelay != 0 {
		p.RetryBaseDelay = o.RetryBaseDelay
	}
	if o.RetryBackoffMultiplier != 0 {
		p.RetryBackoffMultiplier = o.RetryBackoffMultiplier
	}
	if o.PerAttemptTimeout != 0 {
		p.PerAttemptTimeout = o.PerAttemptTimeout
	}
	return p
}

// BreakerSettings 熔断参数
func (p Policy) BreakerSettings() breaker.Settings {
	return breaker.Settings{
		FailureRateThreshold: p.FailureRateThreshold,
		WindowSize:           p.SlidingWindowSize,
		OpenWait:             p.OpenStateWait,
	}
}

// RetryPolicy 重试参数
func (p Policy) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: p.MaxRetryAttempts,
		BaseDelay:   p.RetryBaseDelay,
		Multiplier:  p.RetryBackoffMultiplier,
	}
}

// Validate 校验合并后的参数
func (p Policy) Validate() error {
	if err := p.BreakerSettings().Validate(); err != nil {
		return err
	}
	if err := p.RetryPolicy().Validate(); err != nil {
		return err
	}
	if p.PerAttemptTimeout <= 0 {
		return xerrors.NewConfiguration("per_attempt_timeout", fmt.Sprintf("must be > 0, got %s", p.PerAttemptTimeout))
	}
	return nil
}

// Config 编排层配置
//
//	resilience:
//	  driver: window
//	  default:
//	    failure_rate_threshold: 50
//	    per_attempt_timeout: 30s
//	  kinds:
//	    data-warehouse:
//	      per_attempt_timeout: 45s
type Config struct {
	Driver  breaker.Driver    `mapstructure:"driver" json:"driver"`
	Default Policy            `mapstructure:"default" json:"default"`
	Kinds   map[string]Policy `mapstructure:"kinds" json:"kinds,omitempty"`
}

// DefaultConfig 窗口驱动 + DefaultPolicy
func DefaultConfig() Config {
	return Config{Driver: breaker.DriverWindow, Default: DefaultPolicy()}
}

// PolicyFor 按 DefaultPolicy、Default、内置覆盖、Kinds 的顺序合并参数
func (c Config) PolicyFor(kind OperationKind) Policy {
	kind = kind.Normalize()
	p := DefaultPolicy().Merge(c.Default)
	if o, ok := builtinOverrides[kind]; ok {
		p = p.Merge(o)
	}
	for name, o := range c.Kinds {
		if OperationKind(name).Normalize() == kind {
			p = p.Merge(o)
		}
	}
	return p
}

// Validate 校验驱动、默认策略以及每个覆盖项
func (c Config) Validate() error {
	switch breaker.Driver(strings.ToLower(string(c.Driver))) {
	case breaker.DriverWindow, breaker.DriverGoBreaker, "":
	default:
		return xerrors.NewConfiguration("driver", fmt.Sprintf("unknown breaker driver %q", c.Driver))
	}

	if err := DefaultPolicy().Merge(c.Default).Validate(); err != nil {
		return xerrors.Wrap(err, "default policy")
	}
	for name := range c.Kinds {
		kind := OperationKind(name)
		if err := kind.Validate(); err != nil {
			return err
		}
		if err := c.PolicyFor(kind).Validate(); err != nil {
			return xerrors.Wrapf(err, "policy for %s", name)
		}
	}
	return nil
}
